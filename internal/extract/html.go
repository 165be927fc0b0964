package extract

import (
	"bytes"
	"sort"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/sells-group/menu-cli/internal/linkscore"
	"github.com/sells-group/menu-cli/internal/menutext"
	"github.com/sells-group/menu-cli/internal/model"
)

const (
	// maxRegions is how many priced text regions one page may contribute.
	maxRegions = 6
	// minRegionChars is the shortest element text considered a region.
	minRegionChars = 30
	// minRegionScore is the lowest region score kept.
	minRegionScore = 3.0
	// An element whose single child holds wrapperShare of its price tokens
	// defers to that child unless its own extra text (a section title, say)
	// is within wrapperSlack characters.
	wrapperShare = 0.9
	wrapperSlack = 200
)

// FromHTML returns the structured-data, app-payload and priced-text blocks
// of an HTML page.
func (e *Extractor) FromHTML(body []byte, pageURL string) []model.Block {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		zap.L().Debug("extract: parse html", zap.String("url", pageURL), zap.Error(err))
		return nil
	}
	title := menutext.CollapseSpace(doc.Find("title").First().Text())

	var blocks []model.Block
	for _, text := range structuredMenus(doc) {
		blocks = append(blocks, newBlock(text, model.BlockStructured, title))
	}
	for _, text := range appPayloads(doc) {
		blocks = append(blocks, newBlock(text, model.BlockAppPayload, title))
	}
	for _, md := range pricedRegions(doc, e.md, pageURL) {
		if text, ok := FromText(md); ok {
			blocks = append(blocks, newBlock(text, model.BlockPricedText, title))
		}
	}
	return blocks
}

type region struct {
	sel   *goquery.Selection
	score float64
	order int
}

// pricedRegions scores every element by its price tokens and menu words and
// returns the markdown of the best non-overlapping ones. The document's
// scripts and embeds are removed in place.
func pricedRegions(doc *goquery.Document, conv *converter.Converter, pageURL string) []string {
	doc.Find("script, style, noscript, svg, iframe, template").Remove()

	var regions []region
	doc.Find("body *").Each(func(i int, s *goquery.Selection) {
		text := menutext.CollapseSpace(s.Text())
		if len(text) < minRegionChars {
			return
		}
		tokens := len(menutext.PriceToken.FindAllString(text, -1))
		menuWord := linkscore.MenuWords.MatchString(text)
		if tokens < 2 && !(tokens == 1 && menuWord) {
			return
		}
		if isWrapper(s, tokens, len(text)) {
			return
		}
		score := float64(tokens*3) - float64(len(text))/2000
		if menuWord {
			score++
		}
		if score < minRegionScore {
			return
		}
		regions = append(regions, region{sel: s, score: score, order: i})
	})

	sort.SliceStable(regions, func(i, j int) bool {
		if regions[i].score != regions[j].score {
			return regions[i].score > regions[j].score
		}
		return regions[i].order < regions[j].order
	})

	var chosen []*html.Node
	var out []string
	for _, r := range regions {
		if len(out) == maxRegions {
			break
		}
		node := r.sel.Get(0)
		if overlaps(node, chosen) {
			continue
		}
		chosen = append(chosen, node)
		out = append(out, regionMarkdown(r.sel, conv, pageURL))
	}
	return out
}

func isWrapper(s *goquery.Selection, tokens, textLen int) bool {
	wrapper := false
	s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		text := menutext.CollapseSpace(c.Text())
		n := len(menutext.PriceToken.FindAllString(text, -1))
		if float64(n) >= wrapperShare*float64(tokens) && textLen-len(text) > wrapperSlack {
			wrapper = true
			return false
		}
		return true
	})
	return wrapper
}

func overlaps(n *html.Node, chosen []*html.Node) bool {
	for _, c := range chosen {
		if contains(c, n) || contains(n, c) {
			return true
		}
	}
	return false
}

func contains(ancestor, n *html.Node) bool {
	for p := n; p != nil; p = p.Parent {
		if p == ancestor {
			return true
		}
	}
	return false
}

func regionMarkdown(s *goquery.Selection, conv *converter.Converter, pageURL string) string {
	raw, err := goquery.OuterHtml(s)
	if err == nil {
		md, err := conv.ConvertString(raw, converter.WithDomain(pageURL))
		if err == nil && strings.TrimSpace(md) != "" {
			return md
		}
	}
	// Fall back to one line per block-level text node.
	var lines []string
	s.Find("*").Each(func(_ int, c *goquery.Selection) {
		if c.Children().Length() == 0 {
			if t := menutext.CollapseSpace(c.Text()); t != "" {
				lines = append(lines, t)
			}
		}
	})
	return strings.Join(lines, "\n")
}
