// Package extract turns fetched payloads into ranked blocks of menu text.
//
// Every block is written in one normalized line format regardless of where it
// came from:
//
//	## Section name
//	Item name - 12.5
//	  optional description
//	Item without a price
package extract

import (
	"context"
	"sort"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/ocr"
)

// DefaultMaxBlockChars caps the text of a single block.
const DefaultMaxBlockChars = 180000

// Extractor pulls blocks out of HTML pages, PDF documents and menu images.
// A nil PDF extractor or image reader disables that payload kind.
type Extractor struct {
	pdf    ocr.TextExtractor
	images ocr.ImageReader
	md     *converter.Converter
}

// New creates an Extractor.
func New(pdf ocr.TextExtractor, images ocr.ImageReader) *Extractor {
	return &Extractor{
		pdf:    pdf,
		images: images,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Extract returns the menu blocks found in p, unranked. A payload with no
// menu-like content yields no blocks and no error.
func (e *Extractor) Extract(ctx context.Context, p *fetcher.Payload) ([]model.Block, error) {
	if p == nil {
		return nil, eris.New("extract: nil payload")
	}

	var blocks []model.Block
	switch p.Kind {
	case fetcher.KindHTML:
		blocks = e.FromHTML(p.Body, p.URL)

	case fetcher.KindPDF:
		if e.pdf == nil {
			return nil, eris.Wrapf(model.ErrUnsupportedFormat, "extract %s: pdf support disabled", p.URL)
		}
		text, err := e.pdf.ExtractText(ctx, p.Body)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: pdf %s", p.URL)
		}
		blocks = textBlock(text)

	case fetcher.KindImage:
		if e.images == nil {
			return nil, eris.Wrapf(model.ErrUnsupportedFormat, "extract %s: image reading disabled", p.URL)
		}
		text, err := e.images.ReadImage(ctx, p.Body, fetcher.ImageMIME(p.ContentType, p.Body))
		if err != nil {
			return nil, eris.Wrapf(err, "extract: image %s", p.URL)
		}
		blocks = textBlock(text)

	default:
		return nil, eris.Wrapf(model.ErrUnsupportedFormat, "extract %s: content type %q", p.URL, p.ContentType)
	}

	for i := range blocks {
		blocks[i].SourceURL = p.URL
	}
	zap.L().Debug("extract: blocks found",
		zap.String("url", p.URL),
		zap.String("kind", string(p.Kind)),
		zap.Int("blocks", len(blocks)),
	)
	return blocks, nil
}

// FromMarkdown returns the priced-text block of a page rendered to markdown
// by a reader service, attributed to pageURL.
func FromMarkdown(markdown, pageURL, title string) []model.Block {
	blocks := textBlock(markdown)
	for i := range blocks {
		blocks[i].SourceURL = pageURL
		blocks[i].Title = title
	}
	return blocks
}

func textBlock(text string) []model.Block {
	body, ok := FromText(text)
	if !ok {
		return nil
	}
	return []model.Block{newBlock(body, model.BlockPricedText, "")}
}

func newBlock(text string, kind model.BlockKind, title string) model.Block {
	return model.Block{
		Text:   text,
		Kind:   kind,
		Length: runeLen(text),
		Title:  title,
	}
}

// Rank orders blocks by kind weight, then length, then text, drops blocks
// whose text repeats an earlier one and truncates each to maxChars runes.
// The result is independent of input order.
func Rank(blocks []model.Block, maxChars int) []model.Block {
	if maxChars <= 0 {
		maxChars = DefaultMaxBlockChars
	}
	out := make([]model.Block, 0, len(blocks))
	for _, b := range blocks {
		if r := []rune(b.Text); len(r) > maxChars {
			b.Text = string(r[:maxChars])
		}
		b.Length = runeLen(b.Text)
		out = append(out, b)
	}

	sort.SliceStable(out, func(i, j int) bool {
		wi, wj := out[i].Kind.Weight(), out[j].Kind.Weight()
		if wi != wj {
			return wi > wj
		}
		if out[i].Length != out[j].Length {
			return out[i].Length > out[j].Length
		}
		if out[i].Text != out[j].Text {
			return out[i].Text < out[j].Text
		}
		return out[i].SourceURL < out[j].SourceURL
	})

	seen := make(map[string]bool, len(out))
	uniq := out[:0]
	for _, b := range out {
		if seen[b.Text] {
			continue
		}
		seen[b.Text] = true
		uniq = append(uniq, b)
	}
	return uniq
}

func runeLen(s string) int {
	return len([]rune(s))
}
