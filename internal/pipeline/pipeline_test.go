package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/config"
	"github.com/sells-group/menu-cli/internal/extract"
	"github.com/sells-group/menu-cli/internal/fetcher"
	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/internal/parser"
	"github.com/sells-group/menu-cli/internal/resolve"
	"github.com/sells-group/menu-cli/pkg/jina"
	jinamocks "github.com/sells-group/menu-cli/pkg/jina/mocks"
)

// --- fakes ---

type fakeResolver struct {
	candidates []model.Candidate
	// waitDeadline blocks Resolve until its context ends.
	waitDeadline bool
	calls        int
}

func (r *fakeResolver) Resolve(ctx context.Context, _ model.BusinessDescriptor) []model.Candidate {
	r.calls++
	if r.waitDeadline {
		<-ctx.Done()
	}
	return r.candidates
}

type mapFetcher struct {
	pages map[string]*fetcher.Payload

	mu    sync.Mutex
	calls map[string]int
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{pages: map[string]*fetcher.Payload{}, calls: map[string]int{}}
}

func (f *mapFetcher) Fetch(_ context.Context, rawURL string) (*fetcher.Payload, error) {
	f.mu.Lock()
	f.calls[rawURL]++
	f.mu.Unlock()
	if p, ok := f.pages[rawURL]; ok {
		return p, nil
	}
	return nil, eris.Wrapf(model.ErrSourceUnavailable, "fetch %s: 404", rawURL)
}

func (f *mapFetcher) html(rawURL, body string) {
	f.pages[rawURL] = &fetcher.Payload{
		URL: rawURL, RequestURL: rawURL, Status: 200,
		ContentType: "text/html; charset=utf-8", Kind: fetcher.KindHTML,
		Body:  []byte(body),
		Block: fetcher.DetectBlock(200, nil, []byte(body)),
	}
}

func (f *mapFetcher) fetched(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[rawURL]
}

type pdfText string

func (p pdfText) ExtractText(_ context.Context, _ []byte) (string, error) {
	return string(p), nil
}

type countingExtractor struct {
	next BlockExtractor

	mu    sync.Mutex
	calls int
}

func (c *countingExtractor) Extract(ctx context.Context, p *fetcher.Payload) ([]model.Block, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	return c.next.Extract(ctx, p)
}

type failingParser struct{}

func (failingParser) Parse(_ context.Context, _ []model.Block, _ model.BusinessDescriptor) ([]model.Section, error) {
	return []model.Section{}, eris.Wrap(model.ErrExtractionFailure, "parse: provider down")
}

// menuPage renders a page whose JSON-LD lists one menu section. Items are
// "Name=price" pairs.
func menuPage(title, section string, items ...string) string {
	var entries []string
	for _, it := range items {
		name, price, _ := strings.Cut(it, "=")
		entries = append(entries, fmt.Sprintf(`{"@type":"MenuItem","name":%q,"offers":{"price":%q}}`, name, price))
	}
	return fmt.Sprintf(`<html><head><title>%s</title>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"Restaurant","hasMenu":{"@type":"Menu","hasMenuSection":[
 {"@type":"MenuSection","name":%q,"hasMenuItem":[%s]}]}}
</script></head><body></body></html>`, title, section, strings.Join(entries, ","))
}

func newTestPipeline(r Resolver, f fetcher.Fetcher, opts Options) *Pipeline {
	return New(Deps{
		Resolver:  r,
		Fetcher:   f,
		Extractor: extract.New(pdfText("Margherita 14\nPepperoni 16"), nil),
		Parser:    parser.New(parser.HeuristicExtractor{}, nil, parser.Options{}),
	}, opts)
}

var joes = model.BusinessDescriptor{Name: "Joe's Diner", Website: "https://joesdiner.example/"}

// --- tests ---

func TestRun_InvalidDescriptor(t *testing.T) {
	r := &fakeResolver{}
	p := newTestPipeline(r, newMapFetcher(), Options{})

	doc, err := p.Run(context.Background(), model.BusinessDescriptor{Name: "  "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidDescriptor))
	assert.Nil(t, doc)
	assert.Zero(t, r.calls)
}

func TestRun_KeepsDishesResemblingBoilerplate(t *testing.T) {
	f := newMapFetcher()
	f.html("https://joesdiner.example/", menuPage("Joe's Diner", "Desserts", "Chocolate Chip Cookie=4", "Brownie=5"))
	r := &fakeResolver{candidates: []model.Candidate{
		{URL: "https://joesdiner.example/", Label: "homepage", Score: 1, Source: model.SourceHomepage},
	}}

	doc, err := newTestPipeline(r, f, Options{}).Run(context.Background(), joes)
	require.NoError(t, err)

	var names []string
	for _, it := range doc.TopItems {
		names = append(names, it.Name)
	}
	assert.ElementsMatch(t, []string{"Chocolate Chip Cookie", "Brownie"}, names)
	require.NotNil(t, doc.Metrics.AvgTicket)
	assert.InDelta(t, 4.5, *doc.Metrics.AvgTicket, 0.001)
}

func TestRun_JoesDinerStructuredData(t *testing.T) {
	f := newMapFetcher()
	f.html("https://joesdiner.example/", menuPage("Joe's Diner", "Lunch", "Burger=12", "Fries=5"))
	r := &fakeResolver{candidates: []model.Candidate{
		{URL: "https://joesdiner.example/", Label: "homepage", Score: 1, Source: model.SourceHomepage},
	}}

	doc, err := newTestPipeline(r, f, Options{}).Run(context.Background(), joes)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Lunch", doc.Sections[0].Name)
	assert.Len(t, doc.Sections[0].Items, 2)
	require.Len(t, doc.TopItems, 2)
	require.NotNil(t, doc.Metrics.AvgTicket)
	assert.InDelta(t, 8.5, *doc.Metrics.AvgTicket, 1e-9)
	assert.Equal(t, []model.Source{{URL: "https://joesdiner.example/", Title: "Joe's Diner", Label: "homepage"}}, doc.Sources)
}

func TestRun_PDFOnlySource(t *testing.T) {
	f := newMapFetcher()
	f.pages["https://pizza.example/menu.pdf"] = &fetcher.Payload{
		URL: "https://pizza.example/menu.pdf", Status: 200,
		ContentType: "application/pdf", Kind: fetcher.KindPDF, Body: []byte("%PDF-1.4"),
	}
	r := &fakeResolver{candidates: []model.Candidate{{URL: "https://pizza.example/menu.pdf", Score: 12}}}

	doc, err := newTestPipeline(r, f, Options{}).Run(context.Background(), model.BusinessDescriptor{Name: "Pizza Place"})
	require.NoError(t, err)

	require.Len(t, doc.TopItems, 2)
	assert.InDelta(t, 14.0, *doc.TopItems[0].Price, 1e-9)
	assert.InDelta(t, 16.0, *doc.TopItems[1].Price, 1e-9)
	require.NotNil(t, doc.Metrics.AvgTicket)
	assert.InDelta(t, 15.0, *doc.Metrics.AvgTicket, 1e-9)
}

func TestRun_NoCandidates(t *testing.T) {
	doc, err := newTestPipeline(&fakeResolver{}, newMapFetcher(), Options{}).
		Run(context.Background(), model.BusinessDescriptor{Name: "Nowhere Cafe"})
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sections":[],"top_items":[],"metrics":{"avg_ticket":null,"by_section":{}},"sources":[]}`, string(out))
}

func TestRun_AllCandidatesFail(t *testing.T) {
	r := &fakeResolver{candidates: []model.Candidate{{URL: "https://a.example/menu"}, {URL: "https://b.example/menu"}}}

	doc, err := newTestPipeline(r, newMapFetcher(), Options{}).Run(context.Background(), joes)
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.NotNil(t, doc.TopItems)
}

func TestRun_DedupAndMergeAcrossCandidates(t *testing.T) {
	f := newMapFetcher()
	f.html("https://joesdiner.example/lunch", menuPage("Lunch", "Lunch", "Burger=12", "Fries=5"))
	f.html("https://joesdiner.example/dinner", menuPage("Dinner", "Dinner", "Burger=12", "Fries=5", "Salad=9"))
	r := &fakeResolver{candidates: []model.Candidate{
		{URL: "https://joesdiner.example/lunch", Score: 10},
		{URL: "https://joesdiner.example/dinner", Score: 9},
	}}

	doc, err := newTestPipeline(r, f, Options{}).Run(context.Background(), joes)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1, "sections with fully overlapping items merge")
	require.Len(t, doc.TopItems, 3)
	burgers := 0
	for _, it := range doc.TopItems {
		if it.Name == "Burger" {
			burgers++
		}
	}
	assert.Equal(t, 1, burgers)
	assert.Len(t, doc.Sources, 2)
}

func TestRun_Deterministic(t *testing.T) {
	f := newMapFetcher()
	var cands []model.Candidate
	for i, sec := range []string{"Lunch", "Dinner", "Desserts", "Drinks", "Kids"} {
		u := fmt.Sprintf("https://joesdiner.example/p%d", i)
		f.html(u, menuPage(sec, sec,
			fmt.Sprintf("%s One=%d", sec, 5+i),
			fmt.Sprintf("%s Two=%d", sec, 7+i),
			fmt.Sprintf("%s Three=%d", sec, 9+i),
		))
		cands = append(cands, model.Candidate{URL: u, Score: 10 - i})
	}
	p := newTestPipeline(&fakeResolver{candidates: cands}, f, Options{Concurrency: 4})

	first, err := p.Run(context.Background(), joes)
	require.NoError(t, err)
	a, err := json.Marshal(first)
	require.NoError(t, err)

	for range 5 {
		again, err := p.Run(context.Background(), joes)
		require.NoError(t, err)
		b, err := json.Marshal(again)
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b))
	}
}

func TestRun_MaxFetchCountsSuccessfulCandidates(t *testing.T) {
	f := newMapFetcher()
	f.html("https://x.example/a", menuPage("A", "Lunch", "Burger=12", "Fries=5"))
	f.html("https://x.example/b", menuPage("B", "Dinner", "Steak=31", "Salmon=27"))
	f.html("https://x.example/c", menuPage("C", "Desserts", "Pie=7", "Cake=8"))
	r := &fakeResolver{candidates: []model.Candidate{
		{URL: "https://x.example/missing"},
		{URL: "https://x.example/a"},
		{URL: "https://x.example/b"},
		{URL: "https://x.example/c"},
	}}

	_, err := newTestPipeline(r, f, Options{MaxFetch: 2}).Run(context.Background(), joes)
	require.NoError(t, err)

	assert.Equal(t, 1, f.fetched("https://x.example/missing"))
	assert.Equal(t, 1, f.fetched("https://x.example/a"))
	assert.Equal(t, 1, f.fetched("https://x.example/b"))
	assert.Zero(t, f.fetched("https://x.example/c"))
}

func TestRun_ThinBrunchRetriesWithoutBrunch(t *testing.T) {
	f := newMapFetcher()
	f.html("https://x.example/brunch", menuPage("Brunch", "Brunch", "Pancakes=11", "Omelette=12"))
	f.html("https://x.example/menu", menuPage("Menu", "Dinner", "Steak=31", "Salmon=27", "Pasta=19"))
	r := &fakeResolver{candidates: []model.Candidate{
		{URL: "https://x.example/brunch", Label: "Brunch Menu", Score: 12},
		{URL: "https://x.example/menu", Label: "Menu", Score: 11},
	}}

	doc, err := newTestPipeline(r, f, Options{MaxFetch: 1}).Run(context.Background(), joes)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Dinner", doc.Sections[0].Name)
	assert.Len(t, doc.TopItems, 3)
	require.Len(t, doc.Sources, 1)
	assert.Equal(t, "https://x.example/menu", doc.Sources[0].URL)
}

func TestRun_EmptySecondPassKeepsFirst(t *testing.T) {
	f := newMapFetcher()
	f.html("https://x.example/brunch", menuPage("Brunch", "Brunch", "Pancakes=11", "Omelette=12"))
	f.html("https://x.example/about", `<html><body><p>Family owned since 1987.</p></body></html>`)
	r := &fakeResolver{candidates: []model.Candidate{
		{URL: "https://x.example/brunch", Score: 12},
		{URL: "https://x.example/about", Score: 1},
	}}

	doc, err := newTestPipeline(r, f, Options{MaxFetch: 1}).Run(context.Background(), joes)
	require.NoError(t, err)

	require.Len(t, doc.Sections, 1)
	assert.Equal(t, "Brunch", doc.Sections[0].Name)
	assert.Equal(t, 1, f.fetched("https://x.example/about"), "second pass ran")
}

func TestRun_NoSecondPassWhenNothingExcluded(t *testing.T) {
	f := newMapFetcher()
	f.html("https://x.example/about", `<html><body><p>Family owned since 1987.</p></body></html>`)
	r := &fakeResolver{candidates: []model.Candidate{{URL: "https://x.example/about"}, {URL: "https://x.example/contact"}}}
	x := &countingExtractor{next: extract.New(nil, nil)}
	p := New(Deps{
		Resolver:  r,
		Fetcher:   f,
		Extractor: x,
		Parser:    parser.New(parser.HeuristicExtractor{}, nil, parser.Options{}),
	}, Options{})

	doc, err := p.Run(context.Background(), joes)
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.Equal(t, 1, x.calls)
}

func TestRun_ParseFailureDegradesToEmpty(t *testing.T) {
	f := newMapFetcher()
	f.html("https://joesdiner.example/", menuPage("Joe's Diner", "Lunch", "Burger=12", "Fries=5"))
	p := New(Deps{
		Resolver:  &fakeResolver{candidates: []model.Candidate{{URL: "https://joesdiner.example/"}}},
		Fetcher:   f,
		Extractor: extract.New(nil, nil),
		Parser:    failingParser{},
	}, Options{})

	doc, err := p.Run(context.Background(), joes)
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.Equal(t, model.EmptyDocument(), doc)
}

func TestRun_UnsupportedPayloadSkipped(t *testing.T) {
	f := newMapFetcher()
	f.pages["https://x.example/menu.docx"] = &fetcher.Payload{
		URL: "https://x.example/menu.docx", Status: 200, ContentType: "application/msword", Kind: fetcher.KindOther,
	}
	f.html("https://x.example/menu", menuPage("Menu", "Dinner", "Steak=31", "Salmon=27"))
	r := &fakeResolver{candidates: []model.Candidate{{URL: "https://x.example/menu.docx"}, {URL: "https://x.example/menu"}}}

	doc, err := newTestPipeline(r, f, Options{}).Run(context.Background(), joes)
	require.NoError(t, err)
	assert.Len(t, doc.TopItems, 2)
}

func TestRun_RendersScriptShell(t *testing.T) {
	const page = "https://tacos.example/menu"
	f := newMapFetcher()
	f.html(page, `<html><body><div id="root"></div><script src="/app.js"></script></body></html>`)
	require.Equal(t, fetcher.BlockJSShell, f.pages[page].Block)

	reader := jinamocks.NewMockClient(t)
	reader.On("Read", mock.Anything, page).Return(&jina.ReadResponse{
		Code: 200,
		Data: jina.ReadData{Title: "Taqueria", URL: page, Content: "# Tacos\n\nCarnitas 4.50\nAl Pastor 4.25\n"},
	}, nil).Once()

	p := New(Deps{
		Resolver:  &fakeResolver{candidates: []model.Candidate{{URL: page, Label: "Menu"}}},
		Fetcher:   f,
		Extractor: extract.New(nil, nil),
		Parser:    parser.New(parser.HeuristicExtractor{}, nil, parser.Options{}),
		Reader:    reader,
	}, Options{})

	doc, err := p.Run(context.Background(), model.BusinessDescriptor{Name: "Taqueria"})
	require.NoError(t, err)
	require.Len(t, doc.TopItems, 2)
	assert.Equal(t, "Carnitas", doc.TopItems[0].Name)
	assert.Equal(t, []model.Source{{URL: page, Title: "Taqueria", Label: "Menu"}}, doc.Sources)
}

func TestRun_DeadlineStopsFetching(t *testing.T) {
	f := newMapFetcher()
	f.html("https://joesdiner.example/", menuPage("Joe's Diner", "Lunch", "Burger=12", "Fries=5"))
	r := &fakeResolver{
		candidates:   []model.Candidate{{URL: "https://joesdiner.example/"}},
		waitDeadline: true,
	}

	doc, err := newTestPipeline(r, f, Options{Deadline: 10 * time.Millisecond}).Run(context.Background(), joes)
	require.NoError(t, err)
	assert.True(t, doc.IsEmpty())
	assert.Zero(t, f.fetched("https://joesdiner.example/"))
}

func TestRun_SharesFetchMemoWithResolver(t *testing.T) {
	f := newMapFetcher()
	f.html("https://joesdiner.example/", menuPage("Joe's Diner", "Lunch", "Burger=12", "Fries=5"))
	res := resolve.New(nil, nil, nil, resolve.Options{MaxCandidates: 20, MineMaxPages: 3})

	doc, err := newTestPipeline(res, f, Options{}).Run(context.Background(), joes)
	require.NoError(t, err)

	assert.Len(t, doc.TopItems, 2)
	assert.Equal(t, 1, f.fetched("https://joesdiner.example/"), "homepage fetched once for mining and extraction")
}

func TestBrunchOnly(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"https://x.example/brunch", true},
		{"https://x.example/brunch-menu", true},
		{"Weekend Brunch", true},
		{"Brunch & Lunch", false},
		{"https://x.example/all-day-brunch", false},
		{"https://x.example/brunchdinner", false},
		{"https://x.example/menu", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, BrunchOnly(tt.in))
		})
	}
}

func TestWithoutBrunchOnly(t *testing.T) {
	in := []model.Candidate{
		{URL: "https://x.example/brunch"},
		{URL: "https://x.example/menus/weekend", Label: "Brunch"},
		{URL: "https://x.example/menu", Label: "Lunch and Brunch"},
		{URL: "https://x.example/dinner"},
	}
	out := WithoutBrunchOnly(in)
	require.Len(t, out, 2)
	assert.Equal(t, "https://x.example/menu", out[0].URL)
	assert.Equal(t, "https://x.example/dinner", out[1].URL)
}

func TestThinBrunch(t *testing.T) {
	p := New(Deps{}, Options{ThinBrunchItems: 3})

	brunch := func(n int) *model.MenuDocument {
		doc := model.EmptyDocument()
		sec := model.Section{Name: "Brunch"}
		for i := range n {
			it := model.Item{Name: fmt.Sprintf("Dish %d", i)}
			sec.Items = append(sec.Items, it)
			doc.TopItems = append(doc.TopItems, it)
		}
		doc.Sections = append(doc.Sections, sec)
		return doc
	}

	assert.True(t, p.thinBrunch(brunch(2)))
	assert.False(t, p.thinBrunch(brunch(3)))

	two := brunch(1)
	two.Sections = append(two.Sections, model.Section{Name: "Dinner"})
	assert.False(t, p.thinBrunch(two))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{
		Pipeline: config.PipelineConfig{Concurrency: 6, MaxFetch: 5, TopBlocks: 2, DeadlineSecs: 30, ThinBrunchItems: 10},
		Guard:    config.GuardConfig{MergeOverlap: 0.9},
	}
	o := OptionsFromConfig(cfg)
	assert.Equal(t, 6, o.Concurrency)
	assert.Equal(t, 5, o.MaxFetch)
	assert.Equal(t, 2, o.TopBlocks)
	assert.Equal(t, 30*time.Second, o.Deadline)
	assert.Equal(t, 10, o.ThinBrunchItems)
	assert.InDelta(t, 0.9, o.MergeOverlap, 1e-9)
	assert.Equal(t, DefaultOptions().MaxBlockChars, o.MaxBlockChars)

	assert.Equal(t, DefaultOptions(), OptionsFromConfig(&config.Config{}))
}
