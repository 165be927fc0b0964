package resolve

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/menu-cli/internal/model"
	"github.com/sells-group/menu-cli/pkg/google"
)

// WebsiteFinder looks up a business website when the descriptor has none.
type WebsiteFinder interface {
	FindWebsite(ctx context.Context, desc model.BusinessDescriptor) (string, error)
}

// PlacesFinder finds websites through Google Places text search.
type PlacesFinder struct {
	client google.Client
}

// NewPlacesFinder creates a PlacesFinder.
func NewPlacesFinder(client google.Client) *PlacesFinder {
	return &PlacesFinder{client: client}
}

// FindWebsite returns the website of the best matching place: the first
// listing whose name shares a word with the business name, else the first
// listing with a website. It returns "" with no error when nothing matches.
func (f *PlacesFinder) FindWebsite(ctx context.Context, desc model.BusinessDescriptor) (string, error) {
	query := strings.Join(nonEmpty(desc.Name, desc.Address, desc.City), " ")
	resp, err := f.client.TextSearch(ctx, query)
	if err != nil {
		return "", eris.Wrap(err, "resolve: places search")
	}

	fallback := ""
	for _, p := range resp.Places {
		if p.WebsiteURI == "" {
			continue
		}
		if sharesWord(p.DisplayName.Text, desc.Name) {
			return p.WebsiteURI, nil
		}
		if fallback == "" {
			fallback = p.WebsiteURI
		}
	}
	return fallback, nil
}

func sharesWord(a, b string) bool {
	words := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(a)) {
		if len(w) > 2 {
			words[w] = true
		}
	}
	for _, w := range strings.Fields(strings.ToLower(b)) {
		if words[w] {
			return true
		}
	}
	return false
}
