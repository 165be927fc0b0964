package linkscore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		url   string
		label string
		want  int
	}{
		{"menu tail", "https://joes.example/menu", "", 8 + 3},
		{"menus tail with slash", "https://joes.example/menus/", "", 8 + 3},
		{"dinner menu", "https://joes.example/dinner-menu", "", 5 + 3},
		{"meal segment and menu tail", "https://joes.example/dinner/menu", "", 8 + 5 + 3},
		{"all-day", "https://joes.example/all-day", "", 5},
		{"label keyword only", "https://joes.example/eat", "Our Menu", 3},
		{"pdf", "https://joes.example/files/menu.pdf", "", 3 + 6},
		{"pdf without keyword", "https://joes.example/files/a1.pdf", "", 6},
		{"image", "https://joes.example/img/board.JPG", "", 4},
		{"webp", "https://joes.example/img/board.webp", "", 4},
		{"about page", "https://joes.example/about-us", "", -6},
		{"contact", "https://joes.example/contact", "", -6},
		{"events with menu word", "https://joes.example/events/menu", "", 8 + 3},
		{"location index", "https://joes.example/locations", "", -8},
		{"single location", "https://joes.example/locations/downtown", "", -8},
		{"location menu", "https://joes.example/locations/downtown/menu", "", 8 + 3},
		{"homepage", "https://joes.example/", "", 0},
		{"query ignored", "https://joes.example/menu?cmpid=abc", "", 8 + 3},
		{"garbage", "::not a url::", "", 0},
		{"relative", "/menu", "", 8 + 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Score(tt.url, tt.label))
		})
	}
}

func TestScoreDeterministic(t *testing.T) {
	t.Parallel()

	u := "https://joes.example/brunch-menu.pdf"
	assert.Equal(t, Score(u, "Brunch"), Score(u, "Brunch"))
}

func TestIsDocument(t *testing.T) {
	t.Parallel()

	assert.True(t, IsDocument("https://x.example/menu.pdf?v=2"))
	assert.True(t, IsDocument("https://x.example/menu.png"))
	assert.False(t, IsDocument("https://x.example/menu"))
}
