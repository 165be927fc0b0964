package fetcher

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		url         string
		body        []byte
		want        Kind
	}{
		{"html header", "text/html; charset=utf-8", "https://x.example/menu", nil, KindHTML},
		{"xhtml header", "application/xhtml+xml", "https://x.example/", nil, KindHTML},
		{"pdf header", "application/pdf", "https://x.example/dl?id=4", nil, KindPDF},
		{"image header", "image/png", "https://x.example/a", nil, KindImage},
		{"svg is other", "image/svg+xml", "https://x.example/logo", nil, KindOther},
		{"octet-stream pdf by extension", "application/octet-stream", "https://x.example/menu.PDF", nil, KindPDF},
		{"octet-stream image by extension", "binary/octet-stream", "https://x.example/board.webp?v=1", nil, KindImage},
		{"pdf by magic", "", "https://x.example/download", []byte("%PDF-1.7\n..."), KindPDF},
		{"jpeg by magic", "", "https://x.example/download", []byte{0xFF, 0xD8, 0xFF, 0xE0}, KindImage},
		{"png by magic", "", "https://x.example/download", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0}, KindImage},
		{"webp by magic", "", "https://x.example/x", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), KindImage},
		{"html by magic", "", "https://x.example/x", []byte("  <!DOCTYPE html><html>"), KindHTML},
		{"json is other", "application/json", "https://x.example/api", []byte(`{"a":1}`), KindOther},
		{"empty", "", "", nil, KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.contentType, tt.url, tt.body))
		})
	}
}

func TestImageMIME(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "image/png", ImageMIME("", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}))
	assert.Equal(t, "image/jpeg", ImageMIME("image/png", []byte{0xFF, 0xD8, 0xFF}))
	assert.Equal(t, "image/webp", ImageMIME("", []byte("RIFF\x00\x00\x00\x00WEBP")))
	assert.Equal(t, "image/heic", ImageMIME("image/heic", []byte("....")))
	assert.Equal(t, "image/jpeg", ImageMIME("", nil))
}

func TestDetectBlock(t *testing.T) {
	t.Parallel()

	cf := http.Header{}
	cf.Set("cf-ray", "123")

	tests := []struct {
		name   string
		status int
		header http.Header
		body   string
		want   BlockType
	}{
		{"normal page", 200, http.Header{}, "<html><body>" + strings.Repeat("Burger 12 ", 500) + "</body></html>", BlockNone},
		{"cloudflare header", 403, cf, "", BlockCloudflare},
		{"cloudflare 200 with cf-ray is fine", 200, cf, "<html>menu</html>", BlockNone},
		{"challenge body", 200, http.Header{}, "<title>Just a moment</title>Checking your browser", BlockCloudflare},
		{"captcha", 200, http.Header{}, `<div class="g-recaptcha"></div>`, BlockCaptcha},
		{"js shell", 200, http.Header{}, `<html><noscript>You need to enable JavaScript</noscript><div id="root"></div></html>`, BlockJSShell},
		{"empty root", 200, http.Header{}, `<html><body><div id="app"></div></body></html>`, BlockJSShell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DetectBlock(tt.status, tt.header, []byte(tt.body)))
		})
	}
}
