package fetcher

import (
	"bytes"
	"net/http"
)

// BlockType describes an anti-bot wall or script-only page.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock inspects a response for a bot wall or an empty script shell.
// Cloudflare and captcha walls make a page unusable; a JS shell is usable
// only through a rendering reader.
func DetectBlock(status int, header http.Header, body []byte) BlockType {
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if header.Get("cf-ray") != "" || header.Get("cf-mitigated") != "" || header.Get("server") == "cloudflare" {
			return BlockCloudflare
		}
	}

	// Only the head of large pages is scanned; walls are small.
	lower := bytes.ToLower(body[:min(len(body), 64<<10)])

	if bytes.Contains(lower, []byte("checking your browser")) ||
		bytes.Contains(lower, []byte("cf-browser-verification")) ||
		bytes.Contains(lower, []byte("cf-challenge")) {
		return BlockCloudflare
	}

	if len(body) < 20000 &&
		(bytes.Contains(lower, []byte("g-recaptcha")) ||
			bytes.Contains(lower, []byte("h-captcha")) ||
			bytes.Contains(lower, []byte("captcha-container"))) {
		return BlockCaptcha
	}

	if len(body) < 4000 {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
			return BlockJSShell
		}
		if bytes.Contains(lower, []byte(`<div id="root"></div>`)) || bytes.Contains(lower, []byte(`<div id="app"></div>`)) {
			return BlockJSShell
		}
	}
	return BlockNone
}
