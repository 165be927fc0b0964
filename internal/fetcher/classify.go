package fetcher

import (
	"bytes"
	"mime"
	"net/url"
	"path"
	"strings"
)

// Classify sorts a payload by content-type header, then by the URL's file
// extension, then by sniffing the leading bytes.
func Classify(contentType, rawURL string, body []byte) Kind {
	if k := kindFromContentType(contentType); k != KindOther {
		return k
	}
	if k := kindFromExtension(rawURL); k != KindOther {
		return k
	}
	return kindFromMagic(body)
}

func kindFromContentType(contentType string) Kind {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	}
	switch {
	case mt == "text/html" || mt == "application/xhtml+xml":
		return KindHTML
	case mt == "application/pdf" || mt == "application/x-pdf":
		return KindPDF
	case strings.HasPrefix(mt, "image/") && mt != "image/svg+xml":
		return KindImage
	default:
		return KindOther
	}
}

func kindFromExtension(rawURL string) Kind {
	u, err := url.Parse(rawURL)
	if err != nil {
		return KindOther
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".html", ".htm", ".php", ".asp", ".aspx":
		return KindHTML
	case ".pdf":
		return KindPDF
	case ".jpg", ".jpeg", ".png", ".webp", ".gif":
		return KindImage
	default:
		return KindOther
	}
}

var (
	magicPDF  = []byte("%PDF-")
	magicJPEG = []byte{0xFF, 0xD8, 0xFF}
	magicPNG  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	magicGIF  = []byte("GIF8")
)

func kindFromMagic(body []byte) Kind {
	switch {
	case bytes.HasPrefix(body, magicPDF):
		return KindPDF
	case bytes.HasPrefix(body, magicJPEG), bytes.HasPrefix(body, magicPNG), bytes.HasPrefix(body, magicGIF):
		return KindImage
	case len(body) >= 12 && bytes.Equal(body[0:4], []byte("RIFF")) && bytes.Equal(body[8:12], []byte("WEBP")):
		return KindImage
	}
	head := bytes.ToLower(bytes.TrimSpace(body[:min(len(body), 512)]))
	if bytes.HasPrefix(head, []byte("<!doctype html")) || bytes.Contains(head, []byte("<html")) {
		return KindHTML
	}
	return KindOther
}

// ImageMIME returns the MIME type of an image payload, falling back to
// image/jpeg when the bytes are not recognized.
func ImageMIME(contentType string, body []byte) string {
	switch {
	case bytes.HasPrefix(body, magicPNG):
		return "image/png"
	case bytes.HasPrefix(body, magicJPEG):
		return "image/jpeg"
	case bytes.HasPrefix(body, magicGIF):
		return "image/gif"
	case len(body) >= 12 && bytes.Equal(body[8:12], []byte("WEBP")):
		return "image/webp"
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	return "image/jpeg"
}
