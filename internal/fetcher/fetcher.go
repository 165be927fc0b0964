// Package fetcher retrieves candidate pages and classifies their payloads.
package fetcher

import (
	"context"
)

// Kind is the payload class a fetched document was sorted into.
type Kind string

const (
	KindHTML  Kind = "html"
	KindPDF   Kind = "pdf"
	KindImage Kind = "image"
	KindOther Kind = "other"
)

// Payload is a fetched document.
type Payload struct {
	URL         string    `json:"url"`       // final URL after redirects
	RequestURL  string    `json:"request_url"`
	Status      int       `json:"status"`
	ContentType string    `json:"content_type"`
	Kind        Kind      `json:"kind"`
	Body        []byte    `json:"-"`
	Block       BlockType `json:"block,omitempty"`
}

// Fetcher retrieves a single URL. Implementations return an error wrapping
// model.ErrSourceUnavailable when the page cannot be obtained.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Payload, error)
}
