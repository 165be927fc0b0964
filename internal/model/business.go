package model

import (
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
)

// BusinessDescriptor identifies the business whose menu is being discovered.
// Only Name is required.
type BusinessDescriptor struct {
	Name    string `json:"name"`
	City    string `json:"city,omitempty"`
	Address string `json:"address,omitempty"`
	Website string `json:"website,omitempty"`
}

// Validate reports ErrInvalidDescriptor when the descriptor has no name.
func (d BusinessDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return eris.Wrap(ErrInvalidDescriptor, "business name is required")
	}
	return nil
}

// WebsiteURL returns the website normalized to an absolute URL, or nil when
// the website is missing or unparsable. Bare hosts get an https scheme.
func (d BusinessDescriptor) WebsiteURL() *url.URL {
	raw := strings.TrimSpace(d.Website)
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return nil
	}
	if u.Path == "" {
		u.Path = "/"
	}
	u.Fragment = ""
	return u
}

// WebsiteHost returns the lowercase website host without a "www." prefix.
func (d BusinessDescriptor) WebsiteHost() string {
	u := d.WebsiteURL()
	if u == nil {
		return ""
	}
	return NormalizeHost(u.Hostname())
}

// NormalizeHost lowercases a hostname and strips a leading "www.".
func NormalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
