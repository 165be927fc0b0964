package fetcher

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Memo de-duplicates fetches of the same URL within one pipeline run.
// Create one per run; it must not be shared across runs.
type Memo struct {
	next  Fetcher
	group singleflight.Group

	mu   sync.Mutex
	done map[string]memoEntry
}

type memoEntry struct {
	payload *Payload
	err     error
}

// NewMemo wraps next with a per-run cache.
func NewMemo(next Fetcher) *Memo {
	return &Memo{next: next, done: make(map[string]memoEntry)}
}

// Fetch returns the cached result for rawURL or fetches it once.
func (m *Memo) Fetch(ctx context.Context, rawURL string) (*Payload, error) {
	m.mu.Lock()
	if e, ok := m.done[rawURL]; ok {
		m.mu.Unlock()
		return e.payload, e.err
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(rawURL, func() (any, error) {
		m.mu.Lock()
		if e, ok := m.done[rawURL]; ok {
			m.mu.Unlock()
			return e.payload, e.err
		}
		m.mu.Unlock()

		p, err := m.next.Fetch(ctx, rawURL)
		// Context errors are not cached so a later caller with time left can retry.
		if ctx.Err() == nil {
			m.mu.Lock()
			m.done[rawURL] = memoEntry{payload: p, err: err}
			m.mu.Unlock()
		}
		return p, err
	})
	p, _ := v.(*Payload)
	return p, err
}
