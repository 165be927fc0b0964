package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingFetcher struct {
	calls atomic.Int32
	err   error
}

func (c *countingFetcher) Fetch(_ context.Context, rawURL string) (*Payload, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &Payload{URL: rawURL, Kind: KindHTML}, nil
}

func TestMemoFetchesOnce(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{}
	m := NewMemo(next)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := m.Fetch(context.Background(), "https://x.example/menu")
			assert.NoError(t, err)
			assert.Equal(t, "https://x.example/menu", p.URL)
		}()
	}
	wg.Wait()

	_, err := m.Fetch(context.Background(), "https://x.example/menu")
	require.NoError(t, err)
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = m.Fetch(context.Background(), "https://x.example/drinks")
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestMemoCachesErrors(t *testing.T) {
	t.Parallel()

	next := &countingFetcher{err: errors.New("boom")}
	m := NewMemo(next)

	_, err1 := m.Fetch(context.Background(), "https://x.example/")
	_, err2 := m.Fetch(context.Background(), "https://x.example/")
	assert.Error(t, err1)
	assert.Error(t, err2)
	assert.Equal(t, int32(1), next.calls.Load())
}
