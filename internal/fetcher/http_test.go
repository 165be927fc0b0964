package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/menu-cli/internal/model"
)

var testAgents = []string{"agent-a", "agent-b", "agent-c"}

func newTestFetcher() *HTTPFetcher {
	return NewHTTPFetcher(HTTPOptions{
		UserAgents:  testAgents,
		Timeout:     5 * time.Second,
		MaxAttempts: 3,
		RatePerHost: 1000,
	})
}

func TestFetchHTML(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "agent-a", r.Header.Get("User-Agent"))
		assert.Contains(t, r.Header.Get("Accept"), "text/html")
		assert.Equal(t, "en-US,en;q=0.9", r.Header.Get("Accept-Language"))
		assert.NotEmpty(t, r.Header.Get("Referer"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<html><body><h1>Menu</h1></body></html>"))
	}))
	defer srv.Close()

	p, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/menu")
	require.NoError(t, err)
	assert.Equal(t, KindHTML, p.Kind)
	assert.Equal(t, http.StatusOK, p.Status)
	assert.Equal(t, srv.URL+"/menu", p.URL)
	assert.Contains(t, string(p.Body), "<h1>Menu</h1>")
}

func TestFetchRetriesAndRotatesUserAgent(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents = append(agents, r.Header.Get("User-Agent"))
		n := len(agents)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 ..."))
	}))
	defer srv.Close()

	p, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/menu.pdf")
	require.NoError(t, err)
	assert.Equal(t, KindPDF, p.Kind)
	assert.Equal(t, testAgents, agents)
}

func TestFetchGivesUpAfterThreeAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgents: testAgents, MaxAttempts: 7, RatePerHost: 1000})
	_, err := f.Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchNotFoundIsNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.NotFound(w, nil)
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/menus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/menu", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/food-menu", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/food-menu", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p, err := newTestFetcher().Fetch(context.Background(), srv.URL+"/menu")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/food-menu", p.URL)
	assert.Equal(t, srv.URL+"/menu", p.RequestURL)
}

func TestFetchCloudflareWall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("cf-ray", "abc123")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("Checking your browser before accessing"))
	}))
	defer srv.Close()

	_, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrSourceUnavailable))
	assert.Contains(t, err.Error(), "cloudflare")
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchDecodesCharset(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<html><body>Caf\xe9 Latte 4</body></html>"))
	}))
	defer srv.Close()

	p, err := newTestFetcher().Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Contains(t, string(p.Body), "Café Latte")
}

func TestFetchInvalidURL(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"", "ftp://x.example/menu", "not a url"} {
		_, err := newTestFetcher().Fetch(context.Background(), raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, model.ErrSourceUnavailable), raw)
	}
}

func TestFetchContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestFetcher().Fetch(ctx, srv.URL)
	require.Error(t, err)
}

func TestFetchRateLimitSlowsHost(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	f := newTestFetcher()
	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)

	f.mu.Lock()
	require.Len(t, f.limiters, 1)
	var lim *AdaptiveLimiter
	for _, l := range f.limiters {
		lim = l
	}
	f.mu.Unlock()
	// Halved to 500 on 429, then raised 20% on success.
	assert.InDelta(t, 600.0, float64(lim.Limit()), 0.1)
}

func TestNewHTTPFetcherDefaults(t *testing.T) {
	t.Parallel()

	f := NewHTTPFetcher(HTTPOptions{})
	assert.Equal(t, 20*time.Second, f.opts.Timeout)
	assert.Equal(t, 3, f.opts.MaxAttempts)
	assert.Equal(t, int64(15<<20), f.opts.MaxBodyBytes)
	assert.Len(t, f.opts.UserAgents, 1)
}

// --- AdaptiveLimiter Tests ---

func TestAdaptiveLimiter_OnSuccess_IncreasesRate(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)

	lim.OnSuccess()
	assert.InDelta(t, 12.0, float64(lim.Limit()), 0.1)

	lim.OnSuccess()
	assert.InDelta(t, 14.4, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_OnSuccess_CapsAt2x(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)
	for range 20 {
		lim.OnSuccess()
	}
	assert.InDelta(t, 20.0, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_OnRateLimit_FloorAtQuarter(t *testing.T) {
	lim := NewAdaptiveLimiter(10, 10)

	lim.OnRateLimit("x.example")
	assert.InDelta(t, 5.0, float64(lim.Limit()), 0.1)

	for range 10 {
		lim.OnRateLimit("x.example")
	}
	assert.InDelta(t, 2.5, float64(lim.Limit()), 0.1)
}

func TestAdaptiveLimiter_Wait_ContextCancelled(t *testing.T) {
	lim := NewAdaptiveLimiter(0.001, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, lim.Wait(ctx))
}
