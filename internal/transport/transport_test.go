package transport

import (
	"context"
	"math/rand/v2"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/extract"
	"github.com/JakeFAU/classical-corpus/internal/identity"
	"github.com/JakeFAU/classical-corpus/internal/metrics"
)

const passagePage = `<html><body><table>
<tr><td class="ctext">子曰：學而時習之</td><td class="etext">The Master said, learn and practise.</td></tr>
</table></body></html>`

const blockPage = `<html><head><title>Access Denied</title></head>
<body><p>Too many requests from your network.</p></body></html>`

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.DirectPacing = Range{}
	cfg.RelayPacing = Range{}
	cfg.BlockBackoff = Range{}
	cfg.StatusBackoff = 0
	cfg.TimeoutBackoff = 0
	cfg.ConnectionBackoff = 0
	return cfg
}

func testPool(t *testing.T) *identity.Pool {
	t.Helper()
	pool, err := identity.NewPool([]identity.Profile{
		identity.NewProfile("test-browser", map[string]string{
			"User-Agent":      "Mozilla/5.0 test-browser",
			"Accept-Language": "en-US,en;q=0.9",
		}),
	}, rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	return pool
}

func newTestTransport(t *testing.T, cfg Config, rec *metrics.Recorder) *Transport {
	t.Helper()
	tr, err := New(cfg, testPool(t), rec, zap.NewNop(), WithRand(rand.New(rand.NewPCG(3, 4))))
	require.NoError(t, err)
	return tr
}

func TestFetchRetriesAfterBlock(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)

	rec := metrics.NewRecorder()
	tr := newTestTransport(t, testConfig(), rec)

	pairs, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, extract.Pair{Source: "子曰：學而時習之", Target: "The Master said, learn and practise."}, pairs[0])
	assert.Equal(t, 1, tr.Resets())
	assert.EqualValues(t, 2, hits.Load())

	expected := `
# HELP corpus_session_resets_total Total number of transport sessions discarded for a fresh identity.
# TYPE corpus_session_resets_total counter
corpus_session_resets_total 1
# HELP corpus_retries_total Total number of retried page fetch attempts.
# TYPE corpus_retries_total counter
corpus_retries_total 1
`
	require.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected),
		"corpus_session_resets_total", "corpus_retries_total"))
}

func TestFetchBlockPageTriggersReset(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			_, _ = w.Write([]byte(blockPage))
			return
		}
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)

	tr := newTestTransport(t, testConfig(), nil)
	pairs, err := tr.Fetch(context.Background(), srv.URL+"/mengzi/liang-hui-wang-i")
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
	assert.Equal(t, 1, tr.Resets())
}

func TestFetchNotFoundIsTerminal(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.NotFound(w, nil)
	}))
	t.Cleanup(srv.Close)

	tr := newTestTransport(t, testConfig(), nil)
	_, err := tr.Fetch(context.Background(), srv.URL+"/analects/missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, ErrAttemptsExhausted)
	assert.EqualValues(t, 1, hits.Load())
	assert.Zero(t, tr.Resets())
}

func TestFetchExhaustsAttemptsOnServerError(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	tr := newTestTransport(t, testConfig(), nil)
	_, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
	require.ErrorIs(t, err, ErrAttemptsExhausted)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.Code)
	assert.EqualValues(t, 3, hits.Load())
	assert.Zero(t, tr.Resets(), "plain status errors keep the session")
}

func TestFetchExhaustedBlocksWrapErrBlocked(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.MaxAttempts = 2
	tr := newTestTransport(t, cfg, nil)
	_, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, ErrBlocked)
	assert.Equal(t, 2, tr.Resets())
}

func TestFetchConnectionErrorResetsSession(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	tr := newTestTransport(t, testConfig(), nil)
	_, err = tr.Fetch(context.Background(), "http://"+addr+"/analects/xue-er")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, ErrConnection)
	assert.Equal(t, 3, tr.Resets())
}

func TestFetchTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Timeout = 50 * time.Millisecond
	cfg.MaxAttempts = 2
	tr := newTestTransport(t, cfg, nil)

	_, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
	require.ErrorIs(t, err, ErrAttemptsExhausted)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, tr.Resets())
}

func TestFetchDirectSendsIdentityAndReferer(t *testing.T) {
	t.Parallel()

	type seen struct{ ua, referer, lang string }
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- seen{r.UserAgent(), r.Referer(), r.Header.Get("Accept-Language")}
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)

	tr := newTestTransport(t, testConfig(), nil)
	_, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
	require.NoError(t, err)

	s := <-got
	assert.Equal(t, "Mozilla/5.0 test-browser", s.ua)
	assert.Equal(t, srv.URL+"/analects", s.referer)
	assert.Equal(t, "en-US,en;q=0.9", s.lang)
}

func TestFetchThroughRelay(t *testing.T) {
	t.Parallel()

	const target = "https://ctext.org/analects/xue-er"
	got := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Clone(context.Background())
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig()
	cfg.Relay = Relay{Service: "scraperapi", Key: "secret", Endpoint: srv.URL + "/relay"}
	rec := metrics.NewRecorder()
	tr := newTestTransport(t, cfg, rec)

	pairs, err := tr.Fetch(context.Background(), target)
	require.NoError(t, err)
	assert.Len(t, pairs, 1)

	r := <-got
	assert.Equal(t, "/relay", r.URL.Path)
	assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
	assert.Equal(t, target, r.URL.Query().Get("url"))
	assert.Empty(t, r.Referer(), "relay requests carry no referer")
	n, err := testutil.GatherAndCount(rec.Registry(), "corpus_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFetchThroughProxy(t *testing.T) {
	t.Parallel()

	got := make(chan string, 1)
	proxy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.URL.Host
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(proxy.Close)

	u, err := url.Parse(proxy.URL)
	require.NoError(t, err)
	cfg := testConfig()
	cfg.Proxy = u.Host
	tr := newTestTransport(t, cfg, nil)

	pairs, err := tr.Fetch(context.Background(), "http://ctext.test/analects/xue-er")
	require.NoError(t, err)
	assert.Len(t, pairs, 1)
	assert.Equal(t, "ctext.test", <-got)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	tr := newTestTransport(t, testConfig(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	start := time.Now()
	_, err := tr.Fetch(ctx, srv.URL+"/analects/xue-er")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrAttemptsExhausted)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchCanceledBeforeStart(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := newTestTransport(t, testConfig(), nil)
	_, err := tr.Fetch(ctx, srv.URL+"/analects/xue-er")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits.Load())
}

func TestNewRelayOverridesProxy(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Relay = Relay{Service: "zenrows", Key: "k"}
	cfg.Proxy = "127.0.0.1:8080"
	tr := newTestTransport(t, cfg, nil)
	assert.Empty(t, tr.cfg.Proxy)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*Config){
		"zero attempts":   func(c *Config) { c.MaxAttempts = 0 },
		"unknown relay":   func(c *Config) { c.Relay = Relay{Service: "nope", Key: "k"} },
		"relay no key":    func(c *Config) { c.Relay = Relay{Service: "scrapedo"} },
		"bad proxy":       func(c *Config) { c.Proxy = "no-port" },
		"inverted pacing": func(c *Config) { c.DirectPacing = Range{Min: time.Second} },
		"missing markers": func(c *Config) { c.Markers = extract.Markers{} },
		"negative rate":   func(c *Config) { c.MaxRate = -0.5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			mutate(&cfg)
			_, err := New(cfg, testPool(t), nil, nil)
			assert.Error(t, err)
		})
	}

	_, err := New(testConfig(), nil, nil, nil)
	assert.Error(t, err)
}

func TestFetchRespectsMaxRate(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(passagePage))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxRate = 20
	tr := newTestTransport(t, cfg, nil)

	start := time.Now()
	for range 3 {
		pairs, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
		require.NoError(t, err)
		require.Len(t, pairs, 1)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}
