package transport

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, delay)
}

func (p *recordingPauser) recorded() []time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Duration(nil), p.delays...)
}

func pacedConfig() Config {
	cfg := DefaultConfig()
	cfg.Timeout = 2 * time.Second
	return cfg
}

func TestFetchPacingDependsOnRoute(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(passagePage))
	}))
	t.Cleanup(srv.Close)

	relayed := pacedConfig()
	relayed.Relay = Relay{Service: "scraperapi", Key: "secret", Endpoint: srv.URL + "/relay"}

	tests := []struct {
		name     string
		cfg      Config
		min, max time.Duration
	}{
		{name: "direct", cfg: pacedConfig(), min: 500 * time.Millisecond, max: 1500 * time.Millisecond},
		{name: "relay", cfg: relayed, min: 300 * time.Millisecond, max: 800 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pauser := &recordingPauser{}
			tr, err := New(tt.cfg, testPool(t), nil, zap.NewNop(),
				WithPauser(pauser), WithRand(rand.New(rand.NewPCG(5, 6))))
			require.NoError(t, err)

			for range 5 {
				_, err := tr.Fetch(context.Background(), srv.URL+"/analects/xue-er")
				require.NoError(t, err)
			}

			delays := pauser.recorded()
			require.Len(t, delays, 5, "one pause per attempt")
			for _, d := range delays {
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, tt.max)
			}
		})
	}
}

func TestBackoffByFailureKind(t *testing.T) {
	t.Parallel()

	tr := newTestTransport(t, pacedConfig(), nil)

	tests := []struct {
		name     string
		err      error
		min, max time.Duration
	}{
		{name: "blocked", err: fmt.Errorf("%w: 403", ErrBlocked), min: 3 * time.Second, max: 5 * time.Second},
		{name: "status", err: &StatusError{Code: http.StatusServiceUnavailable}, min: 2 * time.Second, max: 2 * time.Second},
		{name: "timeout", err: fmt.Errorf("%w: deadline", ErrTimeout), min: 2 * time.Second, max: 2 * time.Second},
		{name: "connection", err: fmt.Errorf("%w: refused", ErrConnection), min: 3 * time.Second, max: 3 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for range 20 {
				d := tr.backoff(0, tt.err, nil)
				assert.GreaterOrEqual(t, d, tt.min)
				assert.LessOrEqual(t, d, tt.max)
			}
		})
	}
}
