// Package transport fetches catalog pages from a rate-limiting site.
//
// A Transport holds one session at a time: a colly collector with its own
// cookie jar and one browser identity. Requests are paced with random delays
// and retried with retry-go. A 403 or a detected block page discards the
// session so the next attempt presents a new identity. Pages can be routed
// through a relay service or a plain HTTP proxy.
package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/JakeFAU/classical-corpus/internal/extract"
	"github.com/JakeFAU/classical-corpus/internal/identity"
	"github.com/JakeFAU/classical-corpus/internal/metrics"
)

// Transport fetches pages and extracts their passage pairs.
// It is not safe for concurrent use.
type Transport struct {
	cfg      Config
	pool     *identity.Pool
	metrics  *metrics.Recorder
	logger   *zap.Logger
	pauser   Pauser
	rng      *rand.Rand
	detector *BlockDetector
	limiter  *siteLimiter

	session *session
	resets  int
}

// Option customizes a Transport.
type Option func(*Transport)

// WithPauser replaces the timer used for pacing.
func WithPauser(p Pauser) Option {
	return func(t *Transport) {
		t.pauser = p
	}
}

// WithRand sets the source for pacing and backoff jitter.
func WithRand(r *rand.Rand) Option {
	return func(t *Transport) {
		t.rng = r
	}
}

// New builds a Transport. A relay takes precedence over a proxy.
func New(cfg Config, pool *identity.Pool, recorder *metrics.Recorder, logger *zap.Logger, opts ...Option) (*Transport, error) {
	if pool == nil {
		return nil, errors.New("identity pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Relay.Enabled() && cfg.Proxy != "" {
		logger.Warn("relay and proxy both configured, ignoring proxy",
			zap.String("relay", cfg.Relay.Service), zap.String("proxy", cfg.Proxy))
		cfg.Proxy = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	t := &Transport{
		cfg:      cfg,
		pool:     pool,
		metrics:  recorder,
		logger:   logger,
		pauser:   timerPauser{},
		detector: NewBlockDetector(cfg.Markers, cfg.BlockSelectors, cfg.BlockKeywords),
		limiter:  newSiteLimiter(cfg.MaxRate, recorder),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.rng == nil {
		t.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) // #nosec G404 -- jitter only.
	}
	return t, nil
}

// Resets reports how many sessions were discarded after a block or connection error.
func (t *Transport) Resets() int {
	return t.resets
}

// Fetch retrieves pageURL and returns its passage pairs, possibly none.
// It returns an error wrapping ErrNotFound for a 404, ErrAttemptsExhausted
// once the attempt budget is spent, or the context's error on cancellation.
func (t *Transport) Fetch(ctx context.Context, pageURL string) ([]extract.Pair, error) {
	var (
		pairs    []extract.Pair
		attempts int
	)
	err := retry.Do(
		func() error {
			attempts++
			var err error
			pairs, err = t.attempt(ctx, pageURL, attempts)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(t.cfg.MaxAttempts)), // #nosec G115 -- validated positive.
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return ctx.Err() == nil && !errors.Is(err, ErrNotFound)
		}),
		retry.DelayType(t.backoff),
		retry.OnRetry(func(n uint, err error) {
			if int(n)+1 >= t.cfg.MaxAttempts { // #nosec G115
				return
			}
			t.metrics.ObserveRetry()
			t.logger.Warn("retrying page",
				zap.String("url", pageURL),
				zap.Uint("attempt", n+1),
				zap.Error(err))
		}),
	)
	switch {
	case err == nil:
		return pairs, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, ErrNotFound):
		return nil, err
	default:
		return nil, fmt.Errorf("%w after %d attempts: %w", ErrAttemptsExhausted, attempts, err)
	}
}

func (t *Transport) attempt(ctx context.Context, pageURL string, attempt int) ([]extract.Pair, error) {
	t.pauser.Pause(ctx, t.sample(t.pacing()))
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.limiter.Wait(ctx, pageURL); err != nil {
		return nil, err
	}

	sess, err := t.currentSession()
	if err != nil {
		return nil, err
	}
	target, hdr, err := t.prepare(sess, pageURL)
	if err != nil {
		return nil, err
	}
	log := t.logger.With(
		zap.String("url", pageURL),
		zap.Int("attempt", attempt),
		zap.String("identity", sess.profile.Name()),
		zap.String("route", sess.route))

	t.metrics.ObserveRequest(pageURL, sess.route)
	status, body, err := sess.get(ctx, target, hdr)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The abandoned request may still be running on this session.
			t.session = nil
			return nil, ctxErr
		}
		if isTimeout(err) {
			log.Warn("request timed out", zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		log.Warn("connection failed", zap.Error(err))
		t.reset()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	t.metrics.ObserveResponse(status)
	switch status {
	case http.StatusOK:
		if t.detector.IsBlockPage(body) {
			log.Warn("block page detected")
			return nil, t.blocked()
		}
		pairs := extract.ExtractWith(body, t.cfg.Markers)
		log.Debug("page fetched", zap.Int("pairs", len(pairs)))
		return pairs, nil
	case http.StatusForbidden:
		log.Warn("request blocked", zap.Int("status", status))
		return nil, t.blocked()
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", pageURL, ErrNotFound)
	default:
		log.Warn("unexpected status", zap.Int("status", status))
		return nil, &StatusError{Code: status}
	}
}

// prepare resolves the request destination and headers for one attempt.
func (t *Transport) prepare(sess *session, pageURL string) (string, http.Header, error) {
	hdr := sess.profile.Header()
	if !t.cfg.Relay.Enabled() {
		if ref := parentURL(pageURL); ref != "" {
			hdr.Set("Referer", ref)
		}
		return pageURL, hdr, nil
	}
	target, err := relayURL(t.cfg.Relay, pageURL)
	if err != nil {
		return "", nil, err
	}
	return target, hdr, nil
}

func (t *Transport) currentSession() (*session, error) {
	if t.session != nil {
		return t.session, nil
	}
	sess, err := newSession(t.cfg, t.pool.Pick())
	if err != nil {
		return nil, err
	}
	t.logger.Debug("session started", zap.String("identity", sess.profile.Name()), zap.String("route", sess.route))
	t.session = sess
	return sess, nil
}

func (t *Transport) blocked() error {
	t.metrics.ObserveBlock()
	t.reset()
	return ErrBlocked
}

// reset discards the session so the next attempt picks a new identity.
func (t *Transport) reset() {
	t.session = nil
	t.resets++
	t.metrics.ObserveReset()
}

func (t *Transport) pacing() Range {
	if t.cfg.Relay.Enabled() {
		return t.cfg.RelayPacing
	}
	return t.cfg.DirectPacing
}

func (t *Transport) backoff(_ uint, err error, _ *retry.Config) time.Duration {
	switch {
	case errors.Is(err, ErrBlocked):
		return t.sample(t.cfg.BlockBackoff)
	case errors.Is(err, ErrConnection):
		return t.cfg.ConnectionBackoff
	case errors.Is(err, ErrTimeout):
		return t.cfg.TimeoutBackoff
	default:
		return t.cfg.StatusBackoff
	}
}

func (t *Transport) sample(r Range) time.Duration {
	if r.Max <= r.Min {
		return r.Min
	}
	return r.Min + time.Duration(t.rng.Int64N(int64(r.Max-r.Min)+1))
}
