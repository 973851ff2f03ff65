// Package metrics exposes Prometheus collectors for corpus acquisition runs.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Page outcomes recorded by ObservePage.
const (
	PageFetched  = "fetched"
	PageSkipped  = "skipped"
	PageConflict = "conflict"
	PageEmpty    = "empty"
	PageNotFound = "not_found"
	PageFailed   = "failed"
)

// Recorder owns one registry per run so several runs (or tests) never share counters.
// All methods are safe on a nil Recorder.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal  *prometheus.CounterVec
	responsesTotal *prometheus.CounterVec
	blocksTotal    prometheus.Counter
	resetsTotal    prometheus.Counter
	retriesTotal   prometheus.Counter
	pagesTotal     *prometheus.CounterVec
	passagesTotal  *prometheus.CounterVec
	rateLimitDelay *prometheus.HistogramVec
}

// NewRecorder builds a Recorder with a fresh registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_requests_total",
				Help: "Total number of page requests sent, labeled by site and route (direct, proxy or relay).",
			},
			[]string{"site", "route"},
		),
		responsesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_responses_total",
				Help: "Total number of page responses, labeled by status class.",
			},
			[]string{"status_class"},
		),
		blocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpus_blocked_responses_total",
			Help: "Total number of responses treated as a block (403 or block page).",
		}),
		resetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpus_session_resets_total",
			Help: "Total number of transport sessions discarded for a fresh identity.",
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "corpus_retries_total",
			Help: "Total number of retried page fetch attempts.",
		}),
		pagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_pages_total",
				Help: "Total number of catalog pages processed, labeled by work and outcome.",
			},
			[]string{"work", "outcome"},
		),
		passagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "corpus_passages_total",
				Help: "Total number of passages acquired, labeled by work.",
			},
			[]string{"work"},
		),
		rateLimitDelay: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "corpus_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-site request rate cap.",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
			},
			[]string{"site"},
		),
	}
	r.registry.MustRegister(
		r.requestsTotal,
		r.responsesTotal,
		r.blocksTotal,
		r.resetsTotal,
		r.retriesTotal,
		r.pagesTotal,
		r.passagesTotal,
		r.rateLimitDelay,
	)
	return r
}

// Registry exposes the underlying registry for gathering.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// ObserveRequest counts an outgoing request.
func (r *Recorder) ObserveRequest(rawURL, route string) {
	if r == nil {
		return
	}
	r.requestsTotal.WithLabelValues(SanitizeSite(rawURL), route).Inc()
}

// ObserveResponse counts a response by status class.
func (r *Recorder) ObserveResponse(code int) {
	if r == nil {
		return
	}
	r.responsesTotal.WithLabelValues(ClassifyStatus(code)).Inc()
}

// ObserveBlock counts a block signal.
func (r *Recorder) ObserveBlock() {
	if r == nil {
		return
	}
	r.blocksTotal.Inc()
}

// ObserveReset counts a discarded session.
func (r *Recorder) ObserveReset() {
	if r == nil {
		return
	}
	r.resetsTotal.Inc()
}

// ObserveRetry counts a retried attempt.
func (r *Recorder) ObserveRetry() {
	if r == nil {
		return
	}
	r.retriesTotal.Inc()
}

// ObservePage counts a processed catalog page.
func (r *Recorder) ObservePage(work, outcome string) {
	if r == nil {
		return
	}
	r.pagesTotal.WithLabelValues(work, outcome).Inc()
}

// ObservePassages adds acquired passages for a work.
func (r *Recorder) ObservePassages(work string, n int) {
	if r == nil || n <= 0 {
		return
	}
	r.passagesTotal.WithLabelValues(work).Add(float64(n))
}

// ObserveRateLimitDelay records time spent waiting for a site's rate cap.
func (r *Recorder) ObserveRateLimitDelay(site string, d time.Duration) {
	if r == nil {
		return
	}
	r.rateLimitDelay.WithLabelValues(site).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// SanitizeSite extracts a lowercase hostname, or "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ClassifyStatus groups HTTP status codes.
func ClassifyStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "other"
	}
}
