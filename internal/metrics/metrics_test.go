package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard https", "https://CText.org/analects", "ctext.org"},
		{"no scheme", "ctext.org/mengzi", "ctext.org"},
		{"host with port", "localhost:8080", "localhost"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	assert.Equal(t, "2xx", ClassifyStatus(200))
	assert.Equal(t, "3xx", ClassifyStatus(302))
	assert.Equal(t, "4xx", ClassifyStatus(403))
	assert.Equal(t, "5xx", ClassifyStatus(503))
	assert.Equal(t, "other", ClassifyStatus(0))
}

func TestRecorderCounts(t *testing.T) {
	r := NewRecorder()

	r.ObserveRequest("https://ctext.org/analects", "direct")
	r.ObserveRequest("https://ctext.org/mengzi", "direct")
	r.ObserveResponse(403)
	r.ObserveBlock()
	r.ObserveReset()
	r.ObserveRetry()
	r.ObservePage("analects", PageFetched)
	r.ObservePassages("analects", 16)
	r.ObservePassages("analects", 0)

	assert.InDelta(t, 2, testutil.ToFloat64(r.requestsTotal.WithLabelValues("ctext.org", "direct")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.responsesTotal.WithLabelValues("4xx")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.blocksTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.resetsTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.retriesTotal), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.pagesTotal.WithLabelValues("analects", PageFetched)), 0)
	assert.InDelta(t, 16, testutil.ToFloat64(r.passagesTotal.WithLabelValues("analects")), 0)

	r.ObserveRateLimitDelay("ctext.org", 200*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(r.rateLimitDelay, "corpus_rate_limit_delay_seconds"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder
	r.ObserveRequest("https://ctext.org", "relay")
	r.ObserveResponse(200)
	r.ObserveBlock()
	r.ObserveReset()
	r.ObserveRetry()
	r.ObservePage("w", PageFailed)
	r.ObservePassages("w", 3)
	r.ObserveRateLimitDelay("ctext.org", time.Second)
	assert.Nil(t, r.Registry())
	assert.NoError(t, r.WriteTextfile("/nonexistent/metrics.prom"))
}

func TestWriteTextfile(t *testing.T) {
	r := NewRecorder()
	r.ObserveRetry()

	path := filepath.Join(t.TempDir(), "corpus.prom")
	require.NoError(t, r.WriteTextfile(path))

	// #nosec G304 -- test reads from the controlled temp directory.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "corpus_retries_total 1")
}
