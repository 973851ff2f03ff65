// Package identity supplies browser-like request header profiles.
package identity

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"sync"
)

// Profile is an immutable set of headers mimicking one real browser.
type Profile struct {
	name   string
	header http.Header
}

// NewProfile builds a profile from header values.
func NewProfile(name string, values map[string]string) Profile {
	h := make(http.Header, len(values))
	for k, v := range values {
		h.Set(k, v)
	}
	return Profile{name: name, header: h}
}

// Name labels the profile in logs.
func (p Profile) Name() string {
	return p.name
}

// UserAgent returns the profile's User-Agent header.
func (p Profile) UserAgent() string {
	return p.header.Get("User-Agent")
}

// Header returns a copy of the profile headers that callers may modify.
func (p Profile) Header() http.Header {
	return p.header.Clone()
}

const (
	chromeAccept  = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"
	chromeSecChUa = `"Chromium";v="122", "Not(A:Brand";v="24", "Google Chrome";v="122"`
)

// DefaultProfiles returns the built-in desktop browser profiles.
// Accept-Encoding is left to the HTTP transport so responses are decoded transparently.
func DefaultProfiles() []Profile {
	return []Profile{
		NewProfile("chrome-macos", map[string]string{
			"User-Agent":                "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			"Accept":                    chromeAccept,
			"Accept-Language":           "en-US,en;q=0.9",
			"Cache-Control":             "max-age=0",
			"Sec-Ch-Ua":                 chromeSecChUa,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"macOS"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "same-origin",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		}),
		NewProfile("chrome-windows", map[string]string{
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
			"Accept":                    chromeAccept,
			"Accept-Language":           "en-US,en;q=0.9",
			"Cache-Control":             "max-age=0",
			"Sec-Ch-Ua":                 chromeSecChUa,
			"Sec-Ch-Ua-Mobile":          "?0",
			"Sec-Ch-Ua-Platform":        `"Windows"`,
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "same-origin",
			"Sec-Fetch-User":            "?1",
			"Upgrade-Insecure-Requests": "1",
		}),
		NewProfile("safari-macos", map[string]string{
			"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		}),
		NewProfile("firefox-windows", map[string]string{
			"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:123.0) Gecko/20100101 Firefox/123.0",
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-US,en;q=0.5",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "same-origin",
			"Sec-Fetch-User":            "?1",
		}),
	}
}

// Pool hands out profiles at random. It is safe for concurrent use.
type Pool struct {
	mu       sync.Mutex
	profiles []Profile
	rng      *rand.Rand
}

// NewPool builds a pool. A nil rng uses a randomly seeded source.
func NewPool(profiles []Profile, rng *rand.Rand) (*Pool, error) {
	if len(profiles) == 0 {
		return nil, errors.New("identity pool needs at least one profile")
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) // #nosec G404 -- header rotation, not security.
	}
	return &Pool{
		profiles: append([]Profile(nil), profiles...),
		rng:      rng,
	}, nil
}

// Pick returns one profile chosen uniformly at random.
func (p *Pool) Pick() Profile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.profiles[p.rng.IntN(len(p.profiles))]
}

// Len reports how many profiles the pool holds.
func (p *Pool) Len() int {
	return len(p.profiles)
}
