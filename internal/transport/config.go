package transport

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/JakeFAU/classical-corpus/internal/extract"
)

// Range is an inclusive duration interval sampled uniformly.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Relay selects a third-party fetch relay.
type Relay struct {
	Service string
	Key     string
	// Endpoint overrides the service's default endpoint.
	Endpoint string
}

// Enabled reports whether a relay service is selected.
func (r Relay) Enabled() bool {
	return r.Service != ""
}

// Config controls one Transport.
type Config struct {
	MaxAttempts int
	Timeout     time.Duration

	DirectPacing Range
	RelayPacing  Range
	// MaxRate caps requests per second per site. Zero means no cap.
	MaxRate float64

	BlockBackoff      Range
	StatusBackoff     time.Duration
	TimeoutBackoff    time.Duration
	ConnectionBackoff time.Duration

	Relay Relay
	// Proxy is a host:port used when no relay is configured.
	Proxy string

	BlockKeywords  []string
	BlockSelectors []string
	Markers        extract.Markers
}

// DefaultConfig returns the settings used against ctext.org.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		Timeout:           30 * time.Second,
		DirectPacing:      Range{Min: 500 * time.Millisecond, Max: 1500 * time.Millisecond},
		RelayPacing:       Range{Min: 300 * time.Millisecond, Max: 800 * time.Millisecond},
		BlockBackoff:      Range{Min: 3 * time.Second, Max: 5 * time.Second},
		StatusBackoff:     2 * time.Second,
		TimeoutBackoff:    2 * time.Second,
		ConnectionBackoff: 3 * time.Second,
		BlockKeywords:     DefaultBlockKeywords(),
		BlockSelectors:    DefaultBlockSelectors(),
		Markers:           extract.DefaultMarkers,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.MaxRate < 0 {
		errs = append(errs, errors.New("max rate must not be negative"))
	}
	for name, r := range map[string]Range{
		"direct pacing": c.DirectPacing,
		"relay pacing":  c.RelayPacing,
		"block backoff": c.BlockBackoff,
	} {
		if r.Min < 0 || r.Max < r.Min {
			errs = append(errs, fmt.Errorf("%s range %s-%s is invalid", name, r.Min, r.Max))
		}
	}
	if c.Relay.Enabled() {
		if _, ok := relayServices[c.Relay.Service]; !ok {
			errs = append(errs, fmt.Errorf("unknown relay service %q (supported: %s)",
				c.Relay.Service, strings.Join(RelayServices(), ", ")))
		}
		if c.Relay.Key == "" {
			errs = append(errs, errors.New("relay key is required"))
		}
	}
	if c.Proxy != "" {
		if _, _, err := net.SplitHostPort(c.Proxy); err != nil {
			errs = append(errs, fmt.Errorf("proxy must be host:port: %w", err))
		}
	}
	if c.Markers.Source == "" || c.Markers.Target == "" {
		errs = append(errs, errors.New("both cell markers are required"))
	}
	return errors.Join(errs...)
}

type relayService struct {
	endpoint string
	keyParam string
	urlParam string
}

var relayServices = map[string]relayService{
	"scraperapi": {endpoint: "https://api.scraperapi.com/", keyParam: "api_key", urlParam: "url"},
	"scrapedo":   {endpoint: "https://api.scrape.do/", keyParam: "token", urlParam: "url"},
	"zenrows":    {endpoint: "https://api.zenrows.com/v1/", keyParam: "apikey", urlParam: "url"},
}

// RelayServices lists the supported relay names.
func RelayServices() []string {
	names := make([]string, 0, len(relayServices))
	for name := range relayServices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// relayURL rewrites a target URL into a request against the relay endpoint.
func relayURL(r Relay, target string) (string, error) {
	svc, ok := relayServices[r.Service]
	if !ok {
		return "", fmt.Errorf("unknown relay service %q", r.Service)
	}
	endpoint := svc.endpoint
	if r.Endpoint != "" {
		endpoint = r.Endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse relay endpoint: %w", err)
	}
	q := u.Query()
	q.Set(svc.keyParam, r.Key)
	q.Set(svc.urlParam, target)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// parentURL drops the last path segment: https://ctext.org/analects/xue-er
// becomes https://ctext.org/analects.
func parentURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	p := strings.TrimSuffix(u.Path, "/")
	if i := strings.LastIndex(p, "/"); i >= 0 {
		p = p[:i]
	}
	u.Path = p
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
