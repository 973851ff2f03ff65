package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/classical-corpus/internal/identity"
)

const (
	routeDirect = "direct"
	routeProxy  = "proxy"
	routeRelay  = "relay"

	responseKey = "response"
)

// session is one collector with its own cookie jar, bound to one identity.
type session struct {
	collector *colly.Collector
	profile   identity.Profile
	route     string
}

func newSession(cfg Config, profile identity.Profile) (*session, error) {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.IgnoreRobotsTxt = true
	c.ParseHTTPErrorResponse = true
	c.UserAgent = profile.UserAgent()
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	route := routeDirect
	switch {
	case cfg.Relay.Enabled():
		route = routeRelay
	case cfg.Proxy != "":
		if err := c.SetProxy("http://" + cfg.Proxy); err != nil {
			return nil, fmt.Errorf("configure proxy %s: %w", cfg.Proxy, err)
		}
		route = routeProxy
	}

	c.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(responseKey, r)
	})

	return &session{collector: c, profile: profile, route: route}, nil
}

// get issues one GET and returns the status and body. Non-2xx statuses are
// returned as responses, not errors.
func (s *session) get(ctx context.Context, target string, hdr http.Header) (int, []byte, error) {
	rctx := colly.NewContext()
	done := make(chan error, 1)
	go func() {
		done <- s.collector.Request(http.MethodGet, target, nil, rctx, hdr)
	}()

	select {
	case <-ctx.Done():
		return 0, nil, fmt.Errorf("request canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return 0, nil, err
		}
	}
	resp, ok := rctx.GetAny(responseKey).(*colly.Response)
	if !ok {
		return 0, nil, errors.New("no response received")
	}
	return resp.StatusCode, resp.Body, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
