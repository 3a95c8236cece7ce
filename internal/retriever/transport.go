package retriever

import (
	"errors"
	"io"
	"net/http"
	"time"
)

const (
	defaultTimeout  = 5 * time.Minute
	defaultRetryMax = 2
)

// Transport adds a fixed user agent and bounded retries to a base
// RoundTripper. Only replayable requests (GET/HEAD without a body) are
// retried.
type Transport struct {
	Base http.RoundTripper

	// UserAgent is set on requests that do not carry one.
	UserAgent string

	// RetryMax is the number of retries after the first attempt.
	RetryMax int

	// Backoff is the pause before retry n (1-based) is Backoff*n.
	Backoff time.Duration
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 && t.Backoff > 0 {
			select {
			case <-req.Context().Done():
				return nil, lastErr
			case <-time.After(t.Backoff * time.Duration(attempt)):
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}

		resp, err := base.RoundTrip(r)
		if err == nil {
			if attempt < max && retryableStatus(resp.StatusCode) {
				_, _ = io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				lastErr = errors.New(resp.Status)
				continue
			}
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// NewClient builds the HTTP client used for source downloads and catalog
// calls.
func NewClient(userAgent string) *http.Client {
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	}
	return &http.Client{
		Transport: &Transport{
			Base:      base,
			UserAgent: userAgent,
			RetryMax:  defaultRetryMax,
			Backoff:   time.Second,
		},
		Timeout: defaultTimeout,
	}
}
