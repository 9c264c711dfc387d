// Package httpclient is the JSON-over-HTTP client used by API-backed sources.
package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// StatusError is returned for responses with a 4xx/5xx status.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d: %s", e.URL, e.Status, e.Body)
}

// Options configures a Client.
type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
	UserAgent     string
}

// Client issues rate-limited GET requests and decodes JSON bodies.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       logrus.FieldLogger
}

// New creates a client. A non-positive RatePerSecond disables limiting.
func New(opts Options, logger logrus.FieldLogger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	return &Client{
		http:      &http.Client{Timeout: opts.Timeout},
		limiter:   rate.NewLimiter(limit, opts.Burst),
		userAgent: opts.UserAgent,
		log:       logger.WithField("component", "httpclient"),
	}
}

// GetJSON fetches url and decodes the response body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		var uerr *url.Error
		if errors.As(err, &uerr) {
			uerr.URL = redact(req)
		}
		return fmt.Errorf("GET %s: %w", redact(req), err)
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"url":      redact(req),
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("HTTP request completed")

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: redact(req), Status: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", redact(req), err)
	}
	return nil
}

// redact drops the query string so API keys never reach logs or errors.
func redact(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}
