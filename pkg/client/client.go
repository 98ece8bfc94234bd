// Package client provides the HTTP client shared by range fetches and
// thumbnail downloads: a tuned transport, default headers and a retry
// policy for transient failures.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/ytget/mediamux/errs"
	"github.com/ytget/mediamux/internal/logger"
)

const (
	defaultTimeout = 30 * time.Second
	defaultRetries = 3

	userAgentValue = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 3 * time.Second
)

// retryStatusCodes are answered with another attempt.
var retryStatusCodes = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// defaultTransport is a tuned HTTP transport reused across clients.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ResponseHeaderTimeout: 10 * time.Second,
	ForceAttemptHTTP2:     true,
	// Media bodies are already compressed; thumbnails decode their own encoding.
	DisableCompression: true,
	ReadBufferSize:     16 * 1024,
	WriteBufferSize:    16 * 1024,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// Config holds optional client parameters. Zero values use defaults.
type Config struct {
	// Timeout bounds each request including its body. Stream fetches read
	// large bodies, so zero here means no overall timeout for them.
	Timeout   time.Duration
	Retries   int
	UserAgent string
	ProxyURL  string
}

// Client wraps http.Client with retry/backoff and default headers.
type Client struct {
	HTTPClient *http.Client
	Retries    int
	UserAgent  string
}

// New creates a new Client with a tuned Transport, default timeout, and retries.
func New() *Client {
	return &Client{
		HTTPClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: defaultTransport,
		},
		Retries:   defaultRetries,
		UserAgent: userAgentValue,
	}
}

// NewWith creates a new client with provided config. Zero values use defaults,
// except Timeout which stays unbounded. An invalid proxy URL is an error.
func NewWith(cfg Config) (*Client, error) {
	retries := cfg.Retries
	if retries <= 0 {
		retries = defaultRetries
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	tr := defaultTransport.Clone()
	if cfg.ProxyURL != "" {
		proxyFunc, err := proxyFromURLString(cfg.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("proxy: %w", err)
		}
		tr.Proxy = proxyFunc
	}

	return &Client{
		HTTPClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: tr,
		},
		Retries:   retries,
		UserAgent: ua,
	}, nil
}

// Get performs a GET request with Do's retry policy.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) (*http.Response, error) {
	return c.Do(ctx, http.MethodGet, rawURL, header)
}

// Do sends a request, retrying network failures and transient statuses
// (429 and 5xx) with exponential backoff. A 2xx or 3xx response is returned
// with its body open. Any other outcome is a *errs.TransportError.
func (c *Client) Do(ctx context.Context, method, rawURL string, header http.Header) (*http.Response, error) {
	log := logger.WithComponent(logger.ComponentClient)

	retries := c.Retries
	if retries < 1 {
		retries = 1
	}
	ua := c.UserAgent
	if ua == "" {
		ua = userAgentValue
	}

	var lastErr error
	backoff := initialBackoff
	for attempt := 0; attempt < retries; attempt++ {
		if attempt > 0 {
			if err := waitBackoff(ctx, backoff); err != nil {
				return nil, err
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			return nil, &errs.TransportError{URL: rawURL, Err: err}
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", ua)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil, err
			}
			lastErr = &errs.TransportError{URL: rawURL, Err: err}
			log.Debug("Request failed", map[string]interface{}{"attempt": attempt + 1, "err": err.Error()})
			continue
		}
		if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest {
			return resp, nil
		}
		_ = resp.Body.Close()

		lastErr = &errs.TransportError{URL: rawURL, StatusCode: resp.StatusCode}
		if !retryStatusCodes[resp.StatusCode] {
			return nil, lastErr
		}
		log.Debug("Retryable status", map[string]interface{}{"attempt": attempt + 1, "status": resp.StatusCode})
	}
	return nil, lastErr
}

func waitBackoff(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// proxyFromURLString parses a proxy URL and returns a Proxy function.
func proxyFromURLString(raw string) (func(*http.Request) (*url.URL, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid proxy url %q", raw)
	}
	return http.ProxyURL(u), nil
}
