package utils

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"drivefetch/internal"
)

// DefaultMaxRedirects caps the number of hops followed for a single Fetch
const DefaultMaxRedirects = 20

// DefaultUserAgent is sent with every request
const DefaultUserAgent = internal.DefaultUserAgent

// RetryConfig defines retry behavior configuration
type RetryConfig struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	JitterPercent float64
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     1 * time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterPercent: 0.1,
	}
}

// HTTPClientConfig contains configuration for the HTTP client
type HTTPClientConfig struct {
	Timeout      time.Duration
	ProxyURL     string
	UserAgent    string
	MaxRedirects int
	RetryConfig  *RetryConfig
}

// HTTPClient issues GET requests and walks redirect chains by hand so that
// cookies set on intermediate hops are kept for the rest of the session.
type HTTPClient struct {
	client       *http.Client
	userAgent    string
	maxRedirects int
	retryConfig  *RetryConfig
}

// NewHTTPClient creates a new HTTP client with default configuration
func NewHTTPClient() *HTTPClient {
	return NewHTTPClientWithConfig(&HTTPClientConfig{
		RetryConfig: DefaultRetryConfig(),
	})
}

// NewHTTPClientWithConfig creates a new HTTP client with custom configuration
func NewHTTPClientWithConfig(config *HTTPClientConfig) *HTTPClient {
	if config.RetryConfig == nil {
		config.RetryConfig = DefaultRetryConfig()
	}
	if config.RetryConfig.MaxAttempts < 1 {
		config.RetryConfig.MaxAttempts = 1
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.MaxRedirects <= 0 {
		config.MaxRedirects = DefaultMaxRedirects
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false,
		},
	}

	if config.ProxyURL != "" {
		if err := configureProxy(transport, config.ProxyURL); err != nil {
			internal.LogWarn("Failed to configure proxy %s: %v", config.ProxyURL, err)
		}
	}

	client := &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &HTTPClient{
		client:       client,
		userAgent:    config.UserAgent,
		maxRedirects: config.MaxRedirects,
		retryConfig:  config.RetryConfig,
	}
}

// configureProxy sets up proxy configuration for the transport
func configureProxy(transport *http.Transport, proxyURL string) error {
	parsedURL, err := url.Parse(proxyURL)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}

	switch parsedURL.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(parsedURL)
	case "socks5":
		var auth *proxy.Auth
		if parsedURL.User != nil {
			password, _ := parsedURL.User.Password()
			auth = &proxy.Auth{User: parsedURL.User.Username(), Password: password}
		}
		dialer, err := proxy.SOCKS5("tcp", parsedURL.Host, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("failed to create SOCKS5 proxy: %w", err)
		}
		if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
			transport.DialContext = contextDialer.DialContext
		} else {
			transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialer.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("unsupported proxy scheme: %s", parsedURL.Scheme)
	}

	return nil
}

// Fetch performs a GET of rawURL and follows redirects itself. The Set-Cookie
// headers of every hop, including the terminal one, are recorded into cookies
// and the accumulated cookie header is sent on each subsequent hop.
// A 3xx without a Location header is returned as the terminal response.
// The caller owns the returned body.
func (c *HTTPClient) Fetch(ctx context.Context, rawURL string, cookies internal.CookieRecorder) (*http.Response, error) {
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, internal.NewNetworkError(rawURL, err)
	}

	for hop := 0; ; hop++ {
		resp, err := c.get(ctx, current.String(), cookies)
		if err != nil {
			return nil, err
		}

		cookies.Record(resp.Header.Values("Set-Cookie")...)

		location := resp.Header.Get("Location")
		if !isRedirect(resp.StatusCode) || location == "" {
			return resp, nil
		}

		drainAndClose(resp.Body)

		if hop >= c.maxRedirects {
			return nil, internal.NewTooManyRedirectsError(rawURL, hop)
		}

		next, err := current.Parse(location)
		if err != nil {
			return nil, internal.NewNetworkError(location, err).
				WithSuggestion("The service returned a malformed redirect location")
		}
		internal.LogDebug("Redirect %d: %s -> %s", hop+1, current.Redacted(), next.Redacted())
		current = next
	}
}

// get issues a single request with retry on transport failures only
func (c *HTTPClient) get(ctx context.Context, target string, cookies internal.CookieRecorder) (*http.Response, error) {
	return c.executeWithRetryContext(ctx, target, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("User-Agent", c.userAgent)
		if header := cookies.Header(); header != "" {
			req.Header.Set("Cookie", header)
		}

		logger := internal.GetLogger()
		logger.LogHTTPRequest(req)
		resp, err := c.client.Do(req)
		if err == nil {
			logger.LogHTTPResponse(resp)
		}
		return resp, err
	})
}

// executeWithRetryContext executes a function with retry logic and context.
// HTTP statuses are handed back to the caller untouched; only transport
// errors are retried.
func (c *HTTPClient) executeWithRetryContext(ctx context.Context, target string, fn func() (*http.Response, error)) (*http.Response, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := c.calculateDelay(attempt)
			internal.LogDebug("Retrying %s in %v (attempt %d/%d)", redactURL(target), delay, attempt+1, c.retryConfig.MaxAttempts)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, internal.NewNetworkError(target, ctx.Err())
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if !c.isRetryableError(ctx, err) {
			break
		}
	}

	return nil, internal.NewNetworkError(target, lastErr)
}

// calculateDelay calculates the delay for the next retry attempt
func (c *HTTPClient) calculateDelay(attempt int) time.Duration {
	// Exponential backoff: baseDelay * multiplier^(attempt-1)
	delay := float64(c.retryConfig.BaseDelay) * math.Pow(c.retryConfig.Multiplier, float64(attempt-1))

	// -jitterPercent to +jitterPercent
	jitter := delay * c.retryConfig.JitterPercent * (rand.Float64()*2 - 1)
	delay += jitter

	if delay > float64(c.retryConfig.MaxDelay) {
		delay = float64(c.retryConfig.MaxDelay)
	}
	if delay < 0 {
		delay = float64(c.retryConfig.BaseDelay)
	}

	return time.Duration(delay)
}

// isRetryableError determines if an error should trigger a retry
func (c *HTTPClient) isRetryableError(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	retryableErrors := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"temporary failure",
		"unexpected eof",
	}

	for _, retryableErr := range retryableErrors {
		if strings.Contains(errStr, retryableErr) {
			return true
		}
	}

	return false
}

func isRedirect(status int) bool {
	return status >= 300 && status < 400
}

// drainAndClose discards a bounded amount of the body so the connection can be reused
func drainAndClose(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 64<<10)
	_ = body.Close()
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.RawQuery != "" {
		u.RawQuery = "[REDACTED]"
	}
	return u.String()
}
