// internal/browser/network/client.go
package network

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
)

// Connection pool constants tuned for page-load style traffic: one document
// plus a burst of script fetches against a small set of hosts.
const (
	defaultDialTimeout         = 10 * time.Second
	defaultTLSHandshakeTimeout = 10 * time.Second
	defaultMaxIdleConns        = 64
	defaultMaxIdleConnsPerHost = 8
	defaultIdleConnTimeout     = 30 * time.Second
)

// ClientConfig configures the per-run HTTP client.
type ClientConfig struct {
	UserAgent          string
	Headers            map[string]string
	InsecureSkipVerify bool
	// RequestsPerSecond limits sandbox-initiated traffic. Zero disables it.
	RequestsPerSecond float64
}

// Document is a fetched and decoded HTML document.
type Document struct {
	FinalURL *url.URL
	Text     string
}

// Client is the network collaborator shared by a single run: it fetches the
// document, discovery-time script sources, and serves the sandbox's fetch/XHR
// shims. Every request timeout is clamped to the run's remaining budget.
type Client struct {
	http    *http.Client
	budget  *budget.Budget
	limiter *rate.Limiter
	ua      string
	headers map[string]string
	logger  *zap.Logger
}

// NewClient builds a client around the shared deadline budget.
func NewClient(cfg ClientConfig, b *budget.Budget, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: defaultTLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		http: &http.Client{
			// Decompression sits directly on the transport so every consumer
			// (document, scripts, XHR) sees plain bodies.
			Transport: NewDecompressionMiddleware(transport),
		},
		budget:  b,
		limiter: limiter,
		ua:      cfg.UserAgent,
		headers: cfg.Headers,
		logger:  logger.Named("network"),
	}
}

// Do executes a request with the given operation timeout, clamped to the
// remaining run budget. The caller owns the response body.
func (c *Client) Do(ctx context.Context, req *http.Request, timeout time.Duration) (*http.Response, error) {
	effective := c.budget.Clamp(timeout)
	if effective <= 0 {
		return nil, fmt.Errorf("run budget exhausted before request to %s", req.URL)
	}

	reqCtx, cancel := context.WithTimeout(ctx, effective)
	req = req.WithContext(reqCtx)

	if c.limiter != nil {
		if err := c.limiter.Wait(reqCtx); err != nil {
			cancel()
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	// Tie the context to the body so the connection stays usable until the
	// caller finishes reading.
	resp.Body = &cancelReadCloser{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// FetchDocument retrieves and decodes an HTML document, following redirects.
// The returned FinalURL reflects where the document was actually served from.
func (c *Client) FetchDocument(ctx context.Context, rawURL string, timeout time.Duration) (*Document, error) {
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building document request: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.Do(ctx, req, timeout)
	if err != nil {
		return nil, fmt.Errorf("fetching document %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetching document %s: status %d", rawURL, resp.StatusCode)
	}

	// Decode to UTF-8 honoring the Content-Type charset and in-document hints.
	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("decoding document %s: %w", rawURL, err)
	}
	text, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading document %s: %w", rawURL, err)
	}

	finalURL := req.URL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	c.logger.Debug("Document fetched",
		zap.String("url", rawURL),
		zap.String("final_url", finalURL.String()),
		zap.Int("bytes", len(text)))

	return &Document{FinalURL: finalURL, Text: string(text)}, nil
}

// FetchScript retrieves a script source. Content type is deliberately not
// enforced (servers routinely mislabel JS), but HTTP errors fail the fetch.
func (c *Client) FetchScript(ctx context.Context, u *url.URL, timeout time.Duration) (string, error) {
	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return "", fmt.Errorf("building script request: %w", err)
	}
	req.Header.Set("Accept", "*/*")

	resp, err := c.Do(ctx, req, timeout)
	if err != nil {
		return "", fmt.Errorf("fetching script %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetching script %s: status %d", u, resp.StatusCode)
	}

	reader, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("decoding script %s: %w", u, err)
	}
	code, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("reading script %s: %w", u, err)
	}
	return string(code), nil
}

// CloseIdleConnections releases pooled connections at the end of a run.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

func (c *Client) applyHeaders(req *http.Request) {
	if c.ua != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.ua)
	}
	for k, v := range c.headers {
		// Caller-set headers win over configured pass-through headers.
		if req.Header.Get(k) == "" && !isHopByHop(k) {
			req.Header.Set(k, v)
		}
	}
}

// isHopByHop rejects headers the transport must own.
func isHopByHop(key string) bool {
	switch strings.ToLower(key) {
	case "host", "connection", "keep-alive", "transfer-encoding", "upgrade", "te", "trailer":
		return true
	}
	return false
}

// cancelReadCloser releases the request context when the body is closed.
type cancelReadCloser struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelReadCloser) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
