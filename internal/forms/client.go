package forms

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"formbridge/internal/domain"
	"formbridge/internal/metrics"
)

const (
	// APINamespace is the REST namespace of the forms API.
	APINamespace = "gf/v2"

	maxResponseBytes = 10 << 20
	userAgent        = "formbridge/0.1"
)

// Requester sends a Request and returns the remote result.
type Requester interface {
	Do(ctx context.Context, req Request) domain.ToolResult
}

// NewHTTPClient returns a pooled HTTP client for the forms API.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// Client sends requests to <restRoot>/gf/v2/.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	logger   *slog.Logger
}

type ClientConfig struct {
	RESTRoot   string // e.g. https://example.com/wp-json
	HTTPClient *http.Client
	// Basic auth credentials; skipped when Username is empty.
	Username string
	Password string
	Logger   *slog.Logger
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = NewHTTPClient(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:  NamespaceURL(cfg.RESTRoot),
		username: cfg.Username,
		password: cfg.Password,
		http:     cfg.HTTPClient,
		logger:   cfg.Logger,
	}
}

// NamespaceURL joins restRoot and the API namespace, with a trailing slash.
func NamespaceURL(restRoot string) string {
	return strings.TrimRight(restRoot, "/") + "/" + APINamespace + "/"
}

// Do performs req. Transport failures become {error: msg}; any response
// body is decoded and returned as-is, whatever its status code.
func (c *Client) Do(ctx context.Context, req Request) domain.ToolResult {
	var body io.Reader
	if len(req.Body) > 0 {
		raw, err := json.Marshal(req.Body)
		if err != nil {
			return domain.Failure(fmt.Sprintf("encode request: %v", err))
		}
		body = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.baseURL+req.Endpoint, body)
	if err != nil {
		return domain.Failure(err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", userAgent)
	if c.username != "" {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	metrics.RemoteLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.TransportFailures.Inc()
		metrics.RemoteRequest(req.Method, "transport_error").Inc()
		c.logger.Warn("forms request failed", "method", req.Method, "endpoint", req.Endpoint, "err", err)
		return domain.Failure(err.Error())
	}
	defer resp.Body.Close()
	metrics.RemoteRequest(req.Method, statusClass(resp.StatusCode)).Inc()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.Failure(fmt.Sprintf("read response: %v", err))
	}
	c.logger.Debug("forms request done",
		"method", req.Method, "endpoint", req.Endpoint,
		"status", resp.StatusCode, "bytes", len(data), "duration", time.Since(start))

	if len(bytes.TrimSpace(data)) == 0 {
		return domain.Success(nil)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return domain.Failure(fmt.Sprintf("decode response: %v", err))
	}
	// Exactly one JSON value; trailing output such as a PHP notice is an error.
	switch err := dec.Decode(&struct{}{}); {
	case err == io.EOF:
	case err != nil:
		return domain.Failure(fmt.Sprintf("decode response: %v", err))
	default:
		return domain.Failure("decode response: unexpected data after JSON value")
	}
	return domain.Success(payload)
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
