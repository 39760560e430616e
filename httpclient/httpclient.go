// Package httpclient provides the outbound HTTP capability. A runtime may
// have no Client at all; that is the normal state for sandboxes without
// outbound access.
package httpclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// AnyHost in AllowedHosts permits every host.
const AnyHost = "*"

var (
	ErrMethodNotAllowed = errors.New("unsupported method")
	ErrHostNotAllowed   = errors.New("host not allowed")
	ErrInvalidURL       = errors.New("invalid url")
	ErrTooLarge         = errors.New("exceeds max size")
)

// Request is a guest-issued HTTP request.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// Response is returned to the guest.
type Response struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
}

// Client executes requests on behalf of a guest.
type Client interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

type Config struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	// Transport overrides the round tripper, mostly for tests.
	Transport http.RoundTripper
}

// Host is a Client backed by net/http with host allowlisting and size limits.
type Host struct {
	cfg    Config
	client *http.Client
}

func NewHost(cfg Config) *Host {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	h := &Host{cfg: cfg}
	h.client = &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: cfg.Transport,
		// Every hop is held to the same scheme and host rules as the
		// original request.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return h.checkURL(req.URL)
		},
	}
	return h
}

const maxRedirects = 10

func (h *Host) Do(ctx context.Context, r *Request) (*Response, error) {
	method := strings.ToUpper(r.Method)
	if method == "" {
		method = http.MethodGet
	}

	switch method {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
	default:
		return nil, fmt.Errorf("%w: %s", ErrMethodNotAllowed, method)
	}

	if r.URL == "" {
		return nil, fmt.Errorf("%w: url required", ErrInvalidURL)
	}
	if len(r.URL) > h.cfg.MaxURLLength {
		return nil, fmt.Errorf("url %w", ErrTooLarge)
	}

	parsed, err := url.Parse(r.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if err := h.checkURL(parsed); err != nil {
		return nil, err
	}

	var body io.Reader
	if len(r.Body) > 0 {
		if int64(len(r.Body)) > h.cfg.MaxBodySize {
			return nil, fmt.Errorf("request body %w", ErrTooLarge)
		}
		body = bytes.NewReader(r.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			headers[k] = v[0]
		}
	}

	return &Response{
		Status:  resp.StatusCode,
		Headers: headers,
		Body:    respBody,
	}, nil
}

func (h *Host) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if host := u.Hostname(); !h.isHostAllowed(host) {
		return fmt.Errorf("%w: %s", ErrHostNotAllowed, host)
	}
	return nil
}

func (h *Host) isHostAllowed(host string) bool {
	for _, allowed := range h.cfg.AllowedHosts {
		if allowed == AnyHost || host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
