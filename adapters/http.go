package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/brettbedarf/memfs"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type HTTPMethod = string

const (
	HTTPMethodGet  HTTPMethod = "GET"
	HTTPMethodPost HTTPMethod = "POST"
)

// HTTPClient is the subset of *http.Client the adapter needs
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPSource contains http-specific source request fields
type HTTPSource struct {
	URL     string            `json:"url"`
	Method  *HTTPMethod       `json:"method,omitempty"` // Default is GET
	Headers map[string]string `json:"headers,omitempty"`
}

// HTTPProvider builds adapters for "http" sources sharing one client
type HTTPProvider struct {
	client HTTPClient
}

// NewHTTPProvider uses client for every adapter; nil means http.DefaultClient
func NewHTTPProvider(client HTTPClient) *HTTPProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPProvider{client: client}
}

func (p *HTTPProvider) NewAdapter(raw []byte) (memfs.ContentAdapter, error) {
	var src HTTPSource
	if err := json.Unmarshal(raw, &src); err != nil {
		return nil, err
	}

	u, err := parseHTTPURL(src.URL)
	if err != nil {
		return nil, err
	}
	method := HTTPMethodGet
	if src.Method != nil {
		method = strings.ToUpper(*src.Method)
	}
	if method != HTTPMethodGet && method != HTTPMethodPost {
		return nil, fmt.Errorf("unsupported http method %q", method)
	}

	return &HTTPAdapter{
		client:  p.client,
		url:     u.String(),
		method:  method,
		headers: src.Headers,
	}, nil
}

// parseHTTPURL accepts absolute http(s) URLs without user info
func parseHTTPURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if err := validate.Var(raw, "required,http_url"); err != nil {
		return nil, fmt.Errorf("invalid http source url %q: %w", raw, err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid http source url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid http source url %q: scheme must be http or https", raw)
	}
	if u.User != nil {
		return nil, fmt.Errorf("invalid http source url %q: user info not allowed", raw)
	}
	return u, nil
}

// HTTPAdapter implements [memfs.ContentAdapter] for HTTP sources
type HTTPAdapter struct {
	client  HTTPClient
	url     string
	method  HTTPMethod
	headers map[string]string
}

func (h *HTTPAdapter) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, h.method, h.url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("http source %s returned %s", h.url, resp.Status)
	}
	return resp.Body, nil
}
