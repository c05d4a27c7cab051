// Package client provides a small HTTP client for the tokex API,
// used by the CLI and suitable for embedding in CI tooling.
package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type urlBuilder struct {
	base string
	path string
	q    url.Values
}

func (c *Client) url() *urlBuilder {
	return &urlBuilder{base: c.baseURL, q: url.Values{}}
}

func (b *urlBuilder) setPath(path string) *urlBuilder {
	b.path = path
	return b
}

func (b *urlBuilder) addQueryParam(key string, value any) *urlBuilder {
	b.q.Add(key, toString(value))
	return b
}

func (b *urlBuilder) build() string {
	u := b.base + b.path
	if len(b.q) > 0 {
		u += "?" + b.q.Encode()
	}
	return u
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
