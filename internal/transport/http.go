// Package transport is the device's network collaborator: streaming HTTP
// GETs for audio, JSON POSTs and MQTT publishes for notifications.
package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultTimeout = 3 * time.Second

// Client wraps resty. Certificates are not verified: the device has no
// trust store to check them against.
type Client struct {
	HTTP *resty.Client
}

// NewClient bounds connection setup and response headers by timeout.
// Response bodies are not time-limited so audio streams can run for as
// long as they play.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tr := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   timeout,
		ResponseHeaderTimeout: timeout,
		MaxIdleConns:          4,
		IdleConnTimeout:       30 * time.Second,
	}

	r := resty.New()
	r.SetTransport(tr)
	r.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	r.SetHeader("User-Agent", "goodmornin")

	return &Client{HTTP: r}
}

// Get opens a streaming GET. On success the caller owns body.
func (c *Client) Get(ctx context.Context, rawURL string) (int, io.ReadCloser, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(rawURL)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode(), resp.RawBody(), nil
}

// Post sends body and returns the response status.
func (c *Client) Post(ctx context.Context, rawURL string, headers map[string]string, body []byte) (int, error) {
	resp, err := c.HTTP.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetBody(body).
		Post(rawURL)
	if err != nil {
		return 0, err
	}
	return resp.StatusCode(), nil
}
