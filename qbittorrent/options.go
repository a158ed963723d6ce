package qbittorrent

import (
	"crypto/tls"
	"net/http"
	"time"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "qbit-dedup"
)

// Option configures a Session.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Session.
type clientOptions struct {
	timeout    time.Duration
	userAgent  string
	skipVerify bool
	httpClient *http.Client
}

func defaultOptions() clientOptions {
	return clientOptions{
		timeout:   defaultTimeout,
		userAgent: defaultUserAgent,
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *clientOptions) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithUserAgent sets a custom user agent string.
func WithUserAgent(userAgent string) Option {
	return func(o *clientOptions) {
		o.userAgent = userAgent
	}
}

// WithInsecureSkipVerify disables certificate verification.
// Use with caution and only for development/testing.
func WithInsecureSkipVerify(skip bool) Option {
	return func(o *clientOptions) {
		o.skipVerify = skip
	}
}

// WithHTTPClient replaces the underlying HTTP client. Any Jar on it is left
// alone; the session keeps the SID cookie itself and adds it to each request.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

func (o clientOptions) buildHTTPClient() *http.Client {
	if o.httpClient != nil {
		return o.httpClient
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if o.skipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
	}

	return &http.Client{
		Timeout:   o.timeout,
		Transport: transport,
	}
}
