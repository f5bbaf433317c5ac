package crits

import (
	"crypto/tls"
	"net/http"
	"net/url"
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithProxy routes repository requests through the given proxy URL.
func WithProxy(proxyURL string) Option {
	return func(c *Client) {
		if proxyURL == "" {
			return
		}
		u, err := url.Parse(proxyURL)
		if err != nil {
			return
		}
		c.transport().Proxy = http.ProxyURL(u)
	}
}

// WithInsecureSkipVerify disables TLS certificate verification, matching
// the operator's verify toggle for self-signed CRITs deployments.
func WithInsecureSkipVerify(skip bool) Option {
	return func(c *Client) {
		if !skip {
			return
		}
		c.transport().TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // operator-controlled toggle
	}
}

// transport returns the client's http.Transport, installing one if the
// client still uses the default.
func (c *Client) transport() *http.Transport {
	if t, ok := c.http.Transport.(*http.Transport); ok && t != nil {
		return t
	}
	t := &http.Transport{}
	c.http.Transport = t
	return t
}
