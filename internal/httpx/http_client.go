// Package httpx builds the HTTP client shared by outbound integrations.
package httpx

import (
	"net/http"
	"time"
)

const defaultExternalHTTPTimeout = 90 * time.Second

// NewExternalClient returns a client for Slack and LLM calls. A non-positive
// timeout falls back to the default.
func NewExternalClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultExternalHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}
