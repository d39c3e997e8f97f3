package pool

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"
)

// HTTPOptions configures a platform-facing HTTP client
type HTTPOptions struct {
	Proxy   string         // optional proxy URL
	Jar     http.CookieJar // optional session cookies
	Timeout time.Duration  // overall per-request timeout
}

// NewHTTPClient creates a pooled HTTP client for page and media fetches
func NewHTTPClient(opts HTTPOptions) (*http.Client, error) {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &http.Client{
		Transport: transport,
		Jar:       opts.Jar,
		Timeout:   timeout,
	}, nil
}
