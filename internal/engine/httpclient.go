package engine

import (
	"net/http"
	"time"
)

// NewHTTPClient returns an HTTP client whose server must start answering
// within requestTimeout.
func NewHTTPClient(requestTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       60 * time.Second,
			TLSHandshakeTimeout:   requestTimeout,
			ResponseHeaderTimeout: requestTimeout,
		},
	}
}
