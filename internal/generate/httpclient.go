package generate

import (
	"net/http"
	"time"
)

// NewPooledHTTPClient creates an http.Client with connection pooling for provider SDKs.
// There is no overall timeout: streamed generations are bounded by the caller's context.
func NewPooledHTTPClient(poolSize int) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          poolSize,
			MaxIdleConnsPerHost:   poolSize,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: 60 * time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}
