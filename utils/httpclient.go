package utils

import (
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	headDialTimeout         = 5 * time.Second
	headTLSHandshakeTimeout = 5 * time.Second
	headIdleConnTimeout     = 30 * time.Second
	headMaxIdleConnsPerHost = 2
)

// newContentTypeTransport returns the transport for HEAD and ranged GET
// requests. Only headers and a few bytes are read, so the response header
// wait is the request timeout itself. Compression is off so sniffed bytes are the
// file's own.
func newContentTypeTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout: headDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   headTLSHandshakeTimeout,
		ResponseHeaderTimeout: timeout,
		IdleConnTimeout:       headIdleConnTimeout,
		MaxIdleConnsPerHost:   headMaxIdleConnsPerHost,
		DisableCompression:    true,
	}
}

// newRetryableHTTPClient retries connection errors and 5xx responses.
// Waits are kept short, the probe sits in front of an interactive load.
func newRetryableHTTPClient(timeout time.Duration, retryMax int) *retryablehttp.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = retryMax
	retryClient.RetryWaitMin = 100 * time.Millisecond
	retryClient.RetryWaitMax = 1 * time.Second
	retryClient.Logger = nil
	retryClient.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: newContentTypeTransport(timeout),
	}
	// Hand the last response back instead of an opaque "giving up" error
	// so the status code can be reported.
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return retryClient
}
