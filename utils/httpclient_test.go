package utils

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRetryableHTTPClientUsesRequestTimeout(t *testing.T) {
	c := newRetryableHTTPClient(3*time.Second, 1)
	if c.RetryMax != 1 {
		t.Fatalf("RetryMax = %d, want 1", c.RetryMax)
	}
	if c.HTTPClient.Timeout != 3*time.Second {
		t.Fatalf("client Timeout = %v, want 3s", c.HTTPClient.Timeout)
	}
	tr, ok := c.HTTPClient.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("Transport = %T, want *http.Transport", c.HTTPClient.Transport)
	}
	if tr.ResponseHeaderTimeout != 3*time.Second {
		t.Fatalf("ResponseHeaderTimeout = %v, want 3s", tr.ResponseHeaderTimeout)
	}
}

func TestTransportAsksForRawBytes(t *testing.T) {
	encodings := make(chan string, 1)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		encodings <- r.Header.Get("Accept-Encoding")
	}))
	defer s.Close()

	c := newRetryableHTTPClient(time.Second, 0)
	resp, err := c.Get(s.URL)
	if err != nil {
		t.Fatalf("Get() err = %v", err)
	}
	resp.Body.Close()
	if encoding := <-encodings; encoding != "" {
		t.Fatalf("Accept-Encoding = %q, want none", encoding)
	}
}
