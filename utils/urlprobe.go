package utils

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/h2non/filetype"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	ErrBadStatus     = errors.New("probe: bad status code")
	ErrNoContentType = errors.New("probe: no content type")
)

const (
	defaultProbeTimeout = 10 * time.Second
	defaultProbeRetries = 2
	// filetype needs at most this many bytes to match any known kind.
	sniffLength = 261
)

// ProbeOptions configure a Prober.
type ProbeOptions struct {
	// Timeout bounds each request. Zero or less means 10s.
	Timeout time.Duration
	// Retries is how often a connection error or 5xx is retried. Zero
	// disables retrying, a negative value means 2.
	Retries int
	// Sniff enables a ranged GET of the first bytes when the HEAD response
	// carries no useful Content-Type.
	Sniff     bool
	LogOutput io.Writer
}

// Prober finds out the content type of a media URL without downloading it.
type Prober struct {
	client      *retryablehttp.Client
	sniff       bool
	LogOutput   io.Writer
	logger      zerolog.Logger
	initLogOnce sync.Once
}

// NewProber creates a Prober. See ProbeOptions for how unset fields are
// treated.
func NewProber(o ProbeOptions) *Prober {
	if o.Timeout <= 0 {
		o.Timeout = defaultProbeTimeout
	}
	if o.Retries < 0 {
		o.Retries = defaultProbeRetries
	}

	return &Prober{
		client:    newRetryableHTTPClient(o.Timeout, o.Retries),
		sniff:     o.Sniff,
		LogOutput: o.LogOutput,
	}
}

// Log returns the zerolog logger, initializing it lazily.
func (p *Prober) Log() *zerolog.Logger {
	p.initLogOnce.Do(func() {
		if p.LogOutput != nil {
			p.logger = zerolog.New(p.LogOutput).With().Timestamp().Logger()
			return
		}
		p.logger = zerolog.Nop()
	})
	return &p.logger
}

// ContentType issues a HEAD for s and returns the normalised media type.
func (p *Prober) ContentType(ctx context.Context, s string) (string, error) {
	if _, err := url.ParseRequestURI(s); err != nil {
		return "", fmt.Errorf("probe failed to parse url: %w", err)
	}

	resp, err := p.do(ctx, http.MethodHead, s, nil)
	if err != nil {
		return "", err
	}
	resp.Body.Close()

	p.Log().Debug().Str("Method", "ContentType").Str("URL", s).Int("Status", resp.StatusCode).Interface("Headers", resp.Header).Msg("HEAD")

	mediaType := normalizeContentType(resp.Header.Get("Content-Type"))
	if IsHLSStream(s, mediaType) {
		// Servers label playlists anything from text/plain to x-mpegURL.
		return HLSContentType, nil
	}
	if !shouldSniffContentType(mediaType) || !p.sniff {
		if mediaType == "" {
			return "", ErrNoContentType
		}
		return mediaType, nil
	}

	sniffed, err := p.sniffContentType(ctx, s)
	if err != nil {
		p.Log().Debug().Str("Method", "ContentType").Err(err).Msg("sniff failed")
	}
	if sniffed != "" {
		return sniffed, nil
	}
	if mediaType == "" {
		return "", ErrNoContentType
	}
	return mediaType, nil
}

// sniffContentType reads the first bytes of s and matches them against
// known file signatures.
func (p *Prober) sniffContentType(ctx context.Context, s string) (string, error) {
	header := http.Header{}
	header.Set("Range", fmt.Sprintf("bytes=0-%d", sniffLength-1))

	resp, err := p.do(ctx, http.MethodGet, s, header)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("probe failed to read body for mime detection: %w", err)
	}

	return GetMimeDetailsFromBytes(head[:n])
}

func (p *Prober) do(ctx context.Context, method, s string, header http.Header) (*http.Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, method, s, nil)
	if err != nil {
		return nil, fmt.Errorf("probe failed to call NewRequest: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probe failed to client.Do: %w", err)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, errors.Wrapf(ErrBadStatus, "%s %d", method, resp.StatusCode)
	}

	return resp, nil
}

// GetMimeDetailsFromBytes matches the leading bytes of a media file.
// An unknown signature yields an empty string and no error.
func GetMimeDetailsFromBytes(head []byte) (string, error) {
	if len(head) == 0 {
		return "", nil
	}
	if isHLSPlaylist(head) {
		return HLSContentType, nil
	}

	kind, err := filetype.Match(head)
	if err != nil {
		return "", fmt.Errorf("getMimeDetailsFromBytes error: %w", err)
	}
	if kind == filetype.Unknown {
		return "", nil
	}

	return kind.MIME.Value, nil
}

func normalizeContentType(v string) string {
	if v == "" {
		return ""
	}

	mt, _, err := mime.ParseMediaType(v)
	if err == nil {
		return strings.ToLower(strings.TrimSpace(mt))
	}

	parts := strings.Split(v, ";")
	return strings.ToLower(strings.TrimSpace(parts[0]))
}

func shouldSniffContentType(mediaType string) bool {
	switch mediaType {
	case "", "/", "application/octet-stream", "binary/octet-stream", "text/plain":
		return true
	default:
		return false
	}
}
