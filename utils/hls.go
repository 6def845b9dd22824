package utils

import (
	"bytes"
	"net/url"
	"path"
	"strings"
)

// HLSContentType is the playlist type the default media receiver accepts.
const HLSContentType = "application/vnd.apple.mpegurl"

var hlsSignature = []byte("#EXTM3U")

// IsHLSStream returns true for HLS playlist URLs or HLS mime types.
func IsHLSStream(mediaURL, mediaType string) bool {
	trimmedURL := strings.TrimSpace(mediaURL)
	if trimmedURL != "" {
		u, err := url.Parse(trimmedURL)
		if err == nil && strings.EqualFold(path.Ext(u.Path), ".m3u8") {
			return true
		}
	}

	return strings.Contains(strings.ToLower(strings.TrimSpace(mediaType)), "mpegurl")
}

// isHLSPlaylist matches the first line of an extended M3U playlist.
func isHLSPlaylist(head []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(head, "\ufeff \t\r\n"), hlsSignature)
}
