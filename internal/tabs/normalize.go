package tabs

import (
	"fmt"
	"net/url"
	"strings"
)

// timeParam is the volatile playback-position query parameter. Two addresses
// differing only by playback position identify the same video.
const timeParam = "t"

// Normalize turns a video URL into a stable identity key: parsed, the
// playback-position parameter dropped, host lowercased, fragment discarded,
// and the remaining query re-encoded in sorted order so comparison is
// structural rather than textual.
func Normalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", raw, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse url %q: missing host", raw)
	}

	q := u.Query()
	q.Del(timeParam)

	norm := url.URL{
		Scheme:   strings.ToLower(u.Scheme),
		Host:     strings.ToLower(u.Host),
		Path:     u.Path,
		RawQuery: q.Encode(),
	}
	return norm.String(), nil
}

// SameVideo reports whether two URLs normalize to the same address. Malformed
// URLs never match anything.
func SameVideo(a, b string) bool {
	na, err := Normalize(a)
	if err != nil {
		return false
	}
	nb, err := Normalize(b)
	if err != nil {
		return false
	}
	return na == nb
}
