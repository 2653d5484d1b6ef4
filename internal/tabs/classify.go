package tabs

import (
	"net/url"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/joss/chapterd/internal/domain"
)

// DefaultVideoPatterns match the watch pages we know how to scrape. Patterns
// are doublestar globs over "host/path".
var DefaultVideoPatterns = []string{
	"youtube.com/watch",
	"*.youtube.com/watch",
	"*.youtube.com/shorts/**",
	"youtu.be/**",
}

// Classifier decides the kind of a tab from its URL.
type Classifier struct {
	videoPatterns []string
}

// NewClassifier builds a classifier from glob patterns; nil means defaults.
func NewClassifier(videoPatterns []string) *Classifier {
	if len(videoPatterns) == 0 {
		videoPatterns = DefaultVideoPatterns
	}
	return &Classifier{videoPatterns: videoPatterns}
}

// Kind classifies a URL. Results tabs are registered explicitly, so the
// classifier only distinguishes video pages from everything else.
func (c *Classifier) Kind(raw string) domain.TabKind {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return domain.TabUnknown
	}

	target := strings.ToLower(u.Host) + u.Path
	target = strings.TrimSuffix(target, "/")

	for _, pattern := range c.videoPatterns {
		if ok, err := doublestar.Match(pattern, target); err == nil && ok {
			return domain.TabVideo
		}
	}
	return domain.TabUnknown
}
