// Package transcript produces the timestamped text a generation session
// starts from.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNoTranscript indicates the video has no transcript available.
var ErrNoTranscript = errors.New("no transcript available")

// Source produces transcript text for a video URL.
type Source interface {
	Fetch(ctx context.Context, videoURL string) (string, error)
}

// Static returns fixed text. Used by tests and the CLI --transcript path.
type Static struct {
	Text string
}

func (s *Static) Fetch(ctx context.Context, videoURL string) (string, error) {
	if strings.TrimSpace(s.Text) == "" {
		return "", ErrNoTranscript
	}
	return s.Text, nil
}

var _ Source = (*Static)(nil)

// Segment is one transcript line: a timestamp label and its text.
type Segment struct {
	Timestamp string
	Text      string
}

// Join renders segments as "timestamp text" lines, skipping empty ones.
func Join(segments []Segment) (string, error) {
	var sb strings.Builder
	n := 0
	for _, seg := range segments {
		ts := strings.TrimSpace(seg.Timestamp)
		text := strings.TrimSpace(seg.Text)
		if ts == "" || text == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s %s\n", ts, text)
		n++
	}
	if n == 0 {
		return "", ErrNoTranscript
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
