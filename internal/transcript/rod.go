package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/joss/chapterd/internal/logging"
)

const (
	expandSelector     = "tp-yt-paper-button#expand"
	showTranscriptText = "Show transcript"
	segmentSelector    = "ytd-transcript-segment-renderer"
	timestampSelector  = ".segment-timestamp"
	textSelector       = ".segment-text"
)

// RodSource scrapes the transcript panel of a watch page over CDP.
type RodSource struct {
	browser *rod.Browser
	timeout time.Duration
	log     *logging.Logger
}

// NewRodSource wraps a connected browser. The timeout bounds the whole
// scrape, zero means 30s.
func NewRodSource(browser *rod.Browser, timeout time.Duration) *RodSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RodSource{
		browser: browser,
		timeout: timeout,
		log:     logging.New("transcript"),
	}
}

// Fetch opens the video, expands the description, clicks "Show transcript",
// and reads the segment list.
func (s *RodSource) Fetch(ctx context.Context, videoURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	page, err := s.browser.Page(proto.TargetCreateTarget{URL: videoURL})
	if err != nil {
		return "", fmt.Errorf("open video page: %w", err)
	}
	defer page.Close()
	page = page.Context(ctx)

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("load video page: %w", err)
	}
	page.WaitStable(time.Second)

	if err := s.openPanel(page); err != nil {
		return "", err
	}

	segments, err := s.readSegments(page)
	if err != nil {
		return "", err
	}
	text, err := Join(segments)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrNoTranscript, videoURL)
	}

	s.log.Info("transcript_scraped", map[string]interface{}{
		"url": videoURL, "segments": len(segments),
	})
	return text, nil
}

// openPanel expands the description and clicks the transcript button. Both
// steps are best-effort: on some layouts the panel is already open.
func (s *RodSource) openPanel(page *rod.Page) error {
	if el, err := page.Timeout(3 * time.Second).Element(expandSelector); err == nil {
		el.Click(proto.InputMouseButtonLeft, 1)
		page.WaitStable(500 * time.Millisecond)
	}

	if el, err := page.Timeout(5 * time.Second).ElementR("button", showTranscriptText); err == nil {
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return fmt.Errorf("open transcript panel: %w", err)
		}
		page.WaitStable(time.Second)
		return nil
	}

	// No button: the panel may already be rendered.
	if _, err := page.Timeout(2 * time.Second).Element(segmentSelector); err != nil {
		return ErrNoTranscript
	}
	return nil
}

func (s *RodSource) readSegments(page *rod.Page) ([]Segment, error) {
	els, err := page.Timeout(10 * time.Second).Elements(segmentSelector)
	if err != nil || len(els) == 0 {
		return nil, ErrNoTranscript
	}

	segments := make([]Segment, 0, len(els))
	for _, el := range els {
		var seg Segment
		if ts, err := el.Element(timestampSelector); err == nil {
			if t, err := ts.Text(); err == nil {
				seg.Timestamp = strings.TrimSpace(t)
			}
		}
		if tx, err := el.Element(textSelector); err == nil {
			if t, err := tx.Text(); err == nil {
				seg.Text = strings.TrimSpace(t)
			}
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

var _ Source = (*RodSource)(nil)
