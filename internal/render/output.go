// Package render provides output formatting for the terminal.
package render

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/joss/chapterd/internal/domain"
	"github.com/joss/chapterd/internal/provider"
	"github.com/joss/chapterd/internal/settings"
	"github.com/joss/chapterd/internal/text"
)

// Renderer handles output formatting.
type Renderer struct {
	pretty bool
}

// New creates a new renderer.
func New(pretty bool) *Renderer {
	return &Renderer{pretty: pretty}
}

// Chapters formats a completed session: title line, divider, chapter text.
func (r *Renderer) Chapters(sess *domain.GenerationSession) string {
	var sb strings.Builder

	if r.pretty {
		title := sess.VideoTitle
		if title == "" {
			title = sess.VideoURL
		}
		sb.WriteString(color.CyanString("Chapters") + " " + color.HiBlackString(title) + "\n")
		sb.WriteString(strings.Repeat("─", 60) + "\n")
	}

	sb.WriteString(sess.Result)
	sb.WriteString("\n")

	if r.pretty && sess.Model != "" {
		sb.WriteString(color.HiBlackString(fmt.Sprintf("model: %s · session: %s\n", sess.Model, sess.ID)))
	}
	return sb.String()
}

// Failure formats a failed session with its category suggestion.
func (r *Renderer) Failure(sess *domain.GenerationSession) string {
	var sb strings.Builder

	if r.pretty {
		fmt.Fprintf(&sb, "%s %s\n", color.RedString("✗"), sess.ErrorMessage)
		if sess.ErrorCategory != "" {
			fmt.Fprintf(&sb, "  %s\n", color.YellowString(provider.Suggestion(sess.ErrorCategory)))
		}
	} else {
		fmt.Fprintf(&sb, "error category=%s message=%s\n", sess.ErrorCategory, sess.ErrorMessage)
	}
	return sb.String()
}

// Settings formats the stored setting keys with redacted secrets.
func (r *Renderer) Settings(pairs map[string]string) string {
	if len(pairs) == 0 {
		return "No settings stored\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Settings\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	}

	keys := make([]string, 0, len(pairs))
	for k := range pairs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := pairs[k]
		if text.IsSecretKey(k) {
			v = text.Redact(v)
		}
		fmt.Fprintf(&sb, "  %-22s %s\n", k, v)
	}
	return sb.String()
}

// Presets formats saved instruction presets.
func (r *Renderer) Presets(presets []settings.Preset) string {
	if len(presets) == 0 {
		return "No presets saved\n"
	}

	var sb strings.Builder
	if r.pretty {
		sb.WriteString(color.CyanString("Instruction presets\n"))
		sb.WriteString(strings.Repeat("─", 40) + "\n")
	}
	for _, p := range presets {
		if r.pretty {
			fmt.Fprintf(&sb, "  %s %s\n", color.GreenString(p.Name), color.HiBlackString(p.UpdatedAt.Format("2006-01-02 15:04")))
			fmt.Fprintf(&sb, "    %s\n", text.Truncate(p.Instructions, 70))
		} else {
			fmt.Fprintf(&sb, "%s\t%s\n", p.Name, p.Instructions)
		}
	}
	return sb.String()
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
