package stats

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bft-labs/dualcap/internal/domain"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#3B82F6"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))
	fatalStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#EF4444"))
)

// SeverityStyle returns the style a severity tag is printed with.
func SeverityStyle(severity string) lipgloss.Style {
	switch severity {
	case "FATAL", "ERROR":
		return fatalStyle
	case "WARN":
		return warnStyle
	default:
		return mutedStyle
	}
}

// eraseLine clears the rest of the terminal line after a shorter status.
const eraseLine = "\x1b[K"

// StatusLine returns Render framed for in-place redraw: a carriage return
// in front and an erase of the previous line's leftovers behind.
func (a *Aggregator) StatusLine() string {
	return "\r" + a.Render() + eraseLine
}

// Render returns the single-line live status.
func (a *Aggregator) Render() string {
	parts := []string{mutedStyle.Render(fmt.Sprintf("[%7.1fs]", a.Elapsed().Seconds()))}

	if s, ok := a.Stream(domain.StreamCSI); ok {
		parts = append(parts, fmt.Sprintf("%s %.1f pkt/s %d rec %s",
			labelStyle.Render("CSI"), s.Rate, s.Records, fileInfo(s)))
		if s.Resyncs > 0 {
			parts = append(parts, warnStyle.Render(fmt.Sprintf("resync %d", s.Resyncs)))
		}
		if s.Dropped > 0 {
			parts = append(parts, warnStyle.Render(fmt.Sprintf("drop %d", s.Dropped)))
		}
	}
	if s, ok := a.Stream(domain.StreamAudio); ok {
		parts = append(parts, fmt.Sprintf("%s %d chunks %s",
			labelStyle.Render("AUDIO"), s.Records, fileInfo(s)))
		if s.Dropped > 0 {
			parts = append(parts, warnStyle.Render(fmt.Sprintf("drop %d", s.Dropped)))
		}
	}
	return strings.Join(parts, "  ")
}

// Summary returns the final multi-line report printed at shutdown.
func (a *Aggregator) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %.1fs\n", labelStyle.Render("session"), a.Elapsed().Seconds())
	for _, stream := range []domain.Stream{domain.StreamCSI, domain.StreamAudio} {
		s, ok := a.Stream(stream)
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "%-6s records=%d bytes=%s parts=%d dropped=%d",
			strings.ToUpper(string(stream)), s.Records, humanBytes(int64(s.Bytes)), s.FileIndex+1, s.Dropped)
		if stream == domain.StreamCSI {
			fmt.Fprintf(&b, " resyncs=%d skipped=%s", s.Resyncs, humanBytes(int64(s.SkippedBytes)))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func fileInfo(s StreamSummary) string {
	if !s.HasFile {
		return ""
	}
	return mutedStyle.Render(fmt.Sprintf("part %03d %s", s.FileIndex, humanBytes(s.FileSize)))
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
