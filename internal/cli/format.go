package cli

import (
	"fmt"
	"strings"
	"time"

	"flag-scanner/internal/analysis/patterns"
)

// FormatDateTime formats a bar time. Bar times are shown in UTC.
func FormatDateTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// FormatDuration formats a duration in human-readable form.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	} else if d < 24*time.Hour {
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, hours)
}

// FormatPolePercent formats the pole height relative to T0.
func FormatPolePercent(p patterns.FlagPattern) string {
	if p.T0.Price == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", p.PoleHeight/p.T0.Price*100)
}

// FormatAnchors formats the anchor indices as "T0-T1-T2-T3-T4".
func FormatAnchors(p patterns.FlagPattern) string {
	a := p.Anchors()
	return fmt.Sprintf("%d-%d-%d-%d-%d", a[0].Index, a[1].Index, a[2].Index, a[3].Index, a[4].Index)
}

// QualityBar renders a score in 0..100 as a fixed-width bar of ten cells.
func QualityBar(score int) string {
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	filled := (score + 5) / 10
	if filled > 10 {
		filled = 10
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
