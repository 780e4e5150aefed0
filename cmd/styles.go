package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kythours/modelvol/internal/data"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(16)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Italic(true)
)

// renderTally formats the end-of-pass summary.
func renderTally(t data.Tally) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("volume ready"))
	if t.RunID != "" {
		b.WriteString(" " + mutedStyle.Render(t.RunID))
	}
	b.WriteString("\n")
	row := func(label string, n int, style lipgloss.Style) {
		b.WriteString(labelStyle.Render(label) + style.Render(fmt.Sprint(n)) + "\n")
	}
	row("cleaned", t.Cleaned, warnStyle)
	row("already present", t.Present, okStyle)
	row("downloaded", t.Downloaded, okStyle)
	skipped := okStyle
	if t.Skipped > 0 {
		skipped = warnStyle
	}
	row("skipped", t.Skipped, skipped)
	return b.String()
}

// renderResults lists the tasks that did not end with a file on disk.
func renderResults(results []data.TaskResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.State != data.TaskSkipped {
			continue
		}
		b.WriteString(warnStyle.Render("  skipped ") + r.Task.Name() + " " + mutedStyle.Render(r.Task.URL) + "\n")
	}
	return b.String()
}
