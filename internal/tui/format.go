// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

// maxReleaseNotesLines caps how much of a changelog is shown before a prompt.
const maxReleaseNotesLines = 40

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// RenderMarkdown renders Markdown for the terminal in the given theme.
// width <= 0 disables word wrapping.
func RenderMarkdown(content string, theme Theme, width int) (string, error) {
	var opts []glamour.TermRendererOption
	switch theme {
	case ThemeDark, ThemeLight:
		opts = append(opts, glamour.WithStandardStyle(string(theme)))
	default:
		opts = append(opts, glamour.WithAutoStyle())
	}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}

	renderer, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", err
	}
	return renderer.Render(content)
}

// RenderReleaseNotes renders a release changelog, truncated to a screenful.
// Empty notes render as an empty string.
func RenderReleaseNotes(notes string, theme Theme, width int) (string, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return "", nil
	}
	if lines := strings.Split(notes, "\n"); len(lines) > maxReleaseNotesLines {
		notes = strings.Join(lines[:maxReleaseNotesLines], "\n") + "\n\n*…release notes truncated*"
	}
	return RenderMarkdown(notes, theme, width)
}

// RenderTable renders rows under headers with a rounded border.
func RenderTable(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	return t.String()
}

// FormatBytes renders a byte count in IEC units, e.g. "12 MiB".
func FormatBytes(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.IBytes(uint64(n))
}

// FormatAge renders t relative to now, e.g. "3 hours ago". The zero time
// renders as "never".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
