// SPDX-License-Identifier: MPL-2.0

package tui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

const (
	defaultProgressWidth = 40
	// plainProgressStep is the percentage between two lines of plain output.
	plainProgressStep = 10.0
)

type (
	// DownloadProgress renders the progress of one artifact download. It is
	// safe to call Update from the downloading goroutine.
	DownloadProgress interface {
		Update(percent float64, downloaded, total int64)
		Done()
	}

	progressMsg struct {
		percent           float64
		downloaded, total int64
	}

	progressDoneMsg struct{}

	progressModel struct {
		bar        progress.Model
		label      string
		percent    float64
		downloaded int64
		total      int64
		done       bool
	}

	// barProgress drives an inline Bubble Tea program.
	barProgress struct {
		program  *tea.Program
		finished chan struct{}
		once     sync.Once
	}

	// plainProgress writes one line per progress step for non-terminal output.
	plainProgress struct {
		mu    sync.Mutex
		w     io.Writer
		label string
		next  float64
	}

	// nopProgress discards every update.
	nopProgress struct{}
)

var (
	progressLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	progressCountStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// NewDownloadProgress returns a progress renderer for label. A terminal gets
// an animated bar, any other writer gets plain percentage lines, and a
// disabled renderer ignores every update.
func NewDownloadProgress(cfg Config, label string, enabled bool) DownloadProgress {
	if !enabled {
		return nopProgress{}
	}
	w := getOutputWriter(cfg)
	if cfg.Accessible || !IsOutputTerminal(w) {
		return &plainProgress{w: w, label: label, next: plainProgressStep}
	}
	return newBarProgress(w, label, cfg.Width)
}

func newProgressModel(label string, width int) progressModel {
	if width <= 0 {
		width = defaultProgressWidth
	}
	return progressModel{
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(width),
		),
		label: label,
	}
}

// Init implements tea.Model.
func (m progressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.percent = msg.percent
		m.downloaded = msg.downloaded
		m.total = msg.total
	case progressDoneMsg:
		m.done = true
		return m, tea.Quit
	case tea.WindowSizeMsg:
		if w := msg.Width - len(m.label) - 30; w > 10 && w < m.bar.Width {
			m.bar.Width = w
		}
	}
	return m, nil
}

// View implements tea.Model.
func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(progressLabelStyle.Render(m.label))
	b.WriteString(" ")
	b.WriteString(m.bar.ViewAs(m.percent / 100))
	if m.total > 0 {
		b.WriteString(" ")
		b.WriteString(progressCountStyle.Render(
			fmt.Sprintf("%s / %s", humanize.IBytes(uint64(m.downloaded)), humanize.IBytes(uint64(m.total)))))
	}
	if m.done {
		b.WriteString("\n")
	}
	return b.String()
}

func newBarProgress(w io.Writer, label string, width int) *barProgress {
	program := tea.NewProgram(
		newProgressModel(label, width),
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	p := &barProgress{program: program, finished: make(chan struct{})}
	go func() {
		_, _ = program.Run()
		close(p.finished)
	}()
	return p
}

// Update implements DownloadProgress.
func (p *barProgress) Update(percent float64, downloaded, total int64) {
	p.program.Send(progressMsg{percent: percent, downloaded: downloaded, total: total})
}

// Done stops the program and waits for its final frame.
func (p *barProgress) Done() {
	p.once.Do(func() {
		p.program.Send(progressDoneMsg{})
		<-p.finished
	})
}

// Update implements DownloadProgress.
func (p *plainProgress) Update(percent float64, downloaded, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if percent < p.next {
		return
	}
	for p.next <= percent {
		p.next += plainProgressStep
	}
	fmt.Fprintf(p.w, "%s: %3.0f%% (%s / %s)\n", p.label, percent,
		humanize.IBytes(uint64(downloaded)), humanize.IBytes(uint64(total)))
}

// Done implements DownloadProgress.
func (p *plainProgress) Done() {}

// Update implements DownloadProgress.
func (nopProgress) Update(float64, int64, int64) {}

// Done implements DownloadProgress.
func (nopProgress) Done() {}
