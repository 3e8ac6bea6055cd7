// Package cliui provides terminal output for capsule commands: shared styles,
// a progress line for short blocking actions, markdown rendering for stored
// replies, and a StreamPrinter that renders a conversation as it streams.
package cliui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	SuccessMark = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Render("✓")
	FailMark    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("✗")
	KeyStyle    = lipgloss.NewStyle().Bold(true)
	ValueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	DimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	HashStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	NameStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
)

const (
	markdownWidth = 80
	tickInterval  = 100 * time.Millisecond
)

// pulse cycles while a step runs on a terminal.
var pulse = []string{"·  ", "·· ", "···", " ··", "  ·", "   "}

// Step runs fn and reports it on one line as "✓ msg (elapsed)" or with a ✗
// when fn fails. On a terminal the line pulses until fn returns; any other
// writer only receives the final line.
func Step(w io.Writer, msg string, fn func() error) error {
	stop := func() {}
	if isTerminal(w) {
		stop = animate(w, msg)
	}

	start := time.Now()
	err := fn()
	took := time.Since(start)
	stop()

	fmt.Fprintf(w, "  %s %s %s\n", Mark(err), msg, DimStyle.Render("("+FormatDuration(took)+")"))
	return err
}

// animate redraws msg with a pulse until the returned stop is called. stop
// clears the line and waits for the redraw loop to exit.
func animate(w io.Writer, msg string) func() {
	done := make(chan struct{})
	exited := make(chan struct{})

	go func() {
		defer close(exited)
		t := time.NewTicker(tickInterval)
		defer t.Stop()

		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r  %s %s", DimStyle.Render(pulse[i%len(pulse)]), msg)
			select {
			case <-done:
				fmt.Fprint(w, "\r\033[K")
				return
			case <-t.C:
			}
		}
	}()

	return func() {
		close(done)
		<-exited
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}

// Mark returns a ✓ for nil errors or ✗ for non-nil errors.
func Mark(err error) string {
	if err != nil {
		return FailMark
	}
	return SuccessMark
}

// FormatDuration formats a duration for display (e.g. "12ms" or "3.2s").
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

var markdown struct {
	once     sync.Once
	mu       sync.Mutex
	renderer *glamour.TermRenderer
	err      error
}

// RenderMarkdown renders a reply for the terminal, without the blank padding
// glamour puts around a document. On error content is returned unchanged.
func RenderMarkdown(content string) (string, error) {
	markdown.once.Do(func() {
		markdown.renderer, markdown.err = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(markdownWidth),
		)
	})
	if markdown.err != nil {
		return content, markdown.err
	}

	markdown.mu.Lock()
	rendered, err := markdown.renderer.Render(content)
	markdown.mu.Unlock()
	if err != nil {
		return content, err
	}
	return strings.Trim(rendered, "\n"), nil
}
