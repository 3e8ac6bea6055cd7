package cliui

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/capsule/pkg/llm"
	"github.com/papercomputeco/capsule/pkg/stream"
)

var (
	UserLabel   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("you ›")
	FutureLabel = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("213")).Render("future you ›")
	NoticeStyle = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("196"))
)

// StreamPrinter is a conversation.Sink that writes turns to a terminal as
// they grow. A turn republished at the same index only prints the text that
// was not printed yet.
type StreamPrinter struct {
	mu  sync.Mutex
	out io.Writer

	echoUser bool

	// index is the turn being printed, -1 before the first one.
	index   int
	printed string
}

// NewStreamPrinter creates a StreamPrinter writing to out. User turns are
// echoed until SetEchoUser(false) is called.
func NewStreamPrinter(out io.Writer) *StreamPrinter {
	return &StreamPrinter{
		out:      out,
		echoUser: true,
		index:    -1,
	}
}

// SetEchoUser controls whether user turns are printed. Interactive chat turns
// it off because the terminal already shows what was typed.
func (p *StreamPrinter) SetEchoUser(echo bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.echoUser = echo
}

// Publish implements conversation.Sink.
func (p *StreamPrinter) Publish(index int, turn llm.Turn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if turn.Role == llm.RoleUser && !p.echoUser {
		p.endTurn()
		p.index = -1
		return
	}

	if stream.IsNotice(turn) {
		p.endTurn()
		fmt.Fprintln(p.out, NoticeStyle.Render(turn.Content))
		p.index = -1
		p.printed = ""
		return
	}

	if index != p.index {
		p.endTurn()
		p.index = index
		p.printed = ""
		fmt.Fprintf(p.out, "%s ", label(turn.Role))
	}

	if strings.HasPrefix(turn.Content, p.printed) {
		io.WriteString(p.out, turn.Content[len(p.printed):])
	} else {
		// The turn was rewritten rather than extended.
		fmt.Fprintf(p.out, "\n%s %s", label(turn.Role), turn.Content)
	}
	p.printed = turn.Content
}

// Done terminates the turn being printed so the next prompt starts on a
// fresh line.
func (p *StreamPrinter) Done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endTurn()
	p.index = -1
	p.printed = ""
}

func (p *StreamPrinter) endTurn() {
	if p.index >= 0 && p.printed != "" {
		io.WriteString(p.out, "\n\n")
	}
	p.printed = ""
}

func label(role llm.Role) string {
	if role == llm.RoleUser {
		return UserLabel
	}
	return FutureLabel
}
