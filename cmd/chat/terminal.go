package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/MegaGrindStone/polaris/internal/conversation"
	"github.com/MegaGrindStone/polaris/internal/models"
	"github.com/MegaGrindStone/polaris/internal/transcript"
	"github.com/charmbracelet/lipgloss"
)

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	userStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("229"))
	botStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	strongStyle = lipgloss.NewStyle().Bold(true)
)

// terminal renders the conversation as lines of text. Fragments are printed as they arrive; once a reply
// finishes it is reprinted with markup styling only if it contained any.
type terminal struct {
	ctrl *conversation.Controller

	mu  sync.Mutex
	out io.Writer
}

func newTerminal(ctrl *conversation.Controller, out io.Writer) *terminal {
	return &terminal{ctrl: ctrl, out: out}
}

// Run prints the transcript so far and then sends every line read from in until in is exhausted or ctx is
// done.
func (t *terminal) Run(ctx context.Context, in io.Reader) error {
	for _, msg := range t.ctrl.Transcript().Messages() {
		t.printMessage(msg)
	}
	t.printStatus(t.ctrl.State())

	unsubscribe := t.ctrl.Transcript().Subscribe(t.onEvent)
	defer unsubscribe()
	unwatch := t.ctrl.Subscribe(func(tr conversation.Transition) {
		if tr.To == models.OrbThinking || tr.To == models.OrbIdle {
			t.printStatus(tr.To)
		}
	})
	defer unwatch()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			// Blank lines are not input: the orb must not react to them.
			if strings.TrimSpace(line) == "" {
				continue
			}
			t.ctrl.Focus()
			t.ctrl.Send(ctx, line)
		}
	}
}

func (t *terminal) onEvent(e transcript.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case e.Kind == transcript.EventAppended && e.Message.IsUser():
		fmt.Fprintln(t.out, userStyle.Render("you> "+e.Message.Text))
	case e.Kind == transcript.EventAppended:
		fmt.Fprint(t.out, botStyle.Render("polaris> "))
	case e.Fragment != "":
		fmt.Fprint(t.out, e.Fragment)
	case !e.Message.Streaming:
		fmt.Fprintln(t.out)
		if styled := styleMarkup(e.Message.Text); styled != e.Message.Text {
			fmt.Fprintln(t.out, styled)
		}
	}
}

func (t *terminal) printMessage(msg models.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.IsUser() {
		fmt.Fprintln(t.out, userStyle.Render("you> "+msg.Text))
		return
	}
	fmt.Fprintln(t.out, botStyle.Render("polaris> ")+styleMarkup(msg.Text))
}

func (t *terminal) printStatus(state models.OrbState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintln(t.out, statusStyle.Render("["+state.StatusText()+"]"))
}

func styleMarkup(text string) string {
	var out string
	for _, seg := range models.ParseMarkup(text) {
		switch seg.Kind {
		case models.SegmentCode:
			out += codeStyle.Render(seg.Text)
		case models.SegmentStrong:
			out += strongStyle.Render(seg.Text)
		default:
			out += seg.Text
		}
	}
	return out
}
