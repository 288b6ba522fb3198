// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jeranaias/agenttools/internal/util"
)

const defaultPromptWidth = 80

// TerminalPrompter asks the user on a terminal. Its Ask method is a
// Callback. Prompts are serialized; concurrent requests wait their turn.
type TerminalPrompter struct {
	out   io.Writer
	width int

	lines     chan string
	startOnce sync.Once
	in        io.Reader

	mu       sync.Mutex
	onAlways func(action string)

	frame  lipgloss.Style
	title  lipgloss.Style
	label  lipgloss.Style
	prompt lipgloss.Style
}

// NewTerminalPrompter creates a prompter reading answers from in and writing
// prompts to out. When out is a terminal its width bounds the prompt.
func NewTerminalPrompter(in io.Reader, out io.Writer) *TerminalPrompter {
	width := defaultPromptWidth
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 20 {
			width = w
		}
	}

	r := lipgloss.NewRenderer(out)
	if termenv.EnvNoColor() {
		r.SetColorProfile(termenv.Ascii)
	}
	return &TerminalPrompter{
		out:    out,
		in:     in,
		width:  width,
		lines:  make(chan string),
		frame:  r.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("214")).Padding(0, 1),
		title:  r.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		label:  r.NewStyle().Foreground(lipgloss.Color("245")),
		prompt: r.NewStyle().Bold(true),
	}
}

// IsInteractive reports whether f is attached to a terminal.
func IsInteractive(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// OnAlways registers fn to run when the user answers "always". The CLI
// points it at Gate.ApproveAction.
func (p *TerminalPrompter) OnAlways(fn func(action string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAlways = fn
}

// Ask renders req and waits for an answer. Anything other than yes or
// always, including end of input, declines.
func (p *TerminalPrompter) Ask(ctx context.Context, req Request) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startOnce.Do(p.readLines)

	fmt.Fprintln(p.out, p.render(req))
	fmt.Fprint(p.out, p.prompt.Render("Allow? [y]es / [a]lways for this session / [N]o: "))

	var answer string
	select {
	case line, ok := <-p.lines:
		if !ok {
			fmt.Fprintln(p.out)
			return false, nil
		}
		answer = strings.ToLower(strings.TrimSpace(line))
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return false, ctx.Err()
	}

	switch answer {
	case "y", "yes":
		return true, nil
	case "a", "always":
		if p.onAlways != nil {
			p.onAlways(req.Action)
		}
		return true, nil
	default:
		return false, nil
	}
}

func (p *TerminalPrompter) render(req Request) string {
	inner := p.width - 4
	var b strings.Builder
	b.WriteString(p.title.Render("Approval required"))
	b.WriteString("\n")
	b.WriteString(p.label.Render("tool:   ") + util.TruncateWidth(req.Tool, inner-8))
	b.WriteString("\n")
	b.WriteString(p.label.Render("action: ") + util.TruncateWidth(req.Action, inner-8))
	if req.Description != "" {
		b.WriteString("\n\n")
		for i, line := range strings.Split(req.Description, "\n") {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(util.TruncateWidth(line, inner))
		}
	}
	return p.frame.Render(b.String())
}

// readLines feeds p.lines from the input until it ends.
func (p *TerminalPrompter) readLines() {
	go func() {
		defer close(p.lines)
		scanner := bufio.NewScanner(p.in)
		for scanner.Scan() {
			p.lines <- scanner.Text()
		}
	}()
}
