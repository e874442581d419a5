package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// reporter prints friendly-mode status lines to stderr. Grounded on
// the teacher's lib/ticketui markdown renderer: a lipgloss.Renderer
// bound explicitly to os.Stderr with an ANSI256 termenv profile,
// rather than relying on lipgloss's global auto-detected renderer,
// since effect-run's stderr is frequently piped into a log collector
// that still wants ANSI sequences.
type reporter struct {
	friendly bool
	info     lipgloss.Style
	warn     lipgloss.Style
	success  lipgloss.Style
}

func newReporter(friendly bool) *reporter {
	renderer := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	return &reporter{
		friendly: friendly,
		info:     renderer.NewStyle().Foreground(lipgloss.Color("39")),
		warn:     renderer.NewStyle().Foreground(lipgloss.Color("214")).Bold(true),
		success:  renderer.NewStyle().Foreground(lipgloss.Color("42")),
	}
}

func (r *reporter) Info(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if r.friendly {
		fmt.Fprintln(os.Stderr, r.info.Render(line))
		return
	}
	fmt.Fprintln(os.Stderr, line)
}

func (r *reporter) Warn(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if r.friendly {
		fmt.Fprintln(os.Stderr, r.warn.Render("warning: "+line))
		return
	}
	fmt.Fprintln(os.Stderr, "warning: "+line)
}

func (r *reporter) Success(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if r.friendly {
		fmt.Fprintln(os.Stderr, r.success.Render(line))
		return
	}
	fmt.Fprintln(os.Stderr, line)
}
