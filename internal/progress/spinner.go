// Package progress provides terminal progress indicators.
package progress

import (
	"os"

	"github.com/pterm/pterm"

	"github.com/cantrip-vcs/minigit/internal/termcolor"
)

// Spinner displays an animated spinner on stderr while a long-running
// network operation (push, pull, clone) is in progress. It is only
// displayed when stderr is a TTY; in non-interactive environments (piped
// output, CI, E2E tests) it is silent.
type Spinner struct {
	msg      string
	printer  *pterm.SpinnerPrinter
	disabled bool
}

// New creates a Spinner that will display msg alongside the animation.
func New(msg string) *Spinner {
	return &Spinner{msg: msg}
}

// Start begins the spinner animation.
func (s *Spinner) Start() {
	if !termcolor.IsTerminal(os.Stderr.Fd()) {
		s.disabled = true
		return
	}
	printer, err := pterm.DefaultSpinner.WithWriter(os.Stderr).Start(s.msg)
	if err != nil {
		s.disabled = true
		return
	}
	s.printer = printer
}

// UpdateText changes the message shown alongside the animation.
func (s *Spinner) UpdateText(msg string) {
	s.msg = msg
	if s.printer != nil {
		s.printer.UpdateText(msg)
	}
}

// Stop halts the spinner animation, marking it as successfully completed.
func (s *Spinner) Stop() {
	if s.printer != nil {
		_ = s.printer.Stop()
		s.printer = nil
	}
}

// Fail halts the spinner animation, marking it as failed.
func (s *Spinner) Fail(msg string) {
	if s.printer != nil {
		s.printer.Fail(msg)
		s.printer = nil
	}
}
