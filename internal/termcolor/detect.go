package termcolor

import (
	"os"

	"golang.org/x/term"
)

// IsTerminal reports whether the given file descriptor refers to a terminal.
func IsTerminal(fd uintptr) bool {
	return term.IsTerminal(int(fd)) //nolint:gosec // G115: fd comes from os.File.Fd(); safe on all supported platforms
}

// ShouldColorize reports whether color output should be enabled for f.
// NO_COLOR takes precedence over everything else, per https://no-color.org/.
// Otherwise CLICOLOR_FORCE=1 enables color even when f isn't a terminal
// (useful when piping through a pager that itself understands ANSI codes);
// absent that, color follows whether f is actually a terminal.
func ShouldColorize(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if v, ok := os.LookupEnv("CLICOLOR_FORCE"); ok && v != "" && v != "0" {
		return true
	}
	return IsTerminal(f.Fd())
}
