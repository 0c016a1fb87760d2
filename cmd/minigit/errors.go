package main

import (
	"fmt"
	"os"

	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

// fatal prints a short message on stderr and returns the exit code the
// error's Kind maps to, per spec.md §7's taxonomy. UsageError exits 1
// (the operator did something wrong); every other kind exits 128, the
// donor's convention for an unrecoverable command failure.
func fatal(err error) int {
	fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
	if vcserr.Is(err, vcserr.KindUsage) {
		return 1
	}
	return 128
}
