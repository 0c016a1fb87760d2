package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/cantrip-vcs/minigit/internal/termcolor"
)

type globalFlags struct {
	colorMode termcolor.ColorMode
}

// parseGlobalFlags extracts --color and --no-color from anywhere in args,
// returning the parsed flags and the remaining (filtered) arguments.
func parseGlobalFlags(args []string) (globalFlags, []string) {
	gf := globalFlags{colorMode: termcolor.ColorAuto}
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--no-color" {
			gf.colorMode = termcolor.ColorNever
			continue
		}

		if arg == "--color" && i+1 < len(args) {
			mode, err := termcolor.ParseColorMode(args[i+1])
			if err != nil {
				fmt.Fprintf(os.Stderr, "minigit: %v\n", err)
				os.Exit(1)
			}
			gf.colorMode = mode
			i++
			continue
		}

		if val, ok := strings.CutPrefix(arg, "--color="); ok {
			mode, err := termcolor.ParseColorMode(val)
			if err != nil {
				fmt.Fprintf(os.Stderr, "minigit: %v\n", err)
				os.Exit(1)
			}
			gf.colorMode = mode
			continue
		}

		remaining = append(remaining, arg)
	}

	return gf, remaining
}

// flagValue extracts the value of a "--name value" or "--name=value" flag
// from args, returning the value, whether it was present, and args with
// the flag (and its value) removed.
func flagValue(args []string, name string) (string, bool, []string) {
	var remaining []string
	value := ""
	found := false
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == name && i+1 < len(args) {
			value = args[i+1]
			found = true
			i++
			continue
		}
		if val, ok := strings.CutPrefix(arg, name+"="); ok {
			value = val
			found = true
			continue
		}
		remaining = append(remaining, arg)
	}
	return value, found, remaining
}

// flagPresent reports whether any of names appears literally in args,
// returning args with those flags removed.
func flagPresent(args []string, names ...string) (bool, []string) {
	var remaining []string
	present := false
	for _, arg := range args {
		matched := false
		for _, name := range names {
			if arg == name {
				matched = true
			}
		}
		if matched {
			present = true
			continue
		}
		remaining = append(remaining, arg)
	}
	return present, remaining
}
