package main

import (
	"fmt"
	"os"

	"github.com/cantrip-vcs/minigit/internal/repomanager"
	"github.com/cantrip-vcs/minigit/internal/reposdb"
)

// runReposCache implements `minigit repos cache <list|refresh> --root
// PATH [name]`, an operator-facing inspection/repair tool for the
// repository metadata cache described in SPEC_FULL.md's enrichment
// section.
func runReposCache(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "fatal: repos cache requires a subcommand: list | refresh")
		return 1
	}
	action := args[0]
	args = args[1:]

	root, _, args := flagValue(args, "--root")
	if root == "" {
		fmt.Fprintln(os.Stderr, "fatal: repos cache requires --root PATH")
		return 1
	}

	repos, err := repomanager.New(root)
	if err != nil {
		return fatal(err)
	}
	cache, err := reposdb.Open(reposdb.DBPath(root))
	if err != nil {
		return fatal(err)
	}
	defer cache.Close()

	switch action {
	case "list":
		entries, err := cache.List()
		if err != nil {
			return fatal(err)
		}
		for _, e := range entries {
			fmt.Printf("%-24s commits=%-6d last_modified=%d\n", e.Name, e.CommitCount, e.LastModified)
		}
		return 0
	case "refresh":
		if len(args) == 1 {
			entry, err := reposdb.Refresh(cache, repos, args[0])
			if err != nil {
				return fatal(err)
			}
			fmt.Printf("refreshed %s: commits=%d last_modified=%d\n", entry.Name, entry.CommitCount, entry.LastModified)
			return 0
		}
		entries, err := reposdb.RefreshAll(cache, repos)
		if err != nil {
			return fatal(err)
		}
		fmt.Printf("refreshed %d repositories\n", len(entries))
		return 0
	default:
		fmt.Fprintf(os.Stderr, "fatal: unknown repos cache subcommand %q\n", action)
		return 1
	}
}
