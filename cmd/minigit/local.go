package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cantrip-vcs/minigit/internal/localcmd"
	"github.com/cantrip-vcs/minigit/internal/termcolor"
	"github.com/cantrip-vcs/minigit/internal/textdiff"
	"github.com/cantrip-vcs/minigit/internal/workdir"
)

func runInit(args []string) int {
	root := "."
	if len(args) > 0 {
		root = args[0]
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fatal(err)
	}
	if _, err := localcmd.Init(root); err != nil {
		return fatal(err)
	}
	abs, _ := filepath.Abs(root)
	fmt.Printf("Initialized empty minigit repository in %s\n", filepath.Join(abs, localcmd.HiddenDir))
	return 0
}

func runAdd(repo *localcmd.Repo, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "fatal: add requires at least one path")
		return 1
	}
	if _, err := repo.Add(args); err != nil {
		return fatal(err)
	}
	return 0
}

func runCommit(repo *localcmd.Repo, args []string) int {
	message, ok, _ := flagValue(args, "-m")
	if !ok {
		message, ok, _ = flagValue(args, "--message")
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "fatal: commit requires -m <message>")
		return 1
	}
	c, err := repo.Commit(message, time.Now())
	if err != nil {
		return fatal(err)
	}
	id := c.ID
	if len(id) > 12 {
		id = id[:12]
	}
	fmt.Printf("[%s] %s\n", id, message)
	return 0
}

func runStatus(repo *localcmd.Repo, args []string, cw *termcolor.Writer) int {
	porcelain, _ := flagPresent(args, "-s", "--porcelain")

	branch, entries, err := repo.Status()
	if err != nil {
		return fatal(err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	if porcelain {
		for _, e := range entries {
			fmt.Printf("%-2s %s\n", string(e.Status), displayPath(e))
		}
		return 0
	}

	if branch != "" {
		fmt.Println(cw.Gray(fmt.Sprintf("On branch %s", branch)))
	} else {
		fmt.Println(cw.Gray("On an unborn branch"))
	}

	if len(entries) == 0 {
		fmt.Println("nothing to commit, working tree clean")
		return 0
	}

	for _, e := range entries {
		fmt.Printf("\t%-24s %s\n", statusLabel(e.Status), displayPath(e))
	}
	return 0
}

func displayPath(e workdir.Entry) string {
	if e.Status == workdir.StatusRenamed {
		return fmt.Sprintf("%s -> %s", e.OldPath, e.Path)
	}
	return e.Path
}

func statusLabel(s workdir.Status) string {
	switch s {
	case workdir.StatusUntracked:
		return "untracked:"
	case workdir.StatusDeleted:
		return "deleted:"
	case workdir.StatusModifiedDeleted:
		return "modified/deleted:"
	case workdir.StatusAddedThenDeleted:
		return "added/deleted:"
	case workdir.StatusAdded:
		return "new file:"
	case workdir.StatusAddedModified:
		return "new file (modified):"
	case workdir.StatusModified:
		return "modified:"
	case workdir.StatusModifiedModified:
		return "modified (unstaged):"
	case workdir.StatusRenamed:
		return "renamed:"
	default:
		return string(s) + ":"
	}
}

func runCheckout(repo *localcmd.Repo, args []string) int {
	if err := repo.Checkout(); err != nil {
		return fatal(err)
	}
	return 0
}

func runReset(repo *localcmd.Repo, args []string) int {
	mode := localcmd.ResetMixed
	if present, rest := flagPresent(args, "--soft"); present {
		mode = localcmd.ResetSoft
		args = rest
	}
	if present, rest := flagPresent(args, "--mixed"); present {
		mode = localcmd.ResetMixed
		args = rest
	}
	if present, rest := flagPresent(args, "--hard"); present {
		mode = localcmd.ResetHard
		args = rest
	}
	target := ""
	if len(args) > 0 {
		target = args[0]
	}
	if err := repo.Reset(mode, target); err != nil {
		return fatal(err)
	}
	return 0
}

func runLog(repo *localcmd.Repo, args []string, cw *termcolor.Writer) int {
	oneLine, args := flagPresent(args, "--line", "--oneline")
	max := 0
	if n, ok, _ := flagValue(args, "-n"); ok {
		v, err := strconv.Atoi(n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: invalid -n value %q\n", n)
			return 1
		}
		max = v
	}

	entries, err := repo.Log(max)
	if err != nil {
		return fatal(err)
	}

	for _, e := range entries {
		if oneLine {
			fmt.Println(localcmd.FormatLogLine(e))
			continue
		}
		fmt.Println(cw.Gray(fmt.Sprintf("commit %s", e.Commit.ID)))
		fmt.Printf("Date:   %s\n", e.Commit.Timestamp.Format(time.RFC1123Z))
		fmt.Printf("\n    %s\n\n", e.Commit.Message)
		if len(e.Changed) > 0 {
			changed := append([]string(nil), e.Changed...)
			sort.Strings(changed)
			fmt.Printf("    changed: %s\n\n", strings.Join(changed, ", "))
		}
	}
	return 0
}

func runDiff(repo *localcmd.Repo, args []string, cw *termcolor.Writer) int {
	cached, args := flagPresent(args, "--cached")
	nameOnly, _ := flagPresent(args, "--name-only")

	var (
		diffs []textdiff.FileDiff
		err   error
	)
	if cached {
		diffs, err = repo.DiffCached()
	} else {
		diffs, err = repo.Diff()
	}
	if err != nil {
		return fatal(err)
	}

	for _, fd := range diffs {
		if nameOnly {
			fmt.Println(fd.Path)
			continue
		}
		printFileDiff(fd, cw)
	}
	return 0
}

func printFileDiff(fd textdiff.FileDiff, cw *termcolor.Writer) {
	fmt.Printf("diff --minigit a/%s b/%s\n", fd.Path, fd.Path)
	if fd.IsBinary {
		fmt.Printf("Binary files a/%s and b/%s differ\n", fd.Path, fd.Path)
		return
	}
	for _, h := range fd.Hunks {
		fmt.Println(cw.Cyan(fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)))
		for _, l := range h.Lines {
			switch l.Type {
			case textdiff.LineAddition:
				fmt.Println(cw.Green("+" + l.Content))
			case textdiff.LineDeletion:
				fmt.Println(cw.Red("-" + l.Content))
			default:
				fmt.Println(" " + l.Content)
			}
		}
	}
	if fd.Truncated {
		fmt.Println(cw.Yellow("(diff truncated)"))
	}
}

// runSetRemote writes "remote=<value>" into the repository's config
// file, overwriting any previous remote entry. value is expected in
// the form server://host:port/repo per spec.md §4.9's remote URL form.
func runSetRemote(repo *localcmd.Repo, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "fatal: set-remote requires exactly one <path-or-url>")
		return 1
	}
	if err := writeRemoteConfig(repo.Root, args[0]); err != nil {
		return fatal(err)
	}
	return 0
}
