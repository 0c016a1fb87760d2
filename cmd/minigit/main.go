package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/cantrip-vcs/minigit/internal/cli"
	"github.com/cantrip-vcs/minigit/internal/localcmd"
	"github.com/cantrip-vcs/minigit/internal/termcolor"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	gf, args := parseGlobalFlags(os.Args[1:])

	for _, a := range args {
		if a == "--version" {
			printVersion()
			os.Exit(0)
		}
	}

	cw := termcolor.NewWriter(os.Stdout, gf.colorMode)

	app := cli.NewApp("minigit", version)
	app.Stderr = os.Stderr

	// repo is populated just-in-time, before dispatch, for any command
	// whose NeedsRepo is true; the registered closures below capture
	// the pointer variable rather than a value.
	var repo *localcmd.Repo

	app.Register(&cli.Command{
		Name:     "init",
		Summary:  "Create an empty repository",
		Usage:    "minigit init [path]",
		Examples: []string{"minigit init", "minigit init myproject"},
		Run:      runInit,
	})

	app.Register(&cli.Command{
		Name:      "add",
		Summary:   "Stage files for the next commit",
		Usage:     "minigit add <paths...>",
		Examples:  []string{"minigit add .", "minigit add src/main.go"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runAdd(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "commit",
		Summary:   "Record a snapshot of the staged tree",
		Usage:     "minigit commit -m <message>",
		Examples:  []string{`minigit commit -m "fix the thing"`},
		NeedsRepo: true,
		Run:       func(args []string) int { return runCommit(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "status",
		Summary:   "Show working tree status",
		Usage:     "minigit status [-s|--porcelain]",
		Examples:  []string{"minigit status", "minigit status --porcelain"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runStatus(repo, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "checkout",
		Summary:   "Write HEAD's tree into the working directory",
		Usage:     "minigit checkout",
		NeedsRepo: true,
		Run:       func(args []string) int { return runCheckout(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "reset",
		Summary:   "Move HEAD and optionally the index/working tree",
		Usage:     "minigit reset [--soft|--mixed|--hard] [id]",
		Examples:  []string{"minigit reset --hard", "minigit reset --soft"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runReset(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "log",
		Summary:   "Show commit history",
		Usage:     "minigit log [--line] [-n <count>]",
		Examples:  []string{"minigit log", "minigit log --line -n 5"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runLog(repo, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "diff",
		Summary:   "Show changes between the index/HEAD and the working tree",
		Usage:     "minigit diff [--cached] [--name-only]",
		Examples:  []string{"minigit diff", "minigit diff --cached --name-only"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runDiff(repo, args, cw) },
	})

	app.Register(&cli.Command{
		Name:      "set-remote",
		Summary:   "Configure the server this repository pushes/pulls against",
		Usage:     "minigit set-remote <server://host:port/repo>",
		Examples:  []string{"minigit set-remote server://localhost:8080/myrepo"},
		NeedsRepo: true,
		Run:       func(args []string) int { return runSetRemote(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "push",
		Summary:   "Send local commits to the configured remote",
		Usage:     "minigit push [--password P]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runPush(repo, args) },
	})

	app.Register(&cli.Command{
		Name:      "pull",
		Summary:   "Fetch the remote's HEAD into the working tree",
		Usage:     "minigit pull [--password P]",
		NeedsRepo: true,
		Run:       func(args []string) int { return runPull(repo, args) },
	})

	app.Register(&cli.Command{
		Name:     "server",
		Summary:  "Run the repository-hosting server",
		Usage:    "minigit server --port N --root PATH [--password P] [--cert DIR] [--monitor-port M]",
		Examples: []string{"minigit server --port 8080 --root /srv/repos"},
		Run:      runServer,
	})

	app.Register(&cli.Command{
		Name:     "connect",
		Summary:  "Test connectivity and authentication against a server",
		Usage:    "minigit connect [--host H] [--port N] [--password P] [--cert DIR]",
		Examples: []string{"minigit connect --host localhost --port 8080"},
		Run:      runConnect,
	})

	app.Register(&cli.Command{
		Name:     "clone",
		Summary:  "Copy a remote repository into a new local directory",
		Usage:    "minigit clone <host:port/repo> [--password P]",
		Examples: []string{"minigit clone localhost:8080/myrepo"},
		Run:      runClone,
	})

	app.Register(&cli.Command{
		Name:     "monitor",
		Summary:  "Serve the read-only operator dashboard",
		Usage:    "minigit monitor --port N --root PATH",
		Examples: []string{"minigit monitor --port 9090 --root /srv/repos"},
		Run:      runMonitor,
	})

	app.Register(&cli.Command{
		Name:     "repos",
		Summary:  "Inspect or repair the repository metadata cache",
		Usage:    "minigit repos cache <list|refresh> --root PATH [name]",
		Examples: []string{"minigit repos cache list --root /srv/repos"},
		Run:      runRepos,
	})

	app.Register(&cli.Command{
		Name:    "version",
		Summary: "Show version information",
		Usage:   "minigit version",
		Run:     func([]string) int { printVersion(); return 0 },
	})

	if len(args) > 0 {
		if cmd := app.Lookup(args[0]); cmd != nil && cmd.NeedsRepo {
			var err error
			repo, err = localcmd.Open(".")
			if err != nil {
				fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
				os.Exit(128)
			}
		}
	}

	os.Exit(app.Run(args, cw))
}

func runRepos(args []string) int {
	if len(args) == 0 || args[0] != "cache" {
		fmt.Fprintln(os.Stderr, "fatal: repos requires a subcommand: cache")
		return 1
	}
	return runReposCache(args[1:])
}

func printVersion() {
	fmt.Printf("minigit %s\n", version)
	fmt.Printf("  commit:     %s\n", commit)
	fmt.Printf("  go version: %s\n", runtime.Version())
	fmt.Printf("  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
}
