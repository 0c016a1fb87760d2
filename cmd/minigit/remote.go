package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cantrip-vcs/minigit/internal/clientengine"
	"github.com/cantrip-vcs/minigit/internal/config"
	"github.com/cantrip-vcs/minigit/internal/localcmd"
	"github.com/cantrip-vcs/minigit/internal/progress"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
)

const defaultServerPort = 8080

// remoteTarget is a parsed `server://host:port/repo` config entry.
type remoteTarget struct {
	Host string
	Port int
	Repo string
}

func remoteConfigPath(root string) string {
	return filepath.Join(root, localcmd.HiddenDir, "config")
}

// writeRemoteConfig overwrites the "remote=" line of a repository's
// config file, preserving any other key=value lines already present.
func writeRemoteConfig(root, value string) error {
	path := remoteConfigPath(root)
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return vcserr.Wrap(vcserr.KindStorage, "failed to read config", err)
	}
	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "remote=") {
			continue
		}
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	kept = append(kept, "remote="+value)
	out := strings.Join(kept, "\n") + "\n"
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return vcserr.Wrap(vcserr.KindStorage, "failed to write config", err)
	}
	return nil
}

// readRemoteConfig reads and parses the "remote=" line of a
// repository's config file.
func readRemoteConfig(root string) (remoteTarget, error) {
	data, err := os.ReadFile(remoteConfigPath(root))
	if err != nil {
		return remoteTarget{}, vcserr.Wrap(vcserr.KindUsage, "no remote configured; run set-remote first", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if after, ok := strings.CutPrefix(line, "remote="); ok {
			return parseRemoteURL(after)
		}
	}
	return remoteTarget{}, vcserr.New(vcserr.KindUsage, "no remote configured; run set-remote first")
}

// parseRemoteURL parses "server://host:port/repo", grounded on the
// original client's parseCloneURL: a missing port defaults to 8080.
func parseRemoteURL(url string) (remoteTarget, error) {
	rest, ok := strings.CutPrefix(url, "server://")
	if !ok {
		return remoteTarget{}, vcserr.New(vcserr.KindUsage, "remote URL must start with server://")
	}
	return parseHostPortRepo(rest)
}

func parseHostPortRepo(s string) (remoteTarget, error) {
	slash := strings.Index(s, "/")
	if slash < 0 {
		return remoteTarget{}, vcserr.New(vcserr.KindUsage, "remote must be in the form host:port/repo")
	}
	hostPort, repo := s[:slash], s[slash+1:]
	if repo == "" {
		return remoteTarget{}, vcserr.New(vcserr.KindUsage, "remote must name a repository")
	}
	host, port := hostPort, defaultServerPort
	if colon := strings.LastIndex(hostPort, ":"); colon >= 0 {
		host = hostPort[:colon]
		p, err := strconv.Atoi(hostPort[colon+1:])
		if err == nil {
			port = p
		}
	}
	if host == "" {
		return remoteTarget{}, vcserr.New(vcserr.KindUsage, "remote must name a host")
	}
	return remoteTarget{Host: host, Port: port, Repo: repo}, nil
}

func newEngine(target remoteTarget, password string) *clientengine.Engine {
	return clientengine.New(config.ClientConfig{
		Host:     target.Host,
		Port:     target.Port,
		Password: password,
	})
}

func connectAndSelect(ctx context.Context, e *clientengine.Engine, password, repoName string) error {
	if err := e.Connect(ctx); err != nil {
		return err
	}
	if err := e.Authenticate(ctx, password); err != nil {
		return err
	}
	if repoName != "" {
		return e.UseRepository(ctx, repoName)
	}
	return nil
}

func runPush(repo *localcmd.Repo, args []string) int {
	password, _, args := flagValue(args, "--password")

	target, err := readRemoteConfig(repo.Root)
	if err != nil {
		return fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	e := newEngine(target, password)
	defer e.Close()

	spin := progress.New("Pushing to " + target.Host + "...")
	spin.Start()
	defer spin.Stop()

	if err := connectAndSelect(ctx, e, password, target.Repo); err != nil {
		spin.Fail("push failed")
		return fatal(err)
	}

	updated, err := e.Push(ctx, repo)
	if err != nil {
		spin.Fail("push failed")
		return fatal(err)
	}
	spin.Stop()
	if updated {
		fmt.Println("Push complete.")
	} else {
		fmt.Println("Everything up-to-date.")
	}
	return 0
}

func runPull(repo *localcmd.Repo, args []string) int {
	password, _, args := flagValue(args, "--password")

	target, err := readRemoteConfig(repo.Root)
	if err != nil {
		return fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	e := newEngine(target, password)
	defer e.Close()

	spin := progress.New("Pulling from " + target.Host + "...")
	spin.Start()
	defer spin.Stop()

	if err := connectAndSelect(ctx, e, password, target.Repo); err != nil {
		spin.Fail("pull failed")
		return fatal(err)
	}

	updated, err := e.Pull(ctx, repo)
	if err != nil {
		spin.Fail("pull failed")
		return fatal(err)
	}
	spin.Stop()
	if updated {
		fmt.Println("Pull complete.")
	} else {
		fmt.Println("Already up-to-date.")
	}
	return 0
}

func runClone(args []string) int {
	password, _, args := flagValue(args, "--password")
	_, _, args = flagValue(args, "--cert")

	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "fatal: clone requires <host:port/repo>")
		return 1
	}

	target, err := parseHostPortRepo(args[0])
	if err != nil {
		return fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	e := newEngine(target, password)
	defer e.Close()

	spin := progress.New("Cloning " + target.Repo + "...")
	spin.Start()
	defer spin.Stop()

	if err := connectAndSelect(ctx, e, password, ""); err != nil {
		spin.Fail("clone failed")
		return fatal(err)
	}

	destRoot := target.Repo
	if err := e.Clone(ctx, target.Repo, destRoot); err != nil {
		spin.Fail("clone failed")
		return fatal(err)
	}
	spin.Stop()
	fmt.Printf("Cloned into %s\n", destRoot)
	return 0
}

// runConnect exercises the bare connect/authenticate handshake
// without selecting a repository, useful as a connectivity check.
func runConnect(args []string) int {
	host, _, args := flagValue(args, "--host")
	if host == "" {
		host = "localhost"
	}
	portStr, _, args := flagValue(args, "--port")
	port := defaultServerPort
	if portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}
	password, _, args := flagValue(args, "--password")
	_, _, args = flagValue(args, "--cert")
	_ = args

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	e := clientengine.New(config.ClientConfig{Host: host, Port: port, Password: password})
	defer e.Close()

	if err := e.Connect(ctx); err != nil {
		return fatal(err)
	}
	if err := e.Authenticate(ctx, password); err != nil {
		return fatal(err)
	}
	fmt.Printf("Connected and authenticated to %s:%d\n", host, port)
	return 0
}
