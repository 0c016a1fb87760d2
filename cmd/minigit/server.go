package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cantrip-vcs/minigit/internal/config"
	"github.com/cantrip-vcs/minigit/internal/monitor"
	"github.com/cantrip-vcs/minigit/internal/repomanager"
	"github.com/cantrip-vcs/minigit/internal/reposdb"
	"github.com/cantrip-vcs/minigit/internal/vcsserver"
)

// runServer implements `minigit server --port N --root PATH [--password
// P] [--cert DIR] [--monitor-port M]`. The optional monitor dashboard
// shares the server's in-process activity Hub and repository cache, per
// SPEC_FULL.md's enrichment section.
func runServer(args []string) int {
	portStr, _, args := flagValue(args, "--port")
	root, _, args := flagValue(args, "--root")
	password, _, args := flagValue(args, "--password")
	_, _, args = flagValue(args, "--cert")
	monitorPortStr, hasMonitor, args := flagValue(args, "--monitor-port")
	_ = args

	if root == "" {
		fmt.Fprintln(os.Stderr, "fatal: server requires --root PATH")
		return 1
	}
	port := defaultServerPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: invalid --port value %q\n", portStr)
			return 1
		}
		port = p
	}

	srv, err := vcsserver.New(config.ServerConfig{
		Port:     port,
		RootPath: root,
		Password: password,
	}, config.Real)
	if err != nil {
		return fatal(err)
	}

	var monitorSrv *monitor.Server
	var hub *monitor.Hub
	watchStop := make(chan struct{})
	if hasMonitor {
		monitorPort, err := strconv.Atoi(monitorPortStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: invalid --monitor-port value %q\n", monitorPortStr)
			return 1
		}
		hub = monitor.NewHub(slog.Default())
		hub.Start()
		srv.SetMonitor(hub)

		watcher, err := reposdb.NewWatcher(srv.Cache(), srv.Repos(), slog.Default())
		if err != nil {
			return fatal(err)
		}
		defer watcher.Close()
		if names, err := srv.Repos().List(); err == nil {
			for _, name := range names {
				_ = watcher.AddRepo(name)
			}
		}
		go watcher.Run(watchStop)

		monitorSrv = monitor.NewServer(fmt.Sprintf(":%d", monitorPort), hub, srv.Repos(), srv.Cache(), slog.Default())
		go func() {
			if err := monitorSrv.ListenAndServe(); err != nil {
				slog.Error("monitor dashboard stopped", "err", err)
			}
		}()
		slog.Info("monitor dashboard listening", "port", monitorPort)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("minigit server listening on :%d (root %s)\n", port, root)

	select {
	case err := <-errCh:
		if err != nil {
			return fatal(err)
		}
	case <-ctx.Done():
		stop()
		close(watchStop)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if monitorSrv != nil {
			_ = monitorSrv.Shutdown(shutdownCtx)
		}
		if hub != nil {
			hub.Stop()
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fatal(err)
		}
	}
	return 0
}

// runMonitor implements the standalone `minigit monitor --port N --root
// PATH` form: a dashboard reading a repository root's on-disk metadata
// cache directly. It has no live activity feed of its own since it is
// not embedded in a running server process; use `server
// --monitor-port` for the live feed.
func runMonitor(args []string) int {
	portStr, _, args := flagValue(args, "--port")
	root, _, args := flagValue(args, "--root")
	_ = args

	if root == "" {
		fmt.Fprintln(os.Stderr, "fatal: monitor requires --root PATH")
		return 1
	}
	port := defaultServerPort
	if portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fatal: invalid --port value %q\n", portStr)
			return 1
		}
		port = p
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
	if _, err := reposdb.RefreshAll(cache, repos); err != nil {
		return fatal(err)
	}

	hub := monitor.NewHub(slog.Default())
	hub.Start()
	defer hub.Stop()

	srv := monitor.NewServer(fmt.Sprintf(":%d", port), hub, repos, cache, slog.Default())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	fmt.Printf("minigit monitor listening on :%d (root %s)\n", port, root)

	select {
	case err := <-errCh:
		if err != nil {
			return fatal(err)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fatal(err)
		}
	}
	return 0
}
