// Package e2e drives end-to-end scenarios against the real package
// surface (localcmd, clientengine, vcsserver) with exact literal
// inputs/outputs rather than generic round-trip behavior.
package e2e

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cantrip-vcs/minigit/internal/clientengine"
	"github.com/cantrip-vcs/minigit/internal/config"
	"github.com/cantrip-vcs/minigit/internal/localcmd"
	"github.com/cantrip-vcs/minigit/internal/vcserr"
	"github.com/cantrip-vcs/minigit/internal/vcsserver"
)

func startServer(t *testing.T) int {
	t.Helper()
	srv, err := vcsserver.New(config.ServerConfig{Port: 0, RootPath: t.TempDir(), Password: "s3cret"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv.Addr().(*net.TCPAddr).Port
}

func dial(t *testing.T, port int) *clientengine.Engine {
	t.Helper()
	eng := clientengine.New(config.ClientConfig{Host: "127.0.0.1", Port: port, Password: "s3cret"})
	ctx := context.Background()
	if err := eng.Connect(ctx); err != nil {
		t.Fatal(err)
	}
	if err := eng.Authenticate(ctx, "s3cret"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { eng.Close() })
	return eng
}

// covers init, add, commit, and log producing the expected one-line format.
func TestInitAddCommitLog(t *testing.T) {
	root := t.TempDir()
	repo, err := localcmd.Init(root)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.Add([]string{"a.txt"}); err != nil {
		t.Fatal(err)
	}
	c, err := repo.Commit("m1", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}
	if c.ID == "" {
		t.Fatal("expected non-empty commit id")
	}

	entries, err := repo.Log(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	line := localcmd.FormatLogLine(entries[0])
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 || len(fields[0]) != 12 || fields[1] != "m1" {
		t.Fatalf("log line = %q, want <12hex> m1", line)
	}

	branch, status, err := repo.Status()
	_ = branch
	if err != nil {
		t.Fatal(err)
	}
	if len(status) != 0 {
		t.Fatalf("expected clean status after commit, got %+v", status)
	}
}

// covers a fast-forward push against an empty remote being accepted.
func TestFastForwardPushAccepted(t *testing.T) {
	port := startServer(t)
	ctx := context.Background()

	admin := dial(t, port)
	if err := admin.CreateRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	if err := admin.UseRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	repo, err := localcmd.Init(root)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("c1"), 0o644)
	repo.Add(nil)
	c1, err := repo.Commit("C1", time.Unix(1700000000, 0))
	if err != nil {
		t.Fatal(err)
	}

	updated, err := admin.Push(ctx, repo)
	if err != nil {
		t.Fatal(err)
	}
	if !updated {
		t.Fatal("expected push to report a new remote head")
	}

	verifier := dial(t, port)
	if err := verifier.UseRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	entries, err := verifier.Log(ctx, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != c1.ID {
		t.Fatalf("server HEAD history = %+v, want single commit %s", entries, c1.ID)
	}
}

// covers a second push built on a stale parent being rejected.
func TestNonFastForwardPushRejected(t *testing.T) {
	port := startServer(t)
	ctx := context.Background()

	admin := dial(t, port)
	if err := admin.CreateRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	if err := admin.UseRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}

	originalRoot := t.TempDir()
	originalRepo, err := localcmd.Init(originalRoot)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(originalRoot, "a.txt"), []byte("c1"), 0o644)
	originalRepo.Add(nil)
	if _, err := originalRepo.Commit("C1", time.Unix(1700000000, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.Push(ctx, originalRepo); err != nil {
		t.Fatal(err)
	}

	// Second client clones, commits C2 on top of C1, pushes successfully.
	cloner := dial(t, port)
	cloneDest := filepath.Join(t.TempDir(), "clone")
	if err := cloner.Clone(ctx, "proj", cloneDest); err != nil {
		t.Fatal(err)
	}
	clonedRepo, err := localcmd.Open(cloneDest)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(cloneDest, "a.txt"), []byte("c2"), 0o644)
	clonedRepo.Add(nil)
	if _, err := clonedRepo.Commit("C2", time.Unix(1700000100, 0)); err != nil {
		t.Fatal(err)
	}
	if err := cloner.UseRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	updated, err := cloner.Push(ctx, clonedRepo)
	if err != nil {
		t.Fatal(err)
	}
	if !updated {
		t.Fatal("expected C2 push to succeed")
	}

	// Original client (unaware of C2) commits C2' on top of C1, pushes.
	os.WriteFile(filepath.Join(originalRoot, "a.txt"), []byte("c2-prime"), 0o644)
	originalRepo.Add(nil)
	if _, err := originalRepo.Commit("C2prime", time.Unix(1700000200, 0)); err != nil {
		t.Fatal(err)
	}
	_, err = admin.Push(ctx, originalRepo)
	if err == nil {
		t.Fatal("expected non-fast-forward push to fail")
	}
	if !vcserr.Is(err, vcserr.KindConsistency) {
		t.Fatalf("expected a consistency error, got %v", err)
	}
	if !strings.Contains(err.Error(), "latest") {
		t.Fatalf("expected rejection message to mention 'latest', got %q", err.Error())
	}

	// Server HEAD remains C2.
	entries, err := cloner.Log(ctx, 0, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) == 0 || entries[0].Message != "C2" {
		t.Fatalf("server history head = %+v, want C2 still at HEAD", entries)
	}
}

// covers a pull fetching new history and rewriting the working tree.
func TestPullUpdatesWorkingTree(t *testing.T) {
	port := startServer(t)
	ctx := context.Background()

	admin := dial(t, port)
	if err := admin.CreateRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	if err := admin.UseRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}

	pushRoot := t.TempDir()
	pushRepo, err := localcmd.Init(pushRoot)
	if err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(pushRoot, "a.txt"), []byte("v2"), 0o644)
	pushRepo.Add(nil)
	if _, err := pushRepo.Commit("v2", time.Unix(1700000000, 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := admin.Push(ctx, pushRepo); err != nil {
		t.Fatal(err)
	}

	puller := dial(t, port)
	if err := puller.UseRepository(ctx, "proj"); err != nil {
		t.Fatal(err)
	}
	pullRoot := t.TempDir()
	pullRepo, err := localcmd.Init(pullRoot)
	if err != nil {
		t.Fatal(err)
	}
	updated, err := puller.Pull(ctx, pullRepo)
	if err != nil {
		t.Fatal(err)
	}
	if !updated {
		t.Fatal("expected pull to report new history")
	}

	head, err := pullRepo.Head()
	if err != nil {
		t.Fatal(err)
	}
	tree, err := pullRepo.HeadTree()
	if err != nil {
		t.Fatal(err)
	}
	if head == "" || len(tree) != 1 {
		t.Fatalf("pull HEAD/tree = %q/%+v, want one-entry tree", head, tree)
	}
	data, err := os.ReadFile(filepath.Join(pullRoot, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "v2" {
		t.Fatalf("working tree a.txt = %q, want v2", data)
	}
}
