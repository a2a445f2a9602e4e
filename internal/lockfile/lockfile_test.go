package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAcquire_WritesHolder(t *testing.T) {
	db := filepath.Join(t.TempDir(), "state", "msia.db")

	lock, err := Acquire(db, ":8080")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer lock.Release()

	if lock.Path() != db+LockSuffix {
		t.Errorf("unexpected lock path %q", lock.Path())
	}
	content, err := os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("read lock file: %v", err)
	}
	want := fmt.Sprintf("pid=%d\nowner=:8080\n", os.Getpid())
	if string(content) != want {
		t.Errorf("lock content = %q, want %q", content, want)
	}
}

func TestAcquire_Conflict(t *testing.T) {
	db := filepath.Join(t.TempDir(), "msia.db")

	first, err := Acquire(db, "first")
	if err != nil {
		t.Fatalf("first Acquire failed: %v", err)
	}
	defer first.Release()

	second, err := Acquire(db, "second")
	if err == nil {
		second.Release()
		t.Fatal("second Acquire should fail while the first lock is held")
	}

	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("expected *LockError, got %T", err)
	}
	if !strings.Contains(lockErr.Holder, fmt.Sprintf("pid %d (running)", os.Getpid())) {
		t.Errorf("holder should name the running pid: %q", lockErr.Holder)
	}
	if !strings.Contains(lockErr.Holder, "owner first") {
		t.Errorf("holder should keep the first owner: %q", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), lockErr.LockPath) {
		t.Errorf("error should mention the lock path: %s", err)
	}
}

func TestRelease_AllowsReacquire(t *testing.T) {
	db := filepath.Join(t.TempDir(), "msia.db")

	lock, err := Acquire(db, "")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op: %v", err)
	}
	if _, err := os.Stat(lock.Path()); !os.IsNotExist(err) {
		t.Errorf("lock file should be removed, stat err = %v", err)
	}

	again, err := Acquire(db, "")
	if err != nil {
		t.Fatalf("re-Acquire failed: %v", err)
	}
	again.Release()
}

func TestParseLockInfo(t *testing.T) {
	got := parseLockInfo("pid=42\nowner=:8080\ngarbage\n")
	if got["pid"] != "42" || got["owner"] != ":8080" || len(got) != 2 {
		t.Errorf("unexpected parse: %v", got)
	}
}

func TestDescribeHolder_StalePID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.lock")
	if err := os.WriteFile(path, []byte("pid=999999999\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := describeHolder(path); !strings.Contains(got, "not running") {
		t.Errorf("expected stale pid description, got %q", got)
	}
	if got := describeHolder(filepath.Join(t.TempDir(), "missing")); got != "" {
		t.Errorf("missing file should describe nothing, got %q", got)
	}
}
