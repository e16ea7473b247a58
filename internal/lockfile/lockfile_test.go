package lockfile

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLockAcquisition(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, ":8080")
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}
	defer lock.Release()

	if lock.Path() != filepath.Join(dir, LockFileName) {
		t.Errorf("Path = %q", lock.Path())
	}
	h := readHolder(lock.Path())
	if h.PID != os.Getpid() || h.Addr != ":8080" || h.Started.IsZero() {
		t.Errorf("unexpected holder %+v", h)
	}
}

func TestLockConflict(t *testing.T) {
	dir := t.TempDir()
	first, err := AcquireLock(dir, ":8080")
	if err != nil {
		t.Fatalf("Failed to acquire first lock: %v", err)
	}
	defer first.Release()

	_, err = AcquireLock(dir, ":9090")
	var lockErr *LockError
	if !errors.As(err, &lockErr) {
		t.Fatalf("Expected LockError, got %v", err)
	}
	if lockErr.Holder.PID != os.Getpid() || lockErr.Holder.Addr != ":8080" {
		t.Errorf("losing process overwrote or misread the holder: %+v", lockErr.Holder)
	}
	if !strings.Contains(err.Error(), "running") || !strings.Contains(err.Error(), ":8080") {
		t.Errorf("error does not describe the holder: %v", err)
	}
}

func TestLockReleaseAndReacquire(t *testing.T) {
	dir := t.TempDir()
	lock, err := AcquireLock(dir, "")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := lock.Release(); err != nil {
		t.Errorf("second Release should be a no-op, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, LockFileName)); !os.IsNotExist(err) {
		t.Error("lock file not removed")
	}

	again, err := AcquireLock(dir, "")
	if err != nil {
		t.Fatalf("reacquire after release: %v", err)
	}
	again.Release()
}

func TestAcquireCreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	lock, err := AcquireLock(dir, "")
	if err != nil {
		t.Fatalf("AcquireLock: %v", err)
	}
	defer lock.Release()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("state directory not created: %v", err)
	}
}

func TestParseHolder(t *testing.T) {
	in := "pid=4242\nstarted=2025-01-15T09:00:00Z\naddr=:8080\ngarbage\n"
	h := parseHolder(bufio.NewScanner(strings.NewReader(in)))
	if h.PID != 4242 || h.Addr != ":8080" || !h.Started.Equal(time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)) {
		t.Errorf("unexpected holder %+v", h)
	}
	if got := (Holder{}).String(); got != "unknown process" {
		t.Errorf("empty holder = %q", got)
	}
}

func TestIsProcessRunning(t *testing.T) {
	if !isProcessRunning(os.Getpid()) {
		t.Error("current process reported as not running")
	}
}
