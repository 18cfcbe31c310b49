package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSnapshotter(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatalf("snapshotter error: %v", err)
	}

	target := filepath.Join(dir, "config.txt")
	if err := os.WriteFile(target, []byte("original"), 0640); err != nil {
		t.Fatal(err)
	}

	handle, err := s.Snapshot(context.Background(), target)
	if err != nil {
		t.Fatalf("snapshot error: %v", err)
	}

	if err := os.WriteFile(target, []byte("mutated"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.Restore(context.Background(), handle); err != nil {
		t.Fatalf("restore error: %v", err)
	}

	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("expected original content restored, got %q", data)
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0640 {
		t.Errorf("expected mode 0640 restored, got %v", info.Mode().Perm())
	}
}

func TestSnapshot_AbsentFileRestoreDeletes(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSnapshotter(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(dir, "new.txt")
	handle, err := s.Snapshot(context.Background(), target)
	if err != nil {
		t.Fatalf("snapshot error: %v", err)
	}

	if err := os.WriteFile(target, []byte("created by tool"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := s.Restore(context.Background(), handle); err != nil {
		t.Fatalf("restore error: %v", err)
	}
	if _, err := os.Stat(target); !os.IsNotExist(err) {
		t.Error("expected file removed when restoring a snapshot of absence")
	}
}

func TestSnapshot_EmptyResourceIsNoop(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSnapshotter(dir)
	if err != nil {
		t.Fatal(err)
	}

	handle, err := s.Snapshot(context.Background(), "")
	if err != nil {
		t.Fatalf("snapshot error: %v", err)
	}
	if handle != NoopHandle {
		t.Errorf("expected noop handle, got %q", handle)
	}
	if err := s.Restore(context.Background(), handle); err != nil {
		t.Errorf("noop restore must succeed, got %v", err)
	}
}

func TestRestore_UnknownHandle(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSnapshotter(dir)
	if err != nil {
		t.Fatal(err)
	}

	err = s.Restore(context.Background(), "no-such-handle")
	if !errors.Is(err, ErrUnknownHandle) {
		t.Fatalf("expected ErrUnknownHandle, got %v", err)
	}
}

func TestDiscard_RemovesSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileSnapshotter(filepath.Join(dir, "backups"))
	if err != nil {
		t.Fatal(err)
	}

	target := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(target, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	handle, err := s.Snapshot(context.Background(), target)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Discard(handle); err != nil {
		t.Fatalf("discard error: %v", err)
	}
	if err := s.Restore(context.Background(), handle); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("expected discarded handle to be unknown, got %v", err)
	}
	// Discarding twice is fine.
	if err := s.Discard(handle); err != nil {
		t.Errorf("double discard must succeed, got %v", err)
	}
}
