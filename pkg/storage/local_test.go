package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newWorkspace(t *testing.T) *LocalWorkspace {
	t.Helper()
	lw, err := NewLocalWorkspace(filepath.Join(t.TempDir(), "downloads"), zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewLocalWorkspace: %v", err)
	}
	return lw
}

func TestCreateAndRelease(t *testing.T) {
	lw := newWorkspace(t)

	dir, err := lw.Create("3f1c")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if dir != filepath.Join(lw.Base(), "3f1c") {
		t.Errorf("dir = %s", dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, "fallback_x"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "fallback_x", "1.jpg"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := lw.Release(dir); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("directory still present: %v", err)
	}
	if _, err := os.Stat(lw.Base()); err != nil {
		t.Errorf("base directory removed: %v", err)
	}
}

func TestCreateRejectsBadIDs(t *testing.T) {
	lw := newWorkspace(t)
	for _, id := range []string{"", ".", "..", "../x", "a/b"} {
		if _, err := lw.Create(id); err == nil {
			t.Errorf("Create(%q) succeeded", id)
		}
	}
}

func TestReleaseRefusesOutsidePaths(t *testing.T) {
	lw := newWorkspace(t)
	outside := t.TempDir()

	for _, dir := range []string{outside, lw.Base(), filepath.Join(lw.Base(), "..")} {
		if err := lw.Release(dir); err == nil {
			t.Errorf("Release(%q) succeeded", dir)
		}
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside directory touched: %v", err)
	}
}

func TestSweep(t *testing.T) {
	lw := newWorkspace(t)

	stale, _ := lw.Create("stale")
	fresh, _ := lw.Create("fresh")
	if err := os.WriteFile(filepath.Join(stale, "a.mp4"), make([]byte, 2048), 0644); err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}

	removed, freed, err := lw.Sweep(context.Background(), 2*time.Hour)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 1 || freed != 2048 {
		t.Errorf("removed=%d freed=%d", removed, freed)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale directory survived")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Error("fresh directory removed")
	}
}
