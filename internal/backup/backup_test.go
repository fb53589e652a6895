package backup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func touch(t *testing.T, dir, name string, age time.Duration) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if age > 0 {
		old := time.Now().Add(-age)
		if err := os.Chtimes(path, old, old); err != nil {
			t.Fatal(err)
		}
	}
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "/opt/marzban")
	touch(t, dir, "marzban_backup_20240101_000000.tar.gz", 0)
	touch(t, dir, "marzban_backup_20240301_000000.tar.gz", 0)
	touch(t, dir, "marzban_autobackup_20240201_000000.tar.gz", 0)
	touch(t, dir, "unrelated.txt", 0)

	names, err := m.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	// порядок по метке времени, префикс auto/manual не влияет
	want := []string{
		"marzban_backup_20240301_000000.tar.gz",
		"marzban_autobackup_20240201_000000.tar.gz",
		"marzban_backup_20240101_000000.tar.gz",
	}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
}

func TestListSnapshotsAutoNewerThanManual(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "/opt/marzban")
	touch(t, dir, "marzban_backup_20240101_000000.tar.gz", 0)
	touch(t, dir, "marzban_autobackup_20240501_000000.tar.gz", 0)

	names, err := m.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if names[0] != "marzban_autobackup_20240501_000000.tar.gz" {
		t.Errorf("newer auto backup must come first, got %v", names)
	}
}

func TestCleanOldSnapshots(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "/opt/marzban")
	touch(t, dir, "marzban_backup_20230101_000000.tar.gz", 60*24*time.Hour)
	touch(t, dir, "marzban_backup_20240301_000000.tar.gz", time.Hour)

	if err := m.CleanOldSnapshots(31 * 24 * time.Hour); err != nil {
		t.Fatal(err)
	}
	names, err := m.ListSnapshots()
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 1 || names[0] != "marzban_backup_20240301_000000.tar.gz" {
		t.Errorf("old archive must be removed, got %v", names)
	}
}

func TestRestoreSnapshotMissingFile(t *testing.T) {
	m := NewManager(t.TempDir(), "/opt/marzban")
	err := m.RestoreSnapshot("marzban_backup_nope.tar.gz")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("restore of a missing archive must fail clearly, got %v", err)
	}
}

func TestRestoreSnapshotStripsPath(t *testing.T) {
	// имя файла из команды не должно выводить за пределы каталога бэкапов
	m := NewManager(t.TempDir(), "/opt/marzban")
	err := m.RestoreSnapshot("../../etc/passwd")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("path traversal must not resolve, got %v", err)
	}
}
