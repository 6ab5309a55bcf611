package fileio

import (
	"os"
	"path/filepath"
	"testing"

	yamlv3 "gopkg.in/yaml.v3"
)

func TestAtomicWrite_Success(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	data := map[string]any{"todo_file": "todo.txt", "lock": true}
	if err := AtomicWrite(path, data); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	var result map[string]any
	if err := yamlv3.Unmarshal(content, &result); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if result["todo_file"] != "todo.txt" {
		t.Errorf("todo_file: got %v, want %q", result["todo_file"], "todo.txt")
	}
}

func TestAtomicWrite_CreatesBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	if err := AtomicWrite(path, map[string]string{"version": "1"}); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := AtomicWrite(path, map[string]string{"version": "2"}); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	var bak map[string]string
	raw, err := os.ReadFile(path + BackupSuffix)
	if err != nil {
		t.Fatalf("ReadFile .bak failed: %v", err)
	}
	if err := yamlv3.Unmarshal(raw, &bak); err != nil {
		t.Fatalf("Unmarshal .bak failed: %v", err)
	}
	if bak["version"] != "1" {
		t.Errorf("backup version: got %q, want %q", bak["version"], "1")
	}
}

func TestAtomicWrite_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := AtomicWrite(path, map[string]int{"n": 1}); err != nil {
		t.Fatalf("AtomicWrite failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "config.yaml" {
			t.Errorf("unexpected file left behind: %s", e.Name())
		}
	}
}

func TestBackup_MissingSourceIsNoop(t *testing.T) {
	dir := t.TempDir()
	bak, err := Backup(filepath.Join(dir, "todo.txt"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if bak != "" {
		t.Errorf("bak path: got %q, want empty", bak)
	}
}

func TestBackup_CopiesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.txt")
	if err := os.WriteFile(path, []byte("(A) one\n"), 0644); err != nil {
		t.Fatal(err)
	}

	bak, err := Backup(path)
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}
	data, err := os.ReadFile(bak)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "(A) one\n" {
		t.Errorf("backup content: got %q", data)
	}
}

func TestBackup_FailsWhenTargetUnwritable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.txt")
	if err := os.WriteFile(path, []byte("keep\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path+BackupSuffix, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := Backup(path); err == nil {
		t.Fatal("expected backup failure when .bak is a directory")
	}
}

func TestRestoreFromBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "todo.txt")
	if err := os.WriteFile(path+BackupSuffix, []byte("old\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("new\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RestoreFromBackup(path); err != nil {
		t.Fatalf("RestoreFromBackup: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "old\n" {
		t.Errorf("restored content: got %q", data)
	}
}

func TestRestoreFromBackup_NoBackup(t *testing.T) {
	if err := RestoreFromBackup(filepath.Join(t.TempDir(), "todo.txt")); err == nil {
		t.Error("expected error without backup")
	}
}
