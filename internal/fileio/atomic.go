// Package fileio holds the file primitives of the store: backup copies
// taken before an overwrite, quarantine of unreadable task lines, and
// atomic yaml writes for configuration.
package fileio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"
)

// BackupSuffix is appended to a file name to form its backup copy.
const BackupSuffix = ".bak"

func AtomicWrite(path string, data any) error {
	content, err := yamlv3.Marshal(data)
	if err != nil {
		return fmt.Errorf("yaml marshal: %w", err)
	}
	return AtomicWriteRaw(path, content)
}

// AtomicWriteRaw writes content to a temp file beside path, syncs it, keeps
// a .bak of the previous file and renames the temp file into place.
func AtomicWriteRaw(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tasktxt-tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if _, err := Backup(path); err != nil {
		return fmt.Errorf("create backup: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("atomic rename: %w", err)
	}
	return nil
}

// Backup copies path to path+".bak" and syncs the copy. A missing path has
// nothing to protect: Backup returns "" and no error.
func Backup(path string) (string, error) {
	bakPath := path + BackupSuffix
	if err := copyFile(path, bakPath); err != nil {
		if errors.Is(err, os.ErrNotExist) && !exists(path) {
			return "", nil
		}
		return "", err
	}
	return bakPath, nil
}

// RestoreFromBackup puts the .bak copy of path back in place.
func RestoreFromBackup(path string) error {
	bakPath := path + BackupSuffix
	if !exists(bakPath) {
		return fmt.Errorf("no backup file: %s", bakPath)
	}
	content, err := os.ReadFile(bakPath)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	if err := AtomicWriteRaw(path, content); err != nil {
		return fmt.Errorf("restore from backup: %w", err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
