package tasklist

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned for an id outside the loaded list.
var ErrNotFound = errors.New("task not found")

// IOError is a failed file operation on one of the task files.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// BackupError reports that the copy to <file>.bak failed. The file it
// protects has not been touched.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("backup %s: %v (file left unchanged)", e.Path, e.Err)
}

// Unwrap exposes both the cause and the IOError view of the failure, so
// errors.As(err, new(*IOError)) holds for backup failures too.
func (e *BackupError) Unwrap() []error {
	return []error{e.Err, &IOError{Op: "backup", Path: e.Path, Err: e.Err}}
}
