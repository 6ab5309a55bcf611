package todotxt

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

type NoteKind int

const (
	// NoteNone means the task has no note.
	NoteNone NoteKind = iota
	// NoteShort holds content that has not been given a file yet.
	NoteShort
	// NoteLong references a note file; its content is read on first use.
	NoteLong
)

// Note is the out-of-band text attached to a task through the note tag.
// The zero Note is NoteNone.
type Note struct {
	kind    NoteKind
	dir     string
	file    string
	content string
	loaded  bool
	dirty   bool
}

// NewNote returns a short note holding content, or no note when content is empty.
func NewNote(content string) Note {
	if content == "" {
		return Note{}
	}
	return Note{kind: NoteShort, content: content, loaded: true, dirty: true}
}

// NoteFromFile references the note file name, resolved against dir.
func NoteFromFile(dir, name string) Note {
	if name == "" {
		return Note{}
	}
	return Note{kind: NoteLong, dir: dir, file: name}
}

func (n Note) Kind() NoteKind { return n.kind }
func (n Note) IsNone() bool   { return n.kind == NoteNone }

// Ref is the file name written after the note tag. It is empty unless the
// note is backed by a file.
func (n Note) Ref() string {
	if n.kind != NoteLong {
		return ""
	}
	return n.file
}

func (n Note) Path() string {
	if n.kind != NoteLong {
		return ""
	}
	if filepath.IsAbs(n.file) {
		return n.file
	}
	return filepath.Join(n.dir, n.file)
}

// Content returns the note text, reading the file the first time.
// A missing note file reads as empty.
func (n *Note) Content() (string, error) {
	if n.kind == NoteNone || n.loaded {
		return n.content, nil
	}
	data, err := os.ReadFile(n.Path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			n.loaded = true
			return "", nil
		}
		return "", fmt.Errorf("read note %s: %w", n.Path(), err)
	}
	n.content = string(data)
	n.loaded = true
	return n.content, nil
}

// SetContent replaces the note text. The change reaches disk on Write.
func (n *Note) SetContent(content string) {
	switch n.kind {
	case NoteNone:
		*n = NewNote(content)
	case NoteShort:
		if content == "" {
			*n = Note{}
			return
		}
		n.content = content
		n.dirty = true
	case NoteLong:
		n.content = content
		n.loaded = true
		n.dirty = true
	}
}

// Write flushes pending content. A short note is given a generated file
// name under dir and becomes a long note.
func (n *Note) Write(dir string) error {
	switch n.kind {
	case NoteNone:
		return nil
	case NoteShort:
		if dir == "" {
			return errors.New("write note: no notes directory configured")
		}
		name := uuid.NewString() + ".txt"
		if err := writeNoteFile(filepath.Join(dir, name), n.content); err != nil {
			return err
		}
		*n = Note{kind: NoteLong, dir: dir, file: name, content: n.content, loaded: true}
		return nil
	default:
		if !n.dirty {
			return nil
		}
		if err := writeNoteFile(n.Path(), n.content); err != nil {
			return err
		}
		n.dirty = false
		return nil
	}
}

func writeNoteFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create notes dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("write note %s: %w", path, err)
	}
	return nil
}
