// Package config loads tasktxt's yaml configuration and applies the
// todo.sh environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/msageha/tasktxt/internal/logging"
	"github.com/msageha/tasktxt/internal/todotxt"
	"github.com/msageha/tasktxt/internal/view"
)

const (
	// EnvConfig points at a config file.
	EnvConfig = "TASKTXT_CONFIG"

	EnvTodoDir  = "TODO_DIR"
	EnvTodoFile = "TODO_FILE"
	EnvDoneFile = "DONE_FILE"
	EnvNoteDir  = "TODO_NOTE_DIR"
	EnvNoteTag  = todotxt.NoteTagEnv

	FileName = "config.yaml"
	AppDir   = "tasktxt"
)

type Config struct {
	TodoFile string        `yaml:"todo_file"`
	DoneFile string        `yaml:"done_file"`
	NotesDir string        `yaml:"notes_dir"`
	NoteTag  string        `yaml:"note_tag"`
	Lock     bool          `yaml:"lock"`
	Logging  LoggingConfig `yaml:"logging"`
	Watcher  WatcherConfig `yaml:"watcher"`
	View     ViewConfig    `yaml:"view"`
	History  HistoryConfig `yaml:"history"`
	Notify   NotifyConfig  `yaml:"notify"`
	Status   StatusConfig  `yaml:"status"`

	// path is the file the config was read from, empty for defaults.
	path string
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	// File receives log lines; empty means stderr.
	File string `yaml:"file"`
}

type WatcherConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
	SettleMs   int `yaml:"settle_ms"`
}

type ViewConfig struct {
	Default string      `yaml:"default"`
	Policy  view.Policy `yaml:"policy"`
}

type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	File     string `yaml:"file"`
	MaxBytes int64  `yaml:"max_bytes"`
}

type NotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Title   string `yaml:"title"`
}

type StatusConfig struct {
	// Format is text, json or yaml.
	Format string `yaml:"format"`
}

// DefaultDir is where task files live when nothing says otherwise.
func DefaultDir() string {
	if dir := os.Getenv(EnvTodoDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".todo"
	}
	return filepath.Join(home, ".todo")
}

// Default returns the configuration used without a config file.
func Default() Config {
	dir := DefaultDir()
	return Config{
		TodoFile: filepath.Join(dir, "todo.txt"),
		DoneFile: filepath.Join(dir, "done.txt"),
		NotesDir: filepath.Join(dir, "notes"),
		NoteTag:  todotxt.DefaultNoteTag,
		Lock:     true,
		Logging:  LoggingConfig{Level: "warn"},
		Watcher:  WatcherConfig{DebounceMs: 100, SettleMs: 250},
		View:     ViewConfig{Default: "inbox"},
		History:  HistoryConfig{File: filepath.Join(dir, ".tasktxt", "history.jsonl")},
		Notify:   NotifyConfig{Title: "tasktxt"},
		Status:   StatusConfig{Format: "text"},
	}
}

// DefaultPath is $XDG_CONFIG_HOME/tasktxt/config.yaml, falling back to
// ~/.config.
func DefaultPath() string {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, AppDir, FileName)
}

// Path picks the config file: the explicit path, then $TASKTXT_CONFIG,
// then DefaultPath.
func Path(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfig); p != "" {
		return p
	}
	return DefaultPath()
}

// Load reads the config at Path(explicit) over the defaults and applies
// environment overrides. A missing file is fine unless it was named
// explicitly.
func Load(explicit string) (Config, error) {
	cfg := Default()
	path := Path(explicit)

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", path, err)
			}
			cfg.path = path
			cfg.resolveRelative(filepath.Dir(path))
		case errors.Is(err, os.ErrNotExist) && explicit == "":
		default:
			return Config{}, fmt.Errorf("read %s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv lets TODO_DIR, TODO_FILE, DONE_FILE, TODO_NOTE_DIR and
// TODO_NOTE_TAG override the file.
func (c *Config) ApplyEnv() {
	if dir := os.Getenv(EnvTodoDir); dir != "" {
		c.TodoFile = filepath.Join(dir, filepath.Base(c.TodoFile))
		c.DoneFile = filepath.Join(dir, filepath.Base(c.DoneFile))
	}
	if f := os.Getenv(EnvTodoFile); f != "" {
		c.TodoFile = f
	}
	if f := os.Getenv(EnvDoneFile); f != "" {
		c.DoneFile = f
	}
	if d := os.Getenv(EnvNoteDir); d != "" {
		c.NotesDir = d
	}
	if tag := os.Getenv(EnvNoteTag); tag != "" {
		c.NoteTag = tag
	}
	c.TodoFile = expandHome(c.TodoFile)
	c.DoneFile = expandHome(c.DoneFile)
	c.NotesDir = expandHome(c.NotesDir)
	c.History.File = expandHome(c.History.File)
	c.Logging.File = expandHome(c.Logging.File)
}

func (c *Config) Validate() error {
	var errs []error
	if c.TodoFile == "" {
		errs = append(errs, errors.New("todo_file is required"))
	}
	if c.DoneFile == "" {
		errs = append(errs, errors.New("done_file is required"))
	}
	if c.TodoFile != "" && filepath.Clean(c.TodoFile) == filepath.Clean(c.DoneFile) {
		errs = append(errs, fmt.Errorf("todo_file and done_file are both %s", c.TodoFile))
	}
	if c.NoteTag != "" && strings.ContainsAny(c.NoteTag, ": \t") {
		errs = append(errs, fmt.Errorf("note_tag %q must not contain ':' or spaces", c.NoteTag))
	}
	if c.Watcher.DebounceMs < 0 || c.Watcher.SettleMs < 0 {
		errs = append(errs, errors.New("watcher durations must not be negative"))
	}
	switch c.Status.Format {
	case "", "text", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("status.format %q is not text, json or yaml", c.Status.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// File is the path the config was read from, empty when none was found.
func (c Config) File() string { return c.path }

func (c Config) LogLevel() logging.Level {
	return logging.ParseLevel(c.Logging.Level)
}

func (c Config) Debounce() time.Duration {
	return time.Duration(c.Watcher.DebounceMs) * time.Millisecond
}

func (c Config) Settle() time.Duration {
	return time.Duration(c.Watcher.SettleMs) * time.Millisecond
}

func (c Config) ParseOptions() todotxt.ParseOptions {
	return todotxt.ParseOptions{NoteTag: c.NoteTag, NotesDir: c.NotesDir}
}

// resolveRelative anchors relative paths in the file at dir.
func (c *Config) resolveRelative(dir string) {
	for _, p := range []*string{&c.TodoFile, &c.DoneFile, &c.NotesDir, &c.History.File, &c.Logging.File} {
		if *p == "" || filepath.IsAbs(*p) || strings.HasPrefix(*p, "~") {
			continue
		}
		*p = filepath.Join(dir, *p)
	}
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}
