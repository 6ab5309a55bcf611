// Package setup handles `tasktxt init`.
package setup

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/msageha/tasktxt/internal/config"
	"github.com/msageha/tasktxt/internal/fileio"
	"github.com/msageha/tasktxt/templates"
)

type Options struct {
	// Dir holds the task files. Empty means config.DefaultDir().
	Dir string
	// ConfigPath is where the config is written. Empty means config.Path("").
	ConfigPath string
	// Force overwrites an existing config file; task files are never
	// overwritten.
	Force bool
}

type Result struct {
	ConfigPath string
	Config     config.Config
	// Created lists the files and directories that did not exist before.
	Created []string
}

// Run writes a config pointing at Dir and creates empty todo and done
// files there when they are missing.
func Run(opts Options) (*Result, error) {
	dir := opts.Dir
	if dir == "" {
		dir = config.DefaultDir()
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve task dir: %w", err)
	}

	cfgPath := config.Path(opts.ConfigPath)
	if cfgPath == "" {
		return nil, errors.New("no config path: set --config or $HOME")
	}
	if _, err := os.Stat(cfgPath); err == nil && !opts.Force {
		return nil, fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}

	cfg, err := generateConfig(absDir)
	if err != nil {
		return nil, fmt.Errorf("generate config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	res := &Result{ConfigPath: cfgPath, Config: cfg}

	for _, d := range []string{absDir, cfg.NotesDir} {
		if _, err := os.Stat(d); err == nil {
			continue
		}
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
		res.Created = append(res.Created, d)
	}

	if err := fileio.AtomicWrite(cfgPath, cfg); err != nil {
		return nil, fmt.Errorf("write %s: %w", cfgPath, err)
	}
	res.Created = append(res.Created, cfgPath)

	for _, f := range []string{cfg.TodoFile, cfg.DoneFile} {
		created, err := touch(f)
		if err != nil {
			return nil, err
		}
		if created {
			res.Created = append(res.Created, f)
		}
	}
	return res, nil
}

func generateConfig(dir string) (config.Config, error) {
	data, err := fs.ReadFile(templates.FS, config.FileName)
	if err != nil {
		return config.Config{}, fmt.Errorf("read config template: %w", err)
	}

	cfg := config.Default()
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return config.Config{}, fmt.Errorf("parse config template: %w", err)
	}

	cfg.TodoFile = filepath.Join(dir, cfg.TodoFile)
	cfg.DoneFile = filepath.Join(dir, cfg.DoneFile)
	cfg.NotesDir = filepath.Join(dir, cfg.NotesDir)
	cfg.History.File = filepath.Join(dir, cfg.History.File)
	return cfg, nil
}

// touch creates an empty file at path unless one exists.
func touch(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}
		return false, fmt.Errorf("create %s: %w", path, err)
	}
	return true, f.Close()
}
