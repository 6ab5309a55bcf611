package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/msageha/tasktxt/internal/config"
	"github.com/msageha/tasktxt/internal/events"
	"github.com/msageha/tasktxt/internal/logging"
	"github.com/msageha/tasktxt/internal/store"
)

// app holds what every task command needs. It is built lazily so that
// `init` works before a config exists.
type app struct {
	configPath string
	strict     bool
	stderr     io.Writer

	cfg     config.Config
	logger  *logging.Logger
	bus     *events.Bus
	store   *store.Store
	journal *events.Journal
	closers []func()
}

func (a *app) open(ctx context.Context) error {
	if a.store != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.openLogger(); err != nil {
		return err
	}
	a.bus = events.NewBus(64)
	if cfg.History.Enabled && cfg.History.File != "" {
		j, err := events.OpenJournal(cfg.History.File, cfg.History.MaxBytes)
		if err != nil {
			a.logger.Warnf("history disabled: %v", err)
		} else {
			a.journal = j
			j.Attach(a.bus, func(err error) { a.logger.Warnf("history: %v", err) })
			a.closers = append(a.closers, func() { _ = j.Close() })
		}
	}
	// The bus closes before the journal so queued events are recorded.
	a.closers = append(a.closers, a.bus.Close)

	a.store = store.New(store.Options{
		TodoPath: cfg.TodoFile,
		DonePath: cfg.DoneFile,
		Parse:    cfg.ParseOptions(),
		Lock:     cfg.Lock,
		Strict:   a.strict,
		Debounce: cfg.Debounce(),
		Settle:   cfg.Settle(),
		Policy:   cfg.View.Policy,
		Logger:   a.logger,
		Bus:      a.bus,
	})
	a.closers = append(a.closers, a.store.Close)

	if _, err := a.store.Reload(ctx); err != nil {
		return fmt.Errorf("load tasks: %w", err)
	}
	return nil
}

func (a *app) openLogger() error {
	w := a.stderr
	if a.cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(a.cfg.Logging.File), 0755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(a.cfg.Logging.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, func() { _ = f.Close() })
		w = f
	}
	a.logger = logging.New(w, a.cfg.LogLevel())
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
