package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	DefaultMaxJournalSize = 10 * 1024 * 1024
	JournalExtension      = ".jsonl"
	ArchiveDir            = "archive"
)

// Entry is one line of the journal.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	EventType EventType      `json:"event_type"`
	Path      string         `json:"path,omitempty"`
	Op        string         `json:"op,omitempty"`
	TaskID    *int           `json:"task_id,omitempty"`
	Line      string         `json:"line,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Journal appends bus events to a JSONL file, moving it into an archive
// directory next to it once it grows past maxSize.
type Journal struct {
	mu          sync.Mutex
	file        *os.File
	currentSize int64
	maxSize     int64
	path        string
	rotations   int
}

func OpenJournal(path string, maxSize int64) (*Journal, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxJournalSize
	}
	j := &Journal{path: path, maxSize: maxSize}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	if err := j.open(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) open() error {
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat journal: %w", err)
	}
	j.file = f
	j.currentSize = stat.Size()
	return nil
}

// Attach records every event published on bus until the returned function
// is called. Write failures are passed to onErr when it is not nil.
func (j *Journal) Attach(bus *Bus, onErr func(error)) func() {
	return bus.SubscribeAll(func(e Event) {
		if err := j.Record(e); err != nil && onErr != nil {
			onErr(err)
		}
	})
}

// Record appends e. Well-known Data keys ("op", "id", "line") become
// fields of the entry; the rest are kept as details.
func (j *Journal) Record(e Event) error {
	entry := Entry{
		Timestamp: e.Timestamp,
		EventType: e.Type,
		Path:      e.Path,
	}
	details := map[string]any{}
	for k, v := range e.Data {
		switch k {
		case "op":
			entry.Op, _ = v.(string)
		case "id":
			if id, ok := v.(int); ok {
				entry.TaskID = &id
			}
		case "line":
			entry.Line, _ = v.(string)
		default:
			details[k] = v
		}
	}
	if len(details) > 0 {
		entry.Details = details
	}
	return j.WriteEntry(&entry)
}

func (j *Journal) WriteEntry(entry *Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return fmt.Errorf("journal %s is closed", j.path)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}
	data = append(data, '\n')

	if j.currentSize > 0 && j.currentSize+int64(len(data)) > j.maxSize {
		if err := j.rotate(); err != nil {
			return fmt.Errorf("rotate journal: %w", err)
		}
	}

	n, err := j.file.Write(data)
	if err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := j.file.Sync(); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	j.currentSize += int64(n)
	return nil
}

func (j *Journal) rotate() error {
	if err := j.file.Close(); err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	j.file = nil

	archiveDir := filepath.Join(filepath.Dir(j.path), ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}

	j.rotations++
	base := strings.TrimSuffix(filepath.Base(j.path), JournalExtension)
	name := fmt.Sprintf("%s.%s.%d%s", base, time.Now().Format("20060102_150405"), j.rotations, JournalExtension)
	if err := os.Rename(j.path, filepath.Join(archiveDir, name)); err != nil {
		return fmt.Errorf("archive journal: %w", err)
	}
	return j.open()
}

// ReadJournal decodes every well-formed entry of the journal at path.
func ReadJournal(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	var entries []Entry
	dec := json.NewDecoder(f)
	for dec.More() {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			break
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (j *Journal) Path() string { return j.path }

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Sync()
	if cerr := j.file.Close(); err == nil {
		err = cerr
	}
	j.file = nil
	return err
}
