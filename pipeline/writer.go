package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-fuel/models"
)

// ErrWrite marks artifact write failures. A partial line may already be on
// disk, so the artifact cannot be trusted for any category afterwards.
type ErrWrite struct {
	Err error
}

func (e ErrWrite) Error() string {
	return fmt.Errorf("write: %w", e.Err).Error()
}

func (e ErrWrite) Unwrap() error {
	return e.Err
}

// RawWriter appends raw records to a JSONL artifact, one line per record.
// Every append flushes, so an interrupted run leaves only complete lines.
type RawWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
	lines   int64
}

// NewRawWriter creates the artifact file, truncating any previous one.
func NewRawWriter(filename string) (*RawWriter, error) {
	if err := ensureParent(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create artifact file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &RawWriter{
		file:    f,
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}, nil
}

// Append writes one record as a JSON line and flushes it to disk.
func (w *RawWriter) Append(rec *models.RawRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.encoder.Encode(rec); err != nil {
		return ErrWrite{Err: fmt.Errorf("encode record: %w", err)}
	}
	if err := w.writer.Flush(); err != nil {
		return ErrWrite{Err: fmt.Errorf("flush record: %w", err)}
	}
	w.lines++
	return nil
}

// Lines returns the number of records appended so far.
func (w *RawWriter) Lines() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Path returns the artifact's file path.
func (w *RawWriter) Path() string {
	return w.file.Name()
}

// Close flushes buffers and closes the underlying file.
func (w *RawWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	return w.file.Close()
}

// Validate checks the artifact line count against the expected total.
func (w *RawWriter) Validate(want int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.lines != want {
		return fmt.Errorf("artifact has %d lines, want %d", w.lines, want)
	}
	if want > 0 {
		// Stat by path: validation normally runs after Close.
		info, err := os.Stat(w.file.Name())
		if err != nil {
			return fmt.Errorf("stat artifact: %w", err)
		}
		if info.Size() <= 0 {
			return fmt.Errorf("artifact is empty")
		}
	}
	return nil
}

func ensureParent(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
