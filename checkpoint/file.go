package checkpoint

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/metrics"
	"github.com/florinutz/binsync/syncerr"
)

// record is the on-disk layout of a checkpoint file.
type record struct {
	LogFile string `yaml:"log_file"`
	LogPos  uint64 `yaml:"log_pos"`
}

// FileStore keeps the checkpoint in a small YAML file. Every save replaces
// the file atomically, so concurrent readers (operators, `binsync checkpoint
// show`) see either the old or the new record, never a partial one.
//
// FileStore assumes a single writing process.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu        sync.Mutex
	lastSaved event.Position
}

// NewFileStore returns a store writing to path. The parent directory must
// exist.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		path:   path,
		logger: logger.With("component", "checkpoint", "path", path),
	}
}

// Path returns the checkpoint file path.
func (s *FileStore) Path() string { return s.path }

// Load reads the checkpoint file. A missing file means no checkpoint.
func (s *FileStore) Load(_ context.Context) (event.Position, bool, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("no checkpoint found")
		return event.Position{}, false, nil
	}
	if err != nil {
		return event.Position{}, false, &syncerr.CheckpointError{Op: "load", Path: s.path, Err: err}
	}

	var rec record
	if err := yaml.Unmarshal(raw, &rec); err != nil {
		return event.Position{}, false, &syncerr.CheckpointError{Op: "load", Path: s.path, Err: fmt.Errorf("decode: %w", err)}
	}
	pos := event.Position{File: rec.LogFile, Offset: rec.LogPos}
	if !pos.Known() {
		s.logger.Warn("checkpoint file incomplete, ignoring", "log_file", rec.LogFile, "log_pos", rec.LogPos)
		return event.Position{}, false, nil
	}

	s.mu.Lock()
	s.lastSaved = pos
	s.mu.Unlock()

	s.logger.Info("checkpoint loaded", "log_file", pos.File, "log_pos", pos.Offset)
	return pos, true, nil
}

// Save atomically replaces the checkpoint file with pos. It is a no-op for
// positions that are not fully known and for the position saved last.
func (s *FileStore) Save(_ context.Context, pos event.Position) error {
	if !pos.Known() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pos == s.lastSaved {
		return nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(record{LogFile: pos.File, LogPos: pos.Offset}); err != nil {
		return s.saveErr(fmt.Errorf("encode: %w", err))
	}
	if err := enc.Close(); err != nil {
		return s.saveErr(fmt.Errorf("encode: %w", err))
	}

	if err := writeFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return s.saveErr(err)
	}

	s.lastSaved = pos
	metrics.CheckpointSaves.Inc()
	metrics.CheckpointPosition.Set(float64(pos.Offset))
	s.logger.Debug("checkpoint saved", "log_file", pos.File, "log_pos", pos.Offset)
	return nil
}

func (s *FileStore) saveErr(err error) error {
	metrics.CheckpointErrors.Inc()
	return &syncerr.CheckpointError{Op: "save", Path: s.path, Err: err}
}

// Reset removes the checkpoint file so the next run starts from the tail.
func (s *FileStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &syncerr.CheckpointError{Op: "reset", Path: s.path, Err: err}
	}
	s.lastSaved = event.Position{}
	return nil
}

// Close is a no-op; FileStore holds no open handles between calls.
func (s *FileStore) Close() error { return nil }

// writeFileAtomic writes data to a temp file next to path, fsyncs it and
// renames it over path. The directory is synced afterwards so the rename
// itself survives a crash.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	if d, dirErr := os.Open(dir); dirErr == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
