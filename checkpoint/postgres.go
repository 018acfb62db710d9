package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/metrics"
	"github.com/florinutz/binsync/syncerr"
)

// PGStore keeps checkpoints in a PostgreSQL table, one row per named stream.
// Useful when the sync process runs on ephemeral storage.
type PGStore struct {
	connStr string
	name    string
	logger  *slog.Logger

	mu        sync.Mutex
	conn      *pgx.Conn
	lastSaved event.Position
}

// NewPGStore returns a store for the stream called name. The connection is
// made on first use, so an unreachable database surfaces from Load. The
// binsync_checkpoints table is auto-created at that point.
func NewPGStore(connStr, name string, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{
		connStr: connStr,
		name:    name,
		logger:  logger.With("component", "checkpoint", "stream", name),
	}
}

// connect dials and creates the table. Callers hold s.mu. A failed attempt
// leaves no connection behind, so the next call dials again.
func (s *PGStore) connect(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}

	conn, err := pgx.Connect(ctx, s.connStr)
	if err != nil {
		return fmt.Errorf("checkpoint connect: %w", err)
	}
	_, err = conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS binsync_checkpoints (
			name       TEXT PRIMARY KEY,
			log_file   TEXT NOT NULL,
			log_pos    BIGINT NOT NULL CHECK (log_pos >= 0),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		_ = conn.Close(ctx)
		return fmt.Errorf("create checkpoint table: %w", err)
	}

	s.conn = conn
	return nil
}

// Load returns the persisted position for the stream.
func (s *PGStore) Load(ctx context.Context) (event.Position, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return event.Position{}, false, &syncerr.CheckpointError{Op: "load", Path: s.name, Err: err}
	}

	var (
		file string
		pos  int64
	)
	err := s.conn.QueryRow(ctx,
		"SELECT log_file, log_pos FROM binsync_checkpoints WHERE name = $1",
		s.name,
	).Scan(&file, &pos)

	if errors.Is(err, pgx.ErrNoRows) {
		s.logger.Info("no checkpoint found")
		return event.Position{}, false, nil
	}
	if err != nil {
		return event.Position{}, false, &syncerr.CheckpointError{Op: "load", Path: s.name, Err: err}
	}

	p := event.Position{File: file, Offset: uint64(pos)}
	if !p.Known() {
		return event.Position{}, false, nil
	}
	s.lastSaved = p
	s.logger.Info("checkpoint loaded", "log_file", file, "log_pos", pos)
	return p, true, nil
}

// Save upserts the stream's position. Skips the write if the position is
// unchanged since the last successful save.
func (s *PGStore) Save(ctx context.Context, pos event.Position) error {
	if !pos.Known() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if pos == s.lastSaved {
		return nil
	}

	if err := s.connect(ctx); err != nil {
		metrics.CheckpointErrors.Inc()
		return &syncerr.CheckpointError{Op: "save", Path: s.name, Err: err}
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO binsync_checkpoints (name, log_file, log_pos, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (name)
		DO UPDATE SET log_file = EXCLUDED.log_file, log_pos = EXCLUDED.log_pos, updated_at = EXCLUDED.updated_at
	`, s.name, pos.File, int64(pos.Offset))
	if err != nil {
		metrics.CheckpointErrors.Inc()
		return &syncerr.CheckpointError{Op: "save", Path: s.name, Err: err}
	}

	s.lastSaved = pos
	metrics.CheckpointSaves.Inc()
	metrics.CheckpointPosition.Set(float64(pos.Offset))
	return nil
}

// Reset deletes the stream's row.
func (s *PGStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.connect(ctx); err != nil {
		return &syncerr.CheckpointError{Op: "reset", Path: s.name, Err: err}
	}
	if _, err := s.conn.Exec(ctx, "DELETE FROM binsync_checkpoints WHERE name = $1", s.name); err != nil {
		return &syncerr.CheckpointError{Op: "reset", Path: s.name, Err: err}
	}
	s.lastSaved = event.Position{}
	return nil
}

// Close releases the underlying connection, if one was made.
func (s *PGStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.conn.Close(ctx)
	s.conn = nil
	return err
}
