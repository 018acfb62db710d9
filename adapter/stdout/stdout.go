package stdout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"github.com/florinutz/binsync/event"
)

// Sink writes operations as JSON lines to an io.Writer instead of a search
// engine. Useful as a dry run and for unix piping
// (e.g. binsync sync --sink stdout | jq .id).
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// line is the JSON shape of one operation.
type line struct {
	Action  string    `json:"action"`
	Index   string    `json:"index"`
	DocType string    `json:"doc_type"`
	ID      string    `json:"id"`
	Body    event.Row `json:"body,omitempty"`
}

// New creates a stdout sink writing to w. If w is nil it defaults to
// os.Stdout.
func New(w io.Writer, logger *slog.Logger) *Sink {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{w: w, logger: logger.With("sink", "stdout")}
}

// Commit encodes the whole batch before writing so a failed encode leaves no
// partial batch behind.
func (s *Sink) Commit(ctx context.Context, b event.Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf []byte
	for _, op := range b {
		data, err := json.Marshal(line{
			Action:  op.Action.String(),
			Index:   op.Index,
			DocType: op.DocType,
			ID:      op.ID,
			Body:    op.Body,
		})
		if err != nil {
			return fmt.Errorf("stdout sink: encode %s: %w", op.ID, err)
		}
		buf = append(append(buf, data...), '\n')
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(buf); err != nil {
		return fmt.Errorf("stdout sink: write: %w", err)
	}
	s.logger.Debug("batch written", "ops", len(b))
	return nil
}

func (s *Sink) Name() string { return "stdout" }
