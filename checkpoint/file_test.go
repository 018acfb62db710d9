package checkpoint_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/florinutz/binsync/checkpoint"
	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/syncerr"
)

func newStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	return checkpoint.NewFileStore(filepath.Join(t.TempDir(), "binlog.mark"), nil)
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := newStore(t)
	pos, ok, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ok || !pos.IsZero() {
		t.Errorf("Load = %v, %v; want zero, false", pos, ok)
	}
}

func TestFileStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	want := event.Position{File: "mysql-bin.000042", Offset: 1337}

	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store reads what the first one wrote.
	got, ok, err := checkpoint.NewFileStore(s.Path(), nil).Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !ok || got != want {
		t.Errorf("Load = %v, %v; want %v, true", got, ok, want)
	}
}

func TestFileStore_FileLayout(t *testing.T) {
	s := newStore(t)
	if err := s.Save(context.Background(), event.Position{File: "mysql-bin.000003", Offset: 4562}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m) != 2 {
		t.Errorf("record has %d fields, want exactly 2: %s", len(m), raw)
	}
	if m["log_file"] != "mysql-bin.000003" {
		t.Errorf("log_file = %v", m["log_file"])
	}
	if m["log_pos"] != 4562 {
		t.Errorf("log_pos = %v (%T)", m["log_pos"], m["log_pos"])
	}
}

func TestFileStore_SaveIgnoresUnknownPosition(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for _, pos := range []event.Position{{}, {File: "mysql-bin.000001"}, {Offset: 10}} {
		if err := s.Save(ctx, pos); err != nil {
			t.Fatalf("Save(%v): %v", pos, err)
		}
	}
	if _, err := os.Stat(s.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("checkpoint file written for unknown positions (stat err %v)", err)
	}
}

func TestFileStore_Overwrite(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	positions := []event.Position{
		{File: "mysql-bin.000001", Offset: 100},
		{File: "mysql-bin.000001", Offset: 250},
		{File: "mysql-bin.000002", Offset: 4},
	}
	for _, p := range positions {
		if err := s.Save(ctx, p); err != nil {
			t.Fatalf("Save(%v): %v", p, err)
		}
	}
	got, _, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != positions[len(positions)-1] {
		t.Errorf("Load = %v, want %v", got, positions[len(positions)-1])
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), ".tmp-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStore_ConcurrentReadersNeverSeePartialRecord(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Save(ctx, event.Position{File: "mysql-bin.000001", Offset: 1}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	var wg sync.WaitGroup
	done := make(chan struct{})
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := checkpoint.NewFileStore(s.Path(), nil)
			for {
				select {
				case <-done:
					return
				default:
				}
				pos, ok, err := r.Load(ctx)
				if err != nil {
					errs <- err
					return
				}
				if !ok || pos.File != "mysql-bin.000001" {
					errs <- errors.New("reader observed incomplete checkpoint: " + pos.String())
					return
				}
			}
		}()
	}

	for i := uint64(2); i < 300; i++ {
		if err := s.Save(ctx, event.Position{File: "mysql-bin.000001", Offset: i}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	close(done)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestFileStore_LoadCorrupt(t *testing.T) {
	s := newStore(t)
	if err := os.WriteFile(s.Path(), []byte("log_file: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, err := s.Load(context.Background())
	var ce *syncerr.CheckpointError
	if !errors.As(err, &ce) || ce.Op != "load" {
		t.Fatalf("err = %v, want CheckpointError(load)", err)
	}
}

func TestFileStore_SaveFailureIsCheckpointError(t *testing.T) {
	s := checkpoint.NewFileStore(filepath.Join(t.TempDir(), "missing-dir", "binlog.mark"), nil)
	err := s.Save(context.Background(), event.Position{File: "mysql-bin.000001", Offset: 4})
	var ce *syncerr.CheckpointError
	if !errors.As(err, &ce) || ce.Op != "save" {
		t.Fatalf("err = %v, want CheckpointError(save)", err)
	}
	if !syncerr.Recoverable(err) {
		t.Error("checkpoint save failure should be recoverable")
	}
}

func TestFileStore_Reset(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	if err := s.Save(ctx, event.Position{File: "mysql-bin.000001", Offset: 4}); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, ok, _ := s.Load(ctx); ok {
		t.Error("checkpoint still present after Reset")
	}
	if err := s.Reset(); err != nil {
		t.Errorf("second Reset: %v", err)
	}
}
