// Package binsync mirrors MySQL binlog row changes into a search index.
//
// A Pipeline pulls changes from a detector.Source, normalizes them into
// idempotent index operations, groups those into batches and commits each
// batch to an adapter.Sink before advancing the checkpoint. Delivery is
// at-least-once: a restart replays from the last checkpoint.
package binsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/florinutz/binsync/adapter"
	"github.com/florinutz/binsync/batch"
	"github.com/florinutz/binsync/checkpoint"
	"github.com/florinutz/binsync/detector"
	"github.com/florinutz/binsync/event"
	"github.com/florinutz/binsync/health"
	"github.com/florinutz/binsync/metrics"
	"github.com/florinutz/binsync/normalize"
	"github.com/florinutz/binsync/notify"
	"github.com/florinutz/binsync/syncerr"
	"github.com/florinutz/binsync/tracing"
)

const defaultShutdownTimeout = 10 * time.Second

// Pipeline is the sync driver. It is single use: Run may be called once.
type Pipeline struct {
	opener          detector.Opener
	sink            adapter.Sink
	store           checkpoint.Store
	notifier        notify.Notifier
	normalizer      *normalize.Normalizer
	batchCfg        batch.Config
	clock           batch.Clock
	shutdownTimeout time.Duration
	health          *health.Checker
	logger          *slog.Logger

	runID   string
	state   atomic.Int32
	started atomic.Bool

	mu         sync.Mutex
	sourceName string
	observed   event.Position
	committed  event.Position
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCheckpointStore sets the store the committed position is persisted to.
// The pipeline closes the store when Run returns. Without one, progress is
// kept in memory only.
func WithCheckpointStore(s checkpoint.Store) Option {
	return func(p *Pipeline) {
		p.store = s
	}
}

// WithNotifier sets the channel used to report unrecoverable failures.
// Defaults to notify.Log.
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) {
		p.notifier = n
	}
}

// WithNormalizer replaces the default normalizer (no excluded fields).
func WithNormalizer(n *normalize.Normalizer) Option {
	return func(p *Pipeline) {
		p.normalizer = n
	}
}

// WithBatch sets the batch flush thresholds.
func WithBatch(cfg batch.Config) Option {
	return func(p *Pipeline) {
		p.batchCfg = cfg
	}
}

// WithClock sets the clock used by the batcher's interval trigger.
func WithClock(c batch.Clock) Option {
	return func(p *Pipeline) {
		p.clock = c
	}
}

// WithShutdownTimeout bounds the final flush on operator stop and the
// failure notification.
func WithShutdownTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		p.shutdownTimeout = d
	}
}

// WithHealthChecker sets the health checker for the pipeline.
// If not set, a new checker is created.
func WithHealthChecker(c *health.Checker) Option {
	return func(p *Pipeline) {
		p.health = c
	}
}

// WithLogger sets the logger. If not set, slog.Default() is used.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline creates a Pipeline reading from sources opened by opener and
// writing to sink. Call Run to start it.
func NewPipeline(opener detector.Opener, sink adapter.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		opener:   opener,
		sink:     sink,
		batchCfg: batch.Config{MaxCount: 500, MaxBytes: 5 << 20, MaxInterval: time.Second},
		runID:    uuid.NewString(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	p.logger = p.logger.With("run_id", p.runID)
	if p.clock == nil {
		p.clock = batch.SystemClock()
	}
	if p.shutdownTimeout <= 0 {
		p.shutdownTimeout = defaultShutdownTimeout
	}
	if p.normalizer == nil {
		p.normalizer = normalize.New(normalize.NewPolicy())
	}
	if p.notifier == nil {
		p.notifier = notify.NewLog(p.logger)
	}
	if p.health == nil {
		p.health = health.NewChecker()
	}
	p.health.Register(health.ComponentSource, health.ComponentSink, health.ComponentCheckpoint)
	if p.store == nil {
		p.health.SetStatus(health.ComponentCheckpoint, health.StatusDegraded)
	}
	return p
}

// RunID identifies this pipeline in logs and alerts.
func (p *Pipeline) RunID() string { return p.runID }

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Health returns the pipeline's health checker.
func (p *Pipeline) Health() *health.Checker { return p.health }

// Observed returns the position of the most recent change read from the
// source.
func (p *Pipeline) Observed() event.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.observed
}

// Committed returns the position persisted after the last successful batch.
func (p *Pipeline) Committed() event.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.committed
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
	metrics.PipelineState.Set(float64(s))
	p.health.SetState(s.String(), s == StateStreaming)
	p.logger.Debug("pipeline state", "state", s.String())
}

// Run streams until ctx is cancelled or an unrecoverable error occurs.
// Cancellation drains the pending batch and returns nil. Any other stop goes
// through the failure path: the error is logged, the notifier is tried once
// and the original error is returned.
func (p *Pipeline) Run(ctx context.Context) error {
	if !p.started.CompareAndSwap(false, true) {
		return errors.New("binsync: pipeline already started")
	}
	if p.store != nil {
		defer func() { _ = p.store.Close() }()
	}

	p.setState(StateInitializing)
	src, err := p.initialize(ctx)
	if err != nil {
		if ctx.Err() != nil {
			p.logger.Info("stopped before streaming started")
			p.setState(StateTerminated)
			return nil
		}
		return p.fail(ctx, err)
	}
	defer func() {
		_ = src.Close()
		p.health.SetStatus(health.ComponentSource, health.StatusDown)
	}()

	b := batch.New(p.batchCfg, p.clock)
	p.setState(StateStreaming)
	p.logger.Info("streaming", "source", src.Name(), "sink", p.sink.Name(),
		"max_count", p.batchCfg.MaxCount, "max_bytes", p.batchCfg.MaxBytes, "max_interval", p.batchCfg.MaxInterval)

	if err := p.stream(ctx, src, b); err != nil {
		return p.fail(ctx, err)
	}
	return p.drain(ctx, b)
}

func (p *Pipeline) initialize(ctx context.Context) (detector.Source, error) {
	var (
		pos event.Position
		ok  bool
	)
	if p.store != nil {
		var err error
		pos, ok, err = p.store.Load(ctx)
		if err != nil {
			p.health.SetStatus(health.ComponentCheckpoint, health.StatusDown)
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		p.health.SetStatus(health.ComponentCheckpoint, health.StatusUp)
	}
	if ok {
		p.logger.Info("resuming from checkpoint", "position", pos.String())
		p.mu.Lock()
		p.observed, p.committed = pos, pos
		p.mu.Unlock()
	} else {
		p.logger.Info("no checkpoint, starting from current tail")
	}

	if v, isValidator := p.sink.(adapter.Validator); isValidator {
		if err := v.Validate(ctx); err != nil {
			p.health.SetStatus(health.ComponentSink, health.StatusDown)
			return nil, fmt.Errorf("validate sink %s: %w", p.sink.Name(), err)
		}
	}
	p.health.SetStatus(health.ComponentSink, health.StatusUp)

	src, err := p.opener.Open(ctx, pos, ok)
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	p.mu.Lock()
	p.sourceName = src.Name()
	p.mu.Unlock()
	p.health.SetStatus(health.ComponentSource, health.StatusUp)
	return src, nil
}

// stream is the pull loop. It returns nil when ctx is cancelled between
// changes, otherwise the error that must fail the run.
func (p *Pipeline) stream(ctx context.Context, src detector.Source, b *batch.Batcher) error {
	for ctx.Err() == nil {
		ch, pos, idle, err := p.next(ctx, src, b)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var sde *syncerr.SourceDisconnectedError
			if !errors.As(err, &sde) {
				err = &syncerr.SourceDisconnectedError{Source: src.Name(), Err: err}
			}
			p.health.SetStatus(health.ComponentSource, health.StatusDown)
			return err
		}
		if idle {
			if err := p.commit(ctx, b.Flush()); err != nil {
				return err
			}
			continue
		}

		if pos.Known() {
			p.mu.Lock()
			p.observed = pos
			p.mu.Unlock()
		}
		metrics.ChangesReceived.WithLabelValues(ch.Kind.String()).Inc()

		op, err := p.normalizer.Normalize(ch)
		if err != nil {
			if !syncerr.Recoverable(err) {
				return syncerr.WrapChange(err, pos, ch)
			}
			metrics.ChangesSkipped.WithLabelValues("unsupported_kind").Inc()
			p.logger.Warn("skipping change", "error", err, "position", pos.String())
			continue
		}
		metrics.OperationsNormalized.WithLabelValues(op.Action.String()).Inc()

		if out := b.Add(op); len(out) > 0 {
			if err := p.commit(ctx, out); err != nil {
				return err
			}
		}
		if b.Full() {
			if err := p.commit(ctx, b.Flush()); err != nil {
				return err
			}
		}
	}
	return nil
}

// next pulls one change. While a batch is pending the pull is bounded by the
// batch deadline; idle is true when that deadline passed first.
func (p *Pipeline) next(ctx context.Context, src detector.Source, b *batch.Batcher) (ch event.Change, pos event.Position, idle bool, err error) {
	deadline, pending := b.Deadline()
	if !pending {
		ch, pos, err = src.Next(ctx)
		return ch, pos, false, err
	}

	wait := deadline.Sub(p.clock.Now())
	if wait <= 0 {
		return event.Change{}, event.Position{}, true, nil
	}
	nctx, cancel := context.WithCancel(ctx)
	defer cancel()
	due := p.clock.After(wait)
	go func() {
		select {
		case <-due:
			cancel()
		case <-nctx.Done():
		}
	}()

	ch, pos, err = src.Next(nctx)
	if err != nil && ctx.Err() == nil && nctx.Err() != nil {
		return event.Change{}, event.Position{}, true, nil
	}
	return ch, pos, false, err
}

// commit writes one batch and, on success, checkpoints the latest observed
// position. The commit is detached from ctx: a stop request is honoured
// between batches, never in the middle of one.
func (p *Pipeline) commit(ctx context.Context, b event.Batch) error {
	if len(b) == 0 {
		return nil
	}
	p.mu.Lock()
	observed := p.observed
	p.mu.Unlock()

	sink := p.sink.Name()
	cctx, end := tracing.StartCommit(context.WithoutCancel(ctx), sink, len(b), observed.String())
	start := time.Now()
	err := p.sink.Commit(cctx, b)
	end(err)
	metrics.CommitDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CommitErrors.WithLabelValues(sink).Inc()
		p.health.SetStatus(health.ComponentSink, health.StatusDown)
		var sce *syncerr.SinkCommitError
		if !errors.As(err, &sce) {
			err = &syncerr.SinkCommitError{Sink: sink, Ops: len(b), Err: err}
		}
		return err
	}
	metrics.BatchesCommitted.WithLabelValues(sink).Inc()
	metrics.OperationsCommitted.WithLabelValues(sink).Add(float64(len(b)))
	metrics.BatchSize.Observe(float64(len(b)))
	p.logger.Debug("batch committed", "ops", len(b), "bytes", b.Size(), "position", observed.String(),
		"duration", time.Since(start))

	p.checkpoint(cctx, observed)
	return nil
}

// checkpoint persists pos. Failures are logged and the stream carries on;
// the next successful save catches up.
func (p *Pipeline) checkpoint(ctx context.Context, pos event.Position) {
	if !pos.Known() {
		return
	}
	if p.store != nil {
		if err := p.store.Save(ctx, pos); err != nil {
			p.health.SetStatus(health.ComponentCheckpoint, health.StatusDegraded)
			p.logger.Error("checkpoint save failed", "position", pos.String(), "error", err)
			return
		}
		p.health.SetStatus(health.ComponentCheckpoint, health.StatusUp)
	}
	p.mu.Lock()
	p.committed = pos
	p.mu.Unlock()
}

// drain flushes whatever is pending after an operator stop and records a
// final checkpoint.
func (p *Pipeline) drain(ctx context.Context, b *batch.Batcher) error {
	p.setState(StateDraining)
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.shutdownTimeout)
	defer cancel()

	pending := b.Flush()
	p.logger.Info("draining", "pending_ops", len(pending))
	if err := p.commit(dctx, pending); err != nil {
		return p.fail(dctx, fmt.Errorf("final flush: %w", err))
	}
	if observed := p.Observed(); observed != p.Committed() {
		p.checkpoint(dctx, observed)
	}

	p.setState(StateTerminated)
	p.logger.Info("stopped", "committed", p.Committed().String())
	return nil
}

// fail logs err, makes one notification attempt and returns err unchanged.
func (p *Pipeline) fail(ctx context.Context, err error) error {
	p.setState(StateFailing)
	p.logger.Error("sync failed", "error", err,
		"observed", p.Observed().String(), "committed", p.Committed().String())

	p.mu.Lock()
	r := report{
		RunID:     p.runID,
		Host:      hostname(),
		Source:    p.sourceName,
		Sink:      p.sink.Name(),
		Observed:  p.observed,
		Committed: p.committed,
		At:        time.Now(),
		Err:       err,
	}
	p.mu.Unlock()
	p.alert(ctx, r)

	p.setState(StateTerminated)
	return err
}
