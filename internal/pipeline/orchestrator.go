package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/models"
	"github.com/raphaelgruber/knowbase/internal/parser"
	"github.com/raphaelgruber/knowbase/internal/source"
)

// ErrRunNotResumable means a paused job has no live run state in this
// process, so its checkpoint cursors point at a workspace that no longer
// exists.
var ErrRunNotResumable = errors.New("paused run state not held by this process")

// Config tunes pipeline execution.
type Config struct {
	EmbedWorkers     int
	EmbedBatchSize   int
	IndexBatchSize   int
	WatchdogInterval time.Duration
	MaxFailureRatio  float64
	Chunking         parser.ChunkConfig
}

// Orchestrator owns the lifecycle of pipeline runs: one goroutine per
// running job, cooperative pause at checkpoints, a per-run watchdog, and
// teardown on cancel. Job state itself lives in the job store; the
// orchestrator only drives transitions.
type Orchestrator struct {
	store    *job.Store
	embedder Embedder
	indexer  Indexer
	cfg      Config
	logger   *slog.Logger

	// OnComplete, when set before the first Launch, runs after a job
	// reaches completed. Used to flip the KB indexed flag.
	OnComplete func(kbID string)

	mu   sync.Mutex
	runs map[string]*run

	// newSource builds the document source for a launch. Overridable in
	// tests.
	newSource func(models.SourceConfig) (source.DocumentSource, error)
}

type run struct {
	kbID    string
	src     source.DocumentSource
	ws      *workspace
	agg     *job.Aggregator
	ctrl    *Control
	cancel  context.CancelFunc
	done    chan struct{}
	stalled atomic.Bool
	active  bool
}

// New creates an orchestrator.
func New(store *job.Store, embedder Embedder, indexer Indexer, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 4
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 16
	}
	if cfg.IndexBatchSize <= 0 {
		cfg.IndexBatchSize = 100
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = 2 * time.Minute
	}
	if cfg.MaxFailureRatio <= 0 {
		cfg.MaxFailureRatio = 0.5
	}
	if cfg.Chunking == (parser.ChunkConfig{}) {
		cfg.Chunking = parser.DefaultChunkConfig()
	}
	return &Orchestrator{
		store:     store,
		embedder:  embedder,
		indexer:   indexer,
		cfg:       cfg,
		logger:    logger,
		runs:      make(map[string]*run),
		newSource: source.New,
	}
}

// Launch creates a pending job for the KB and starts a fresh pipeline run.
// Rejected with job.ErrJobAlreadyRunning while a non-terminal job exists.
func (o *Orchestrator) Launch(ctx context.Context, kb *models.KnowledgeBase) (job.Snapshot, error) {
	src, err := o.newSource(kb.SourceConfig)
	if err != nil {
		return job.Snapshot{}, err
	}

	snap, err := o.store.Create(ctx, kb.ID)
	if err != nil {
		return job.Snapshot{}, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	r := &run{
		kbID:   kb.ID,
		src:    src,
		ws:     &workspace{},
		agg:    job.NewAggregator(models.JobMetrics{}, o.logger),
		ctrl:   &Control{},
		cancel: cancel,
		done:   make(chan struct{}),
		active: true,
	}
	o.runs[kb.ID] = r

	snap, err = o.store.Apply(runCtx, kb.ID, job.BeginRunning)
	if err != nil {
		delete(o.runs, kb.ID)
		cancel()
		close(r.done)
		return job.Snapshot{}, err
	}

	o.logger.Info("pipeline launched", "kb_id", kb.ID, "job_id", snap.Job.JobID)
	go o.runLoop(runCtx, r, &Checkpoint{Phase: models.PhaseLoading})
	return snap, nil
}

// Pause requests a cooperative pause. The job transitions to paused only
// once the active phase reaches its next checkpoint; until then it reports
// running with a pause flag.
func (o *Orchestrator) Pause(ctx context.Context, kbID string) (job.Snapshot, error) {
	snap, err := o.store.Apply(ctx, kbID, job.RequestPause)
	if err != nil {
		return job.Snapshot{}, err
	}

	o.mu.Lock()
	if r, ok := o.runs[kbID]; ok {
		r.ctrl.RequestPause()
	}
	o.mu.Unlock()
	return snap, nil
}

// Resume continues a paused run from its checkpoint. The workspace must
// still be held by this process.
func (o *Orchestrator) Resume(ctx context.Context, kbID string) (job.Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.runs[kbID]
	if !ok {
		// Distinguish a KB that never ran from a paused job whose
		// workspace this process no longer holds.
		if _, err := o.store.Get(kbID); err != nil {
			return job.Snapshot{}, err
		}
		return job.Snapshot{}, fmt.Errorf("%w: kb %s", ErrRunNotResumable, kbID)
	}
	if r.active {
		return job.Snapshot{}, transientState("resume", kbID)
	}

	snap, err := o.store.Get(kbID)
	if err != nil {
		return job.Snapshot{}, err
	}
	cp, err := DecodeCheckpoint(snap.Job.Checkpoint)
	if err != nil {
		return job.Snapshot{}, err
	}

	snap, err = o.store.Apply(ctx, kbID, job.RequestResume)
	if err != nil {
		return job.Snapshot{}, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.ctrl = &Control{}
	r.cancel = cancel
	r.done = make(chan struct{})
	r.stalled.Store(false)
	r.active = true
	r.agg = job.NewAggregator(snap.Job.Metrics, o.logger)

	o.logger.Info("pipeline resumed", "kb_id", kbID, "job_id", snap.Job.JobID, "phase", cp.Phase)
	go o.runLoop(runCtx, r, cp)
	return snap, nil
}

// Cancel terminally fails the job and tears the run down.
func (o *Orchestrator) Cancel(ctx context.Context, kbID string) (job.Snapshot, error) {
	snap, err := o.store.Apply(ctx, kbID, job.RequestCancel)
	if err != nil {
		return job.Snapshot{}, err
	}

	o.mu.Lock()
	r, ok := o.runs[kbID]
	if ok {
		delete(o.runs, kbID)
	}
	o.mu.Unlock()

	if ok {
		r.cancel()
		if !r.active {
			// Paused run: no goroutine to observe the cancel, drop the
			// workspace here.
			close(r.done)
		}
	}
	return snap, nil
}

// AwaitTeardown blocks until the KB's run goroutine exits or ctx ends.
// Returns immediately when no run is live.
func (o *Orchestrator) AwaitTeardown(ctx context.Context, kbID string) error {
	o.mu.Lock()
	r, ok := o.runs[kbID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether the orchestrator holds run state (active or
// paused) for the KB.
func (o *Orchestrator) Running(kbID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[kbID]
	return ok
}

func (o *Orchestrator) runLoop(ctx context.Context, r *run, cp *Checkpoint) {
	defer close(r.done)

	watchdog := time.AfterFunc(o.cfg.WatchdogInterval, func() {
		r.stalled.Store(true)
		r.cancel()
	})
	defer watchdog.Stop()

	execs := []Executor{
		&loadingExecutor{src: r.src, ws: r.ws, logger: o.logger},
		&chunkingExecutor{ws: r.ws, cfg: o.cfg.Chunking},
		&embeddingExecutor{
			ws:              r.ws,
			embedder:        o.embedder,
			kbID:            r.kbID,
			workers:         o.cfg.EmbedWorkers,
			batchSize:       o.cfg.EmbedBatchSize,
			maxFailureRatio: o.cfg.MaxFailureRatio,
			logger:          o.logger,
		},
		&indexingExecutor{ws: r.ws, indexer: o.indexer, batchSize: o.cfg.IndexBatchSize},
	}

	startIdx := models.PhaseIndex(cp.Phase)
	if startIdx < 0 {
		startIdx = 0
	}

	for i := startIdx; i < len(execs); i++ {
		exec := execs[i]
		phaseCp := cp
		if exec.Phase() != cp.Phase {
			phaseCp = &Checkpoint{Phase: exec.Phase()}
		}

		out, err := exec.Run(ctx, phaseCp, r.ctrl, o.emitFunc(ctx, r, exec.Phase(), watchdog))

		switch {
		case errors.Is(err, ErrPaused):
			o.applyPause(r, out)
			return

		case err != nil:
			o.failRun(r, err)
			return
		}

		if _, err := o.store.Apply(ctx, r.kbID, job.AdvancePhase); err != nil {
			o.failRun(r, fmt.Errorf("advance phase: %w", err))
			return
		}
	}

	o.mu.Lock()
	delete(o.runs, r.kbID)
	o.mu.Unlock()

	o.logger.Info("pipeline completed", "kb_id", r.kbID,
		"documents", len(r.ws.docs), "chunks", len(r.ws.chunks))
	if o.OnComplete != nil {
		o.OnComplete(r.kbID)
	}
}

// emitFunc builds the progress sink for one phase: fold the delta, stamp
// metrics and progress on the job record, feed the watchdog.
func (o *Orchestrator) emitFunc(ctx context.Context, r *run, phase models.Phase, watchdog *time.Timer) EmitFunc {
	return func(pct int, message string, delta job.Delta) {
		watchdog.Reset(o.cfg.WatchdogInterval)

		if delta != nil {
			r.agg.Apply(delta)
		}

		if _, err := o.store.Apply(ctx, r.kbID, func(j *models.IngestionJob) error {
			// Snapshot inside the mutate so concurrent emits cannot stamp
			// a stale aggregate over a newer one.
			j.Metrics = r.agg.Snapshot()
			return job.ReportProgress(j, phase, pct, message)
		}); err != nil && !errors.Is(err, job.ErrInvalidTransition) {
			o.logger.Warn("progress update failed", "kb_id", r.kbID, "error", err)
		}
	}
}

func (o *Orchestrator) applyPause(r *run, cp *Checkpoint) {
	raw, err := cp.Encode()
	if err != nil {
		o.failRun(r, err)
		return
	}

	// The run stays in the map, inactive, holding the workspace for resume.
	o.mu.Lock()
	r.active = false
	o.mu.Unlock()

	if _, err := o.store.Apply(context.Background(), r.kbID, func(j *models.IngestionJob) error {
		return job.ApplyPause(j, raw)
	}); err != nil {
		// Cancelled between checkpoint and pause application; the job is
		// already terminal and the run gets dropped by Cancel.
		o.logger.Debug("pause not applied", "kb_id", r.kbID, "error", err)
	} else {
		o.logger.Info("pipeline paused", "kb_id", r.kbID, "phase", cp.Phase)
	}
}

// failRun marks the job failed unless cancellation already made it
// terminal, then drops the run state.
func (o *Orchestrator) failRun(r *run, cause error) {
	o.mu.Lock()
	delete(o.runs, r.kbID)
	o.mu.Unlock()

	if r.stalled.Load() {
		cause = fmt.Errorf("%w (last phase made no progress)", ErrStalled)
	} else if errors.Is(cause, job.ErrVersionConflict) {
		// Exhausted optimistic retries mean the job record is contended
		// beyond recovery; treated the same as a stalled phase.
		cause = fmt.Errorf("%w: %v", ErrStalled, cause)
	}

	snap, err := o.store.Get(r.kbID)
	if err != nil || snap.Job.Status.Terminal() {
		return
	}

	if _, err := o.store.Apply(context.Background(), r.kbID, func(j *models.IngestionJob) error {
		return job.MarkFailed(j, cause)
	}); err != nil && !errors.Is(err, job.ErrInvalidTransition) {
		o.logger.Error("failed to record job failure", "kb_id", r.kbID, "error", err)
	}
	o.logger.Error("pipeline failed", "kb_id", r.kbID, "error", cause)
}

func transientState(op, kbID string) error {
	return fmt.Errorf("%w: %s while kb %s run is active", job.ErrInvalidTransition, op, kbID)
}
