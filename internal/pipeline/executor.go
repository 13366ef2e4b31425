package pipeline

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/raphaelgruber/knowbase/internal/db"
	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/models"
	"github.com/raphaelgruber/knowbase/internal/parser"
	"github.com/raphaelgruber/knowbase/internal/source"
)

// Sentinel errors surfaced by phase executors and the orchestrator.
var (
	// ErrPaused is returned by an executor that stopped at a safe point in
	// response to a pause request. Accompanied by a checkpoint.
	ErrPaused = errors.New("paused at checkpoint")

	// ErrStalled marks a run aborted by the watchdog: no progress event
	// within the configured interval.
	ErrStalled = errors.New("phase stalled: no progress within watchdog interval")

	// ErrExternalSource marks a run aborted because an upstream system
	// (source, embedding provider, index) failed beyond tolerance.
	ErrExternalSource = errors.New("external source failure")
)

// Control carries cooperative run signals from the orchestrator into the
// executing phase. Executors poll PauseRequested at item or batch
// boundaries, never mid-operation.
type Control struct {
	pause atomic.Bool
}

func (c *Control) RequestPause() { c.pause.Store(true) }

func (c *Control) PauseRequested() bool { return c.pause.Load() }

// EmitFunc reports phase-local progress. pct is 0-100 within the phase,
// delta may be nil for message-only updates. Safe for concurrent use.
type EmitFunc func(pct int, message string, delta job.Delta)

// Executor runs one pipeline phase over the shared workspace.
type Executor interface {
	Phase() models.Phase

	// Run executes the phase from the given checkpoint. It returns
	// (checkpoint, ErrPaused) when it stopped cooperatively, (nil, nil) on
	// phase completion, and (nil, err) on a fatal phase error.
	Run(ctx context.Context, cp *Checkpoint, ctrl *Control, emit EmitFunc) (*Checkpoint, error)
}

// chunkItem ties a chunk to the document it came from.
type chunkItem struct {
	doc   source.Document
	chunk parser.Chunk
	tags  []string
}

// workspace is the in-memory state a run accumulates across phases. It
// survives pause/resume within the process, which is what makes checkpoint
// cursors sufficient.
type workspace struct {
	docs   []source.Document
	chunks []chunkItem
	rows   []db.ChunkRow // filled by embedding, indexed by chunk position
}
