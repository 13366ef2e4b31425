package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/models"
	"github.com/raphaelgruber/knowbase/internal/source"
)

// loadingExecutor pulls documents out of the configured source into the
// workspace. Individual document failures are tolerated; a source that
// yields nothing but errors fails the phase.
type loadingExecutor struct {
	src    source.DocumentSource
	ws     *workspace
	logger *slog.Logger
}

func (e *loadingExecutor) Phase() models.Phase { return models.PhaseLoading }

func (e *loadingExecutor) Run(ctx context.Context, cp *Checkpoint, ctrl *Control, emit EmitFunc) (*Checkpoint, error) {
	// On resume the already-loaded documents sit in the workspace; skip as
	// many items of the fresh enumeration as the last run consumed. The
	// cursor counts every consumed item, tolerated failures included, so
	// an error item never stands in for a loaded document on resume.
	skip := cp.DocCursor
	cursor := cp.DocCursor
	total := e.src.EstimatedTotal()
	var failures int

	for item := range e.src.Documents(ctx) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ctrl.PauseRequested() {
			return &Checkpoint{Phase: models.PhaseLoading, DocCursor: cursor}, ErrPaused
		}

		if skip > 0 {
			skip--
			continue
		}
		cursor++

		if item.Err != nil {
			failures++
			e.logger.Warn("document failed to load", "error", item.Err)
			continue
		}

		e.ws.docs = append(e.ws.docs, *item.Doc)
		done := len(e.ws.docs)
		pct := 0
		if total > 0 {
			pct = min(done*100/total, 100)
		}
		emit(pct, fmt.Sprintf("loaded %d documents", done), job.LoadingDelta{DocumentsCrawled: 1})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(e.ws.docs) == 0 {
		if failures > 0 {
			return nil, fmt.Errorf("%w: all %d documents failed to load", ErrExternalSource, failures)
		}
		return nil, fmt.Errorf("%w: source yielded no documents", ErrExternalSource)
	}

	emit(100, fmt.Sprintf("loaded %d documents (%d failed)", len(e.ws.docs), failures), nil)
	return nil, nil
}
