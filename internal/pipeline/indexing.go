package pipeline

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/knowbase/internal/db"
	"github.com/raphaelgruber/knowbase/internal/models"
)

// Indexer writes embedded chunks to the vector store.
type Indexer interface {
	IndexChunks(ctx context.Context, rows []db.ChunkRow) error
}

// indexingExecutor writes embedded rows in batches. Index write failures
// are fatal: a half-written index is worse than a failed job. Pause stops
// between batches. This phase owns no metrics counters.
type indexingExecutor struct {
	ws        *workspace
	indexer   Indexer
	batchSize int
}

func (e *indexingExecutor) Phase() models.Phase { return models.PhaseIndexing }

func (e *indexingExecutor) Run(ctx context.Context, cp *Checkpoint, ctrl *Control, emit EmitFunc) (*Checkpoint, error) {
	// Chunks that failed embedding left zero rows behind; only real rows
	// reach the index.
	rows := make([]db.ChunkRow, 0, len(e.ws.rows))
	for _, row := range e.ws.rows {
		if row.Embedding != nil {
			rows = append(rows, row)
		}
	}
	total := len(rows)

	for cursor := cp.RowCursor; cursor < total; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ctrl.PauseRequested() {
			return &Checkpoint{Phase: models.PhaseIndexing, RowCursor: cursor}, ErrPaused
		}

		end := min(cursor+e.batchSize, total)
		if err := e.indexer.IndexChunks(ctx, rows[cursor:end]); err != nil {
			return nil, fmt.Errorf("%w: index batch at %d: %v", ErrExternalSource, cursor, err)
		}
		cursor = end
		emit(cursor*100/max(total, 1), fmt.Sprintf("indexed %d/%d chunks", cursor, total), nil)
	}

	return nil, nil
}
