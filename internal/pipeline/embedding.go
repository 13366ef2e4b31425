package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/panjf2000/ants/v2"

	"github.com/raphaelgruber/knowbase/internal/db"
	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/models"
)

// Embedder turns chunk texts into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// embeddingExecutor embeds queued chunks in batches on a worker pool. A
// failed batch marks its chunks failed and the run continues until the
// failure ratio trips. Pause stops between batch submissions.
type embeddingExecutor struct {
	ws       *workspace
	embedder Embedder
	kbID     string

	workers   int
	batchSize int
	// maxFailureRatio aborts the run once failed/queued exceeds it.
	maxFailureRatio float64

	logger *slog.Logger
}

func (e *embeddingExecutor) Phase() models.Phase { return models.PhaseEmbedding }

func (e *embeddingExecutor) Run(ctx context.Context, cp *Checkpoint, ctrl *Control, emit EmitFunc) (*Checkpoint, error) {
	queued := len(e.ws.chunks)
	if e.ws.rows == nil {
		e.ws.rows = make([]db.ChunkRow, queued)
	}

	pool, err := ants.NewPool(max(e.workers, 1))
	if err != nil {
		return nil, fmt.Errorf("create embed pool: %w", err)
	}
	defer pool.Release()

	var (
		wg        sync.WaitGroup
		processed atomic.Int64 // embedded + failed, including resumed work
		failed    atomic.Int64
	)
	processed.Store(int64(cp.ChunkCursor))

	cursor := cp.ChunkCursor
	for cursor < queued {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, err
		}
		if ctrl.PauseRequested() {
			wg.Wait()
			return &Checkpoint{Phase: models.PhaseEmbedding, ChunkCursor: cursor}, ErrPaused
		}
		if e.ratioExceeded(failed.Load(), queued) {
			wg.Wait()
			return nil, fmt.Errorf("%w: %d of %d chunks failed to embed",
				ErrExternalSource, failed.Load(), queued)
		}

		start, end := cursor, min(cursor+e.batchSize, queued)
		cursor = end

		emit(progressPct(processed.Load(), queued), "", job.EmbeddingDelta{Started: end - start})

		wg.Add(1)
		if err := pool.Submit(func() {
			defer wg.Done()
			e.embedBatch(ctx, start, end, &processed, &failed, emit)
		}); err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("submit embed batch: %w", err)
		}
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.ratioExceeded(failed.Load(), queued) {
		return nil, fmt.Errorf("%w: %d of %d chunks failed to embed",
			ErrExternalSource, failed.Load(), queued)
	}
	return nil, nil
}

func (e *embeddingExecutor) embedBatch(ctx context.Context, start, end int, processed, failed *atomic.Int64, emit EmitFunc) {
	queued := len(e.ws.chunks)
	texts := make([]string, 0, end-start)
	for _, item := range e.ws.chunks[start:end] {
		texts = append(texts, item.chunk.Text)
	}

	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		n := end - start
		failed.Add(int64(n))
		done := processed.Add(int64(n))
		e.logger.Warn("embedding batch failed",
			"kb_id", e.kbID, "batch_start", start, "batch_size", n, "error", err)
		emit(progressPct(done, queued),
			fmt.Sprintf("embedded %d/%d chunks", done, queued),
			job.EmbeddingDelta{Failed: n})
		return
	}

	for i, vec := range vectors {
		item := e.ws.chunks[start+i]
		e.ws.rows[start+i] = db.ChunkRow{
			KBID:        e.kbID,
			DocID:       item.doc.ID,
			DocTitle:    item.doc.Title,
			DocURL:      item.doc.URL,
			HeadingPath: item.chunk.HeadingPath,
			ChunkIndex:  item.chunk.Index,
			Content:     item.chunk.Text,
			Embedding:   vec,
			Tags:        item.tags,
		}
	}
	done := processed.Add(int64(end - start))
	emit(progressPct(done, queued),
		fmt.Sprintf("embedded %d/%d chunks", done, queued),
		job.EmbeddingDelta{Embedded: end - start})
}

func (e *embeddingExecutor) ratioExceeded(failed int64, queued int) bool {
	if queued == 0 {
		return false
	}
	return float64(failed)/float64(queued) > e.maxFailureRatio
}

func progressPct(done int64, total int) int {
	if total == 0 {
		return 100
	}
	return min(int(done)*100/total, 100)
}
