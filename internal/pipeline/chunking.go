package pipeline

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/models"
	"github.com/raphaelgruber/knowbase/internal/parser"
)

// chunkingExecutor parses and splits loaded documents into embeddable
// chunks. Pause stops at document boundaries.
type chunkingExecutor struct {
	ws  *workspace
	cfg parser.ChunkConfig
}

func (e *chunkingExecutor) Phase() models.Phase { return models.PhaseChunking }

func (e *chunkingExecutor) Run(ctx context.Context, cp *Checkpoint, ctrl *Control, emit EmitFunc) (*Checkpoint, error) {
	total := len(e.ws.docs)

	for i := cp.DocCursor; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ctrl.PauseRequested() {
			return &Checkpoint{Phase: models.PhaseChunking, DocCursor: i}, ErrPaused
		}

		doc := e.ws.docs[i]
		parsed := parser.Parse(doc.Content)
		chunks := parser.ChunkDoc(parsed, e.cfg)

		tags := doc.Tags
		if fmTags := parsed.Tags(); len(fmTags) > 0 {
			tags = append(append([]string{}, tags...), fmTags...)
		}
		if parsed.Title != "" && doc.Title == "" {
			doc.Title = parsed.Title
		}

		for _, ch := range chunks {
			e.ws.chunks = append(e.ws.chunks, chunkItem{doc: doc, chunk: ch, tags: tags})
		}

		emit((i+1)*100/total,
			fmt.Sprintf("chunked %d/%d documents", i+1, total),
			job.ChunkingDelta{
				DocumentsCleaned: 1,
				ChunksCreated:    len(chunks),
				ChunksQueued:     len(chunks),
			})
	}

	if len(e.ws.chunks) == 0 {
		return nil, fmt.Errorf("%w: no chunks produced from %d documents", ErrExternalSource, total)
	}
	return nil, nil
}
