// Package pipeline runs the fixed four-phase ingestion pipeline for one
// knowledge base: loading, chunking, embedding, indexing.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// checkpointVersion guards the checkpoint wire format. Bump on any change
// to the Checkpoint struct.
const checkpointVersion = 1

// ErrCheckpointVersion rejects a checkpoint written by an incompatible
// build. Resume fails cleanly instead of misreading cursors.
var ErrCheckpointVersion = errors.New("incompatible checkpoint version")

// Checkpoint captures where a paused run stopped. Cursors are phase-local:
// each phase only reads its own. Terminal metrics travel in the job record,
// not here.
type Checkpoint struct {
	Version     int          `json:"version"`
	Phase       models.Phase `json:"phase"`
	DocCursor   int          `json:"doc_cursor"`   // loading, chunking
	ChunkCursor int          `json:"chunk_cursor"` // embedding
	RowCursor   int          `json:"row_cursor"`   // indexing
}

// Encode serializes a checkpoint for storage on the job record.
func (c *Checkpoint) Encode() ([]byte, error) {
	c.Version = checkpointVersion
	raw, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return raw, nil
}

// DecodeCheckpoint parses a stored checkpoint. Nil input yields a fresh
// checkpoint starting at the loading phase.
func DecodeCheckpoint(raw []byte) (*Checkpoint, error) {
	if len(raw) == 0 {
		return &Checkpoint{Version: checkpointVersion, Phase: models.PhaseLoading}, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrCheckpointVersion, cp.Version, checkpointVersion)
	}
	return &cp, nil
}
