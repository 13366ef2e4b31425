package job

import (
	"log/slog"
	"sync"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// Delta is a typed metrics update emitted by exactly one phase: loading owns
// documents_crawled, chunking owns documents_cleaned/chunks_created/
// chunks_queued, embedding owns the four chunk-state counters.
type Delta interface{ isDelta() }

// LoadingDelta is emitted by the loading phase per fetched document.
type LoadingDelta struct {
	DocumentsCrawled int
}

// ChunkingDelta is emitted by the chunking phase per cleaned document.
// Queued chunks enter the pipeline pending, so ChunksQueued raises both
// chunks_queued and chunks_pending; this keeps the conservation identity
// intact from the moment chunks_queued is known.
type ChunkingDelta struct {
	DocumentsCleaned int
	ChunksCreated    int
	ChunksQueued     int
}

// EmbeddingDelta is emitted by the embedding phase around each batch:
// Started moves chunks from pending to processing, Embedded and Failed move
// them out of processing.
type EmbeddingDelta struct {
	Started  int
	Embedded int
	Failed   int
}

func (LoadingDelta) isDelta()   {}
func (ChunkingDelta) isDelta()  {}
func (EmbeddingDelta) isDelta() {}

// Aggregator folds per-phase deltas into a consistent job metrics snapshot
// and re-validates the chunk-conservation identity after every chunking or
// embedding update. A violated identity is a defect: it is logged, never
// silently corrected. All methods are thread-safe.
type Aggregator struct {
	mu     sync.Mutex
	m      models.JobMetrics
	logger *slog.Logger
}

// NewAggregator creates an aggregator starting from an existing snapshot
// (zero value for a fresh job, the persisted metrics on resume).
func NewAggregator(start models.JobMetrics, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{m: start, logger: logger}
}

// Apply folds one delta and returns the updated snapshot.
func (a *Aggregator) Apply(d Delta) models.JobMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch d := d.(type) {
	case LoadingDelta:
		a.m.DocumentsCrawled += d.DocumentsCrawled

	case ChunkingDelta:
		a.m.DocumentsCleaned += d.DocumentsCleaned
		a.m.ChunksCreated += d.ChunksCreated
		a.m.ChunksQueued += d.ChunksQueued
		a.m.ChunksPending += d.ChunksQueued
		a.checkConservation("chunking")

	case EmbeddingDelta:
		a.m.ChunksPending -= d.Started
		a.m.ChunksProcessing += d.Started
		a.m.ChunksProcessing -= d.Embedded + d.Failed
		a.m.ChunksEmbedded += d.Embedded
		a.m.ChunksFailed += d.Failed
		a.checkConservation("embedding")
	}

	return a.m
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() models.JobMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.m
}

func (a *Aggregator) checkConservation(phase string) {
	if !a.m.Conserved() {
		a.logger.Error("chunk conservation violated",
			"phase", phase,
			"queued", a.m.ChunksQueued,
			"pending", a.m.ChunksPending,
			"processing", a.m.ChunksProcessing,
			"embedded", a.m.ChunksEmbedded,
			"failed", a.m.ChunksFailed)
	}
}
