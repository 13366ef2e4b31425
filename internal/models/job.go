package models

import "time"

// JobStatus is the state of an ingestion job.
type JobStatus string

const (
	JobNotStarted JobStatus = "not_started"
	JobPending    JobStatus = "pending"
	JobRunning    JobStatus = "running"
	JobPaused     JobStatus = "paused"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further transitions may leave the status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Phase is one stage of the ingestion pipeline.
type Phase string

const (
	PhaseLoading   Phase = "loading"
	PhaseChunking  Phase = "chunking"
	PhaseEmbedding Phase = "embedding"
	PhaseIndexing  Phase = "indexing"
	PhaseCompleted Phase = "completed"
	PhaseFailed    Phase = "failed"
)

// PipelinePhases is the fixed execution order. Every run visits these in
// order with no phase skipped or repeated.
var PipelinePhases = [4]Phase{PhaseLoading, PhaseChunking, PhaseEmbedding, PhaseIndexing}

// JobMetrics counts the work done by each pipeline phase. Once chunks_queued
// is known (after chunking), the identity
// chunks_pending + chunks_processing + chunks_embedded + chunks_failed ==
// chunks_queued must hold after every update.
type JobMetrics struct {
	DocumentsCrawled int `json:"documents_crawled"`
	DocumentsCleaned int `json:"documents_cleaned"`
	ChunksCreated    int `json:"chunks_created"`
	ChunksQueued     int `json:"chunks_queued"`
	ChunksPending    int `json:"chunks_pending"`
	ChunksProcessing int `json:"chunks_processing"`
	ChunksEmbedded   int `json:"chunks_embedded"`
	ChunksFailed     int `json:"chunks_failed"`
}

// Conserved reports whether the chunk-conservation identity holds.
// Meaningful only once chunks_queued is set.
func (m JobMetrics) Conserved() bool {
	return m.ChunksPending+m.ChunksProcessing+m.ChunksEmbedded+m.ChunksFailed == m.ChunksQueued
}

// PhaseDetail is the per-phase progress record, retained historically for
// completed phases.
type PhaseDetail struct {
	Name     Phase     `json:"name"`
	Status   JobStatus `json:"status"`
	Progress int       `json:"progress"`
}

// IngestionJob is the full job record for one ingestion run of a knowledge
// base. At most one non-terminal job exists per KB at any time.
type IngestionJob struct {
	JobID         string        `json:"job_id"`
	KBID          string        `json:"kb_id"`
	Status        JobStatus     `json:"status"`
	Phase         Phase         `json:"phase"`
	Progress      int           `json:"progress"`       // overall 0-100
	PhaseProgress int           `json:"phase_progress"` // current phase 0-100
	Message       string        `json:"message,omitempty"`
	Error         *string       `json:"error,omitempty"`
	Metrics       JobMetrics    `json:"metrics"`
	PhaseDetails  []PhaseDetail `json:"phase_details"`
	Checkpoint    []byte        `json:"checkpoint,omitempty"` // opaque, versioned
	StartedAt     time.Time     `json:"started_at"`
	CompletedAt   *time.Time    `json:"completed_at,omitempty"`

	// PauseRequested flags a cooperative pause consumed by the orchestrator
	// at the next safe checkpoint.
	PauseRequested bool `json:"pause_requested,omitempty"`
}

// Clone returns a deep copy so that store snapshots are immutable.
func (j *IngestionJob) Clone() *IngestionJob {
	cp := *j
	cp.PhaseDetails = make([]PhaseDetail, len(j.PhaseDetails))
	copy(cp.PhaseDetails, j.PhaseDetails)
	if j.Error != nil {
		e := *j.Error
		cp.Error = &e
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		cp.CompletedAt = &t
	}
	if j.Checkpoint != nil {
		cp.Checkpoint = make([]byte, len(j.Checkpoint))
		copy(cp.Checkpoint, j.Checkpoint)
	}
	return &cp
}

// PhaseIndex returns the position of p in the pipeline order, or -1 for the
// terminal pseudo-phases.
func PhaseIndex(p Phase) int {
	for i, ph := range PipelinePhases {
		if ph == p {
			return i
		}
	}
	return -1
}
