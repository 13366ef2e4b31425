package db

import (
	"context"
	"fmt"
	"time"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// jobRecord is the wire shape of an ingestion job row.
type jobRecord struct {
	ID            surrealmodels.RecordID `json:"id"`
	KBID          string                 `json:"kb_id"`
	Status        string                 `json:"status"`
	Phase         string                 `json:"phase"`
	Progress      int                    `json:"progress"`
	PhaseProgress int                    `json:"phase_progress"`
	Message       *string                `json:"message,omitempty"`
	Error         *string                `json:"error,omitempty"`
	Metrics       models.JobMetrics      `json:"metrics"`
	PhaseDetails  []models.PhaseDetail   `json:"phase_details"`
	Checkpoint    []byte                 `json:"checkpoint,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
}

func (r jobRecord) toModel() (*models.IngestionJob, error) {
	id, err := recordIDString(r.ID)
	if err != nil {
		return nil, err
	}
	job := &models.IngestionJob{
		JobID:         id,
		KBID:          r.KBID,
		Status:        models.JobStatus(r.Status),
		Phase:         models.Phase(r.Phase),
		Progress:      r.Progress,
		PhaseProgress: r.PhaseProgress,
		Error:         r.Error,
		Metrics:       r.Metrics,
		PhaseDetails:  r.PhaseDetails,
		Checkpoint:    r.Checkpoint,
		StartedAt:     r.StartedAt,
		CompletedAt:   r.CompletedAt,
	}
	if r.Message != nil {
		job.Message = *r.Message
	}
	return job, nil
}

// SaveJob upserts the full job record. The in-memory job store is the
// source of truth while a job runs; rows here are durable snapshots.
func (c *Client) SaveJob(ctx context.Context, job *models.IngestionJob) error {
	// Optional fields bind explicitly as nil so every statement parameter
	// is always present.
	vars := map[string]any{
		"id":             job.JobID,
		"kb_id":          job.KBID,
		"status":         string(job.Status),
		"phase":          string(job.Phase),
		"progress":       job.Progress,
		"phase_progress": job.PhaseProgress,
		"metrics":        job.Metrics,
		"phase_details":  job.PhaseDetails,
		"started_at":     job.StartedAt,
		"message":        nil,
		"error":          nil,
		"checkpoint":     nil,
		"completed_at":   nil,
	}
	if job.Message != "" {
		vars["message"] = job.Message
	}
	if job.Error != nil {
		vars["error"] = *job.Error
	}
	if job.Checkpoint != nil {
		vars["checkpoint"] = job.Checkpoint
	}
	if job.CompletedAt != nil {
		vars["completed_at"] = *job.CompletedAt
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("ingest_job", $id) SET
			kb_id = $kb_id,
			status = $status,
			phase = $phase,
			progress = $progress,
			phase_progress = $phase_progress,
			message = $message,
			error = $error,
			metrics = $metrics,
			phase_details = $phase_details,
			checkpoint = $checkpoint,
			started_at = $started_at,
			completed_at = $completed_at
	`, vars)
	if err != nil {
		return fmt.Errorf("save job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob retrieves one job by ID. Returns ErrNotFound when absent.
func (c *Client) GetJob(ctx context.Context, id string) (*models.IngestionJob, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM type::record("ingest_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return (*results)[0].Result[0].toModel()
}

// ListJobs returns the job history of one KB, newest first.
func (c *Client) ListJobs(ctx context.Context, kbID string) ([]*models.IngestionJob, error) {
	results, err := surrealdb.Query[[]jobRecord](ctx, c.db, `
		SELECT * FROM ingest_job WHERE kb_id = $kb_id ORDER BY started_at DESC
	`, map[string]any{"kb_id": kbID})
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	jobs := make([]*models.IngestionJob, 0, len((*results)[0].Result))
	for _, rec := range (*results)[0].Result {
		job, err := rec.toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
