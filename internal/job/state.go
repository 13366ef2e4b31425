// Package job implements the ingestion job state machine, metrics
// aggregation and the versioned per-KB job store.
package job

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raphaelgruber/knowbase/internal/models"
)

// ErrInvalidTransition is wrapped by every TransitionError.
var ErrInvalidTransition = errors.New("invalid state transition")

// TransitionError reports a control operation that is not valid from the
// job's current status. It is a reported error, never a silent no-op.
type TransitionError struct {
	Op   string
	From models.JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid state transition: %s not allowed from %q", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

func transitionErr(op string, from models.JobStatus) error {
	return &TransitionError{Op: op, From: from}
}

// New returns a fresh job record in pending for the given KB. The
// one-active-job-per-KB check lives in Store.Create, which is the only
// constructor callers should use.
func New(kbID string) *models.IngestionJob {
	details := make([]models.PhaseDetail, 0, len(models.PipelinePhases))
	for _, p := range models.PipelinePhases {
		details = append(details, models.PhaseDetail{Name: p, Status: models.JobNotStarted})
	}
	return &models.IngestionJob{
		JobID:        uuid.New().String()[:8],
		KBID:         kbID,
		Status:       models.JobPending,
		Phase:        models.PhaseLoading,
		Message:      "queued",
		PhaseDetails: details,
		StartedAt:    time.Now().UTC(),
	}
}

// BeginRunning moves a pending job to running as the first phase executor
// starts processing.
func BeginRunning(j *models.IngestionJob) error {
	if j.Status != models.JobPending {
		return transitionErr("beginRunning", j.Status)
	}
	j.Status = models.JobRunning
	j.Message = "loading documents"
	detail(j, j.Phase).Status = models.JobRunning
	return nil
}

// ReportProgress records phase-local progress. Valid only while running.
// Overall progress is the equal-quartile weighted sum over the four phases.
func ReportProgress(j *models.IngestionJob, phase models.Phase, pct int, message string) error {
	if j.Status != models.JobRunning {
		return transitionErr("reportProgress", j.Status)
	}
	if phase != j.Phase {
		return fmt.Errorf("progress for phase %q reported while in phase %q", phase, j.Phase)
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	j.PhaseProgress = pct
	if message != "" {
		j.Message = message
	}
	d := detail(j, phase)
	d.Status = models.JobRunning
	d.Progress = pct
	j.Progress = overallProgress(j.Phase, pct)
	return nil
}

// AdvancePhase completes the current phase and enters the next one in the
// fixed order. Advancing past indexing completes the job.
func AdvancePhase(j *models.IngestionJob) error {
	if j.Status != models.JobRunning {
		return transitionErr("advancePhase", j.Status)
	}
	idx := models.PhaseIndex(j.Phase)
	if idx < 0 {
		return transitionErr("advancePhase", j.Status)
	}

	d := detail(j, j.Phase)
	d.Status = models.JobCompleted
	d.Progress = 100

	if idx == len(models.PipelinePhases)-1 {
		now := time.Now().UTC()
		j.Status = models.JobCompleted
		j.Phase = models.PhaseCompleted
		j.Progress = 100
		j.PhaseProgress = 100
		// A pause requested during the final items was never consumed at a
		// checkpoint; completion discards it.
		j.PauseRequested = false
		j.Message = "completed"
		j.CompletedAt = &now
		return nil
	}

	j.Phase = models.PipelinePhases[idx+1]
	j.PhaseProgress = 0
	j.Progress = overallProgress(j.Phase, 0)
	next := detail(j, j.Phase)
	next.Status = models.JobRunning
	return nil
}

// RequestPause flags a cooperative pause. The job keeps running until the
// orchestrator consumes the flag at the next safe checkpoint (ApplyPause).
func RequestPause(j *models.IngestionJob) error {
	if j.Status != models.JobRunning {
		return transitionErr("pause", j.Status)
	}
	j.PauseRequested = true
	j.Message = "pause requested"
	return nil
}

// ApplyPause flips a running job with a pending pause request to paused.
// Called by the orchestrator once the active phase stopped at a checkpoint.
func ApplyPause(j *models.IngestionJob, checkpoint []byte) error {
	if j.Status != models.JobRunning || !j.PauseRequested {
		return transitionErr("applyPause", j.Status)
	}
	j.Status = models.JobPaused
	j.PauseRequested = false
	j.Checkpoint = checkpoint
	j.Message = "paused"
	detail(j, j.Phase).Status = models.JobPaused
	return nil
}

// RequestResume moves a paused job back to running; the orchestrator picks
// the persisted checkpoint back up.
func RequestResume(j *models.IngestionJob) error {
	if j.Status != models.JobPaused {
		return transitionErr("resume", j.Status)
	}
	j.Status = models.JobRunning
	j.Message = "resuming"
	detail(j, j.Phase).Status = models.JobRunning
	return nil
}

// RequestCancel terminally fails the job. Valid from pending, running or
// paused; no transitions leave the resulting state.
func RequestCancel(j *models.IngestionJob) error {
	switch j.Status {
	case models.JobPending, models.JobRunning, models.JobPaused:
	default:
		return transitionErr("cancel", j.Status)
	}
	fail(j, "cancelled")
	return nil
}

// MarkFailed terminally fails a pending or running job with the given error.
func MarkFailed(j *models.IngestionJob, cause error) error {
	if j.Status != models.JobPending && j.Status != models.JobRunning {
		return transitionErr("markFailed", j.Status)
	}
	fail(j, cause.Error())
	return nil
}

// fail freezes phase and progress at the failure point for diagnosis. A job
// that never ran has no phase to freeze and reports the failed pseudo-phase.
func fail(j *models.IngestionJob, msg string) {
	now := time.Now().UTC()
	if j.Status == models.JobPending {
		j.Phase = models.PhaseFailed
	} else if d := detail(j, j.Phase); d != nil {
		d.Status = models.JobFailed
	}
	j.Status = models.JobFailed
	j.PauseRequested = false
	j.Message = msg
	j.Error = &msg
	j.CompletedAt = &now
}

// overallProgress maps (phase, phase-local pct) to 0-100 with each of the
// four phases contributing an equal quartile.
func overallProgress(phase models.Phase, pct int) int {
	idx := models.PhaseIndex(phase)
	if idx < 0 {
		return 100
	}
	return (idx*100 + pct) / len(models.PipelinePhases)
}

func detail(j *models.IngestionJob, p models.Phase) *models.PhaseDetail {
	for i := range j.PhaseDetails {
		if j.PhaseDetails[i].Name == p {
			return &j.PhaseDetails[i]
		}
	}
	return nil
}
