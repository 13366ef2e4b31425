package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/knowbase/internal/db"
	"github.com/raphaelgruber/knowbase/internal/job"
	"github.com/raphaelgruber/knowbase/internal/models"
	"github.com/raphaelgruber/knowbase/internal/pipeline"
)

// teardownTimeout bounds how long DeleteKB waits for a cancelled run to
// let go of its resources.
const teardownTimeout = 10 * time.Second

// Repo is the persistence surface the controller needs. *db.Client
// implements it.
type Repo interface {
	CreateKB(ctx context.Context, kb *models.KnowledgeBase) error
	GetKB(ctx context.Context, id string) (*models.KnowledgeBase, error)
	ListKBs(ctx context.Context) ([]*models.KnowledgeBase, error)
	MarkKBIndexed(ctx context.Context, id string, at time.Time) error
	DeleteKB(ctx context.Context, id string) error
	ListJobs(ctx context.Context, kbID string) ([]*models.IngestionJob, error)
}

// Controller coordinates the KB registry, the job store and the pipeline
// orchestrator. All public mutations of ingestion state go through here.
type Controller struct {
	repo   Repo
	store  *job.Store
	orch   *pipeline.Orchestrator
	logger *slog.Logger
}

// NewController wires the controller and registers the completion hook
// that flips a KB to indexed when its job finishes.
func NewController(repo Repo, store *job.Store, orch *pipeline.Orchestrator, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{repo: repo, store: store, orch: orch, logger: logger}
	orch.OnComplete = c.onJobComplete
	return c
}

// CreateKB validates the input and registers a new knowledge base. The
// source configuration is checked up front so a broken config never
// reaches a pipeline run.
func (c *Controller) CreateKB(ctx context.Context, input models.KBInput) (*models.KnowledgeBase, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationErr("name must not be empty")
	}
	if err := input.SourceConfig.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrValidation, err)
	}

	kb := &models.KnowledgeBase{
		ID:           uuid.New().String()[:8],
		Name:         name,
		Description:  input.Description,
		Status:       models.KBActive,
		SourceType:   input.SourceConfig.Type,
		SourceConfig: input.SourceConfig,
		Profiles:     input.Profiles,
		Priority:     input.Priority,
		CreatedAt:    time.Now().UTC(),
	}

	if err := c.repo.CreateKB(ctx, kb); err != nil {
		if errors.Is(err, db.ErrAlreadyExists) {
			return nil, conflictErr("knowledge base %q already exists", name)
		}
		return nil, err
	}

	c.logger.Info("knowledge base created", "kb_id", kb.ID, "name", kb.Name, "source_type", kb.SourceType)
	return kb, nil
}

// GetKB returns one knowledge base.
func (c *Controller) GetKB(ctx context.Context, kbID string) (*models.KnowledgeBase, error) {
	kb, err := c.repo.GetKB(ctx, kbID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, kbID)
		}
		return nil, err
	}
	return kb, nil
}

// ListKBs returns all knowledge bases.
func (c *Controller) ListKBs(ctx context.Context) ([]*models.KnowledgeBase, error) {
	return c.repo.ListKBs(ctx)
}

// StartIngestion creates a job and launches the pipeline for the KB.
// Exactly one non-terminal job may exist per KB; a second start conflicts.
func (c *Controller) StartIngestion(ctx context.Context, kbID string) (*models.IngestionJob, error) {
	kb, err := c.GetKB(ctx, kbID)
	if err != nil {
		return nil, err
	}

	snap, err := c.orch.Launch(ctx, kb)
	if err != nil {
		if errors.Is(err, job.ErrJobAlreadyRunning) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, err)
		}
		return nil, err
	}
	return snap.Job, nil
}

// GetStatus returns the current job record for the KB. A KB that never ran
// ingestion reports a synthetic not_started record instead of an error.
func (c *Controller) GetStatus(ctx context.Context, kbID string) (*models.IngestionJob, error) {
	if _, err := c.GetKB(ctx, kbID); err != nil {
		return nil, err
	}

	snap, err := c.store.Get(kbID)
	if err != nil {
		if errors.Is(err, job.ErrNoJob) {
			return notStartedStatus(kbID), nil
		}
		return nil, err
	}
	return snap.Job, nil
}

// JobHistory returns persisted job records for the KB, newest first.
func (c *Controller) JobHistory(ctx context.Context, kbID string) ([]*models.IngestionJob, error) {
	if _, err := c.GetKB(ctx, kbID); err != nil {
		return nil, err
	}
	return c.repo.ListJobs(ctx, kbID)
}

// PauseIngestion requests a cooperative pause of the running job.
func (c *Controller) PauseIngestion(ctx context.Context, kbID string) (*models.IngestionJob, error) {
	snap, err := c.orch.Pause(ctx, kbID)
	if err != nil {
		return nil, mapControlErr(err, "pause", kbID)
	}
	return snap.Job, nil
}

// ResumeIngestion continues a paused job from its checkpoint.
func (c *Controller) ResumeIngestion(ctx context.Context, kbID string) (*models.IngestionJob, error) {
	snap, err := c.orch.Resume(ctx, kbID)
	if err != nil {
		return nil, mapControlErr(err, "resume", kbID)
	}
	return snap.Job, nil
}

// CancelIngestion terminally stops the job. Valid from pending, running
// and paused.
func (c *Controller) CancelIngestion(ctx context.Context, kbID string) (*models.IngestionJob, error) {
	snap, err := c.orch.Cancel(ctx, kbID)
	if err != nil {
		return nil, mapControlErr(err, "cancel", kbID)
	}
	return snap.Job, nil
}

// DeleteKB removes a knowledge base, its chunks and its job history. A
// live run is cancelled first and must tear down within the timeout,
// otherwise the delete is rejected and can be retried.
func (c *Controller) DeleteKB(ctx context.Context, kbID string) error {
	if _, err := c.GetKB(ctx, kbID); err != nil {
		return err
	}

	if c.orch.Running(kbID) {
		if _, err := c.orch.Cancel(ctx, kbID); err != nil && !errors.Is(err, job.ErrInvalidTransition) {
			return err
		}
		waitCtx, cancel := context.WithTimeout(ctx, teardownTimeout)
		defer cancel()
		if err := c.orch.AwaitTeardown(waitCtx, kbID); err != nil {
			return conflictErr("ingestion teardown for kb %s did not finish: %v", kbID, err)
		}
	}

	if err := c.repo.DeleteKB(ctx, kbID); err != nil {
		return err
	}
	c.store.Drop(kbID)
	c.logger.Info("knowledge base deleted", "kb_id", kbID)
	return nil
}

// onJobComplete flips the KB to indexed once its pipeline run finished.
func (c *Controller) onJobComplete(kbID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.repo.MarkKBIndexed(ctx, kbID, time.Now().UTC()); err != nil {
		c.logger.Error("failed to mark kb indexed", "kb_id", kbID, "error", err)
	}
}

func notStartedStatus(kbID string) *models.IngestionJob {
	details := make([]models.PhaseDetail, 0, len(models.PipelinePhases))
	for _, p := range models.PipelinePhases {
		details = append(details, models.PhaseDetail{Name: p, Status: models.JobNotStarted})
	}
	return &models.IngestionJob{
		KBID:         kbID,
		Status:       models.JobNotStarted,
		Phase:        models.PhaseLoading,
		Message:      "ingestion has not been started",
		PhaseDetails: details,
	}
}

func mapControlErr(err error, op, kbID string) error {
	switch {
	case errors.Is(err, job.ErrNoJob):
		// A KB that never ran reports the synthetic not_started status, so
		// control operations on it are invalid transitions, not conflicts.
		return fmt.Errorf("kb %s: %w", kbID, &job.TransitionError{Op: op, From: models.JobNotStarted})
	case errors.Is(err, pipeline.ErrRunNotResumable):
		return fmt.Errorf("%w: %s", ErrConflict, err)
	default:
		return err
	}
}
