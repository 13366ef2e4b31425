package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// Sentinel errors for store operations. Check with errors.Is.
var (
	// ErrJobAlreadyRunning rejects job creation while a non-terminal job
	// exists for the same KB. This is the central invariant: at most one
	// active job per knowledge base.
	ErrJobAlreadyRunning = errors.New("an active ingestion job already exists")

	// ErrNoJob means ingestion was never run for the KB.
	ErrNoJob = errors.New("no ingestion job for knowledge base")

	// ErrVersionConflict rejects an optimistic write whose read version has
	// been overtaken by a concurrent write. Callers re-read, reapply and
	// retry; Apply does this with a bounded attempt count.
	ErrVersionConflict = errors.New("job record version conflict")
)

// maxWriteRetries bounds optimistic-write retries before the conflict is
// escalated to the caller.
const maxWriteRetries = 5

// persistDebounce limits how often progress-only writes hit the persister.
const persistDebounce = 2 * time.Second

// Persister mirrors job records to durable storage. Persistence is
// best-effort: the in-memory store stays authoritative for control flow and
// a failed mirror write is logged, not surfaced.
type Persister interface {
	SaveJob(ctx context.Context, job *models.IngestionJob) error
}

// Snapshot is an immutable view of a job record plus the version that must
// accompany a subsequent optimistic write.
type Snapshot struct {
	Version uint64
	Job     *models.IngestionJob
}

type record struct {
	version     uint64
	job         *models.IngestionJob
	lastPersist time.Time
}

// Store keeps the current job record per KB plus an append-only history of
// prior terminal records. Reads are wait-free snapshots; writes use an
// optimistic version counter so no update is silently lost.
type Store struct {
	mu      sync.RWMutex
	current map[string]*record
	history map[string][]*models.IngestionJob
	persist Persister
	logger  *slog.Logger
}

// NewStore creates a job store. persist may be nil for a purely in-memory
// store (tests, ephemeral runs).
func NewStore(persist Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		current: make(map[string]*record),
		history: make(map[string][]*models.IngestionJob),
		persist: persist,
		logger:  logger,
	}
}

// Create makes a new pending job for the KB. A prior terminal record is
// moved to history; a non-terminal one rejects the create.
func (s *Store) Create(ctx context.Context, kbID string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.current[kbID]; ok {
		if !rec.job.Status.Terminal() {
			return Snapshot{}, fmt.Errorf("%w: kb %s job %s is %s",
				ErrJobAlreadyRunning, kbID, rec.job.JobID, rec.job.Status)
		}
		s.history[kbID] = append(s.history[kbID], rec.job)
	}

	j := New(kbID)
	rec := &record{version: 1, job: j, lastPersist: time.Now()}
	s.current[kbID] = rec
	s.logger.Info("job created", "kb_id", kbID, "job_id", j.JobID)
	s.persistLocked(ctx, rec, true)
	return Snapshot{Version: rec.version, Job: j.Clone()}, nil
}

// Get returns a snapshot of the current job record. Never blocks on
// in-flight pipeline work.
func (s *Store) Get(kbID string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.current[kbID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoJob, kbID)
	}
	return Snapshot{Version: rec.version, Job: rec.job.Clone()}, nil
}

// History returns prior terminal job records, oldest first.
func (s *Store) History(kbID string) []*models.IngestionJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.history[kbID]
	out := make([]*models.IngestionJob, 0, len(hist))
	for _, j := range hist {
		out = append(out, j.Clone())
	}
	return out
}

// Update applies mutate against the record at the supplied version. If the
// stored version has advanced the write is rejected with ErrVersionConflict
// and nothing changes. Mutate runs on a clone, so a failed mutation leaves
// the record untouched.
func (s *Store) Update(ctx context.Context, kbID string, version uint64, mutate func(*models.IngestionJob) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.current[kbID]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrNoJob, kbID)
	}
	if rec.version != version {
		return Snapshot{}, fmt.Errorf("%w: read %d, stored %d", ErrVersionConflict, version, rec.version)
	}

	next := rec.job.Clone()
	statusBefore := next.Status
	if err := mutate(next); err != nil {
		return Snapshot{}, err
	}

	rec.job = next
	rec.version++
	s.persistLocked(ctx, rec, next.Status != statusBefore || next.Status.Terminal())
	return Snapshot{Version: rec.version, Job: next.Clone()}, nil
}

// Apply is the bounded read-mutate-retry loop around Update for callers that
// race with other writers. After maxWriteRetries conflicts the last conflict
// is returned for the caller to escalate.
func (s *Store) Apply(ctx context.Context, kbID string, mutate func(*models.IngestionJob) error) (Snapshot, error) {
	var lastErr error
	for range maxWriteRetries {
		snap, err := s.Get(kbID)
		if err != nil {
			return Snapshot{}, err
		}
		snap, err = s.Update(ctx, kbID, snap.Version, mutate)
		if err == nil {
			return snap, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return Snapshot{}, err
		}
		lastErr = err
	}
	return Snapshot{}, fmt.Errorf("optimistic retries exhausted: %w", lastErr)
}

// Drop removes the current record and history for a KB (KB deletion).
func (s *Store) Drop(kbID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.current, kbID)
	delete(s.history, kbID)
}

// persistLocked mirrors the record best-effort, debouncing progress-only
// writes. Caller holds s.mu.
func (s *Store) persistLocked(ctx context.Context, rec *record, force bool) {
	if s.persist == nil {
		return
	}
	if !force && time.Since(rec.lastPersist) < persistDebounce {
		return
	}
	rec.lastPersist = time.Now()
	if err := s.persist.SaveJob(ctx, rec.job.Clone()); err != nil {
		s.logger.Warn("failed to persist job record",
			"kb_id", rec.job.KBID, "job_id", rec.job.JobID, "error", err)
	}
}
