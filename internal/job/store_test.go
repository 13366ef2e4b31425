package job

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/raphaelgruber/knowbase/internal/models"
)

// memPersister records saved jobs in memory.
type memPersister struct {
	mu    sync.Mutex
	saves []models.IngestionJob
	fail  bool
}

func (p *memPersister) SaveJob(_ context.Context, j *models.IngestionJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errors.New("db down")
	}
	p.saves = append(p.saves, *j)
	return nil
}

func TestStore_OneActiveJobPerKB(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)

	if _, err := s.Create(ctx, "kb1"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := s.Create(ctx, "kb1"); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Errorf("second Create() error = %v, want ErrJobAlreadyRunning", err)
	}
	// A different KB is unaffected.
	if _, err := s.Create(ctx, "kb2"); err != nil {
		t.Errorf("Create(kb2) error = %v", err)
	}
}

func TestStore_TerminalJobMovesToHistory(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)

	first, _ := s.Create(ctx, "kb1")
	_, err := s.Update(ctx, "kb1", first.Version, func(j *models.IngestionJob) error {
		return RequestCancel(j)
	})
	if err != nil {
		t.Fatalf("cancel error = %v", err)
	}

	second, err := s.Create(ctx, "kb1")
	if err != nil {
		t.Fatalf("Create() after terminal error = %v", err)
	}
	if second.Job.JobID == first.Job.JobID {
		t.Error("new job reused the old job ID")
	}

	hist := s.History("kb1")
	if len(hist) != 1 || hist[0].JobID != first.Job.JobID {
		t.Errorf("history = %v, want the first job", hist)
	}
}

func TestStore_VersionConflictRejectsWrite(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	snap, _ := s.Create(ctx, "kb1")

	// First writer wins.
	if _, err := s.Update(ctx, "kb1", snap.Version, BeginRunning); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// Second writer with the stale version loses, nothing changes.
	_, err := s.Update(ctx, "kb1", snap.Version, func(j *models.IngestionJob) error {
		j.Message = "stale write"
		return nil
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("stale Update() error = %v, want ErrVersionConflict", err)
	}

	cur, _ := s.Get("kb1")
	if cur.Job.Message == "stale write" {
		t.Error("conflicting write mutated the record")
	}
	if cur.Job.Status != models.JobRunning {
		t.Errorf("Status = %q, want running from the winning write", cur.Job.Status)
	}
}

func TestStore_FailedMutationLeavesRecordUntouched(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	snap, _ := s.Create(ctx, "kb1")

	_, err := s.Update(ctx, "kb1", snap.Version, func(j *models.IngestionJob) error {
		j.Message = "half done"
		return errors.New("mutation failed")
	})
	if err == nil {
		t.Fatal("expected mutation error")
	}

	cur, _ := s.Get("kb1")
	if cur.Version != snap.Version {
		t.Error("failed mutation bumped the version")
	}
	if cur.Job.Message == "half done" {
		t.Error("failed mutation leaked into the record")
	}
}

func TestStore_ApplyRetriesThroughConflicts(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	s.Create(ctx, "kb1")
	s.Apply(ctx, "kb1", BeginRunning)

	// Many goroutines race progress updates; Apply's re-read loop should
	// land every one of them.
	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Apply(ctx, "kb1", func(j *models.IngestionJob) error {
				j.Metrics.DocumentsCrawled++
				return nil
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Apply() error = %v", err)
		}
	}

	cur, _ := s.Get("kb1")
	if cur.Job.Metrics.DocumentsCrawled != 4 {
		t.Errorf("DocumentsCrawled = %d, want 4", cur.Job.Metrics.DocumentsCrawled)
	}
}

func TestStore_SnapshotsAreImmutable(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	s.Create(ctx, "kb1")

	snap, _ := s.Get("kb1")
	snap.Job.Message = "mutated copy"
	snap.Job.PhaseDetails[0].Progress = 99

	cur, _ := s.Get("kb1")
	if cur.Job.Message == "mutated copy" || cur.Job.PhaseDetails[0].Progress == 99 {
		t.Error("snapshot mutation reached the store")
	}
}

func TestStore_PersistFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{fail: true}
	s := NewStore(p, nil)

	if _, err := s.Create(ctx, "kb1"); err != nil {
		t.Fatalf("Create() with failing persister error = %v", err)
	}
	// The in-memory record is still authoritative.
	if _, err := s.Get("kb1"); err != nil {
		t.Errorf("Get() error = %v", err)
	}
}

func TestStore_PersistsOnStatusChange(t *testing.T) {
	ctx := context.Background()
	p := &memPersister{}
	s := NewStore(p, nil)

	s.Create(ctx, "kb1")
	s.Apply(ctx, "kb1", BeginRunning)

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.saves) < 2 {
		t.Fatalf("got %d persisted snapshots, want at least create + running", len(p.saves))
	}
	last := p.saves[len(p.saves)-1]
	if last.Status != models.JobRunning {
		t.Errorf("last persisted status = %q, want running", last.Status)
	}
}

func TestStore_Drop(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil, nil)
	s.Create(ctx, "kb1")

	s.Drop("kb1")
	if _, err := s.Get("kb1"); !errors.Is(err, ErrNoJob) {
		t.Errorf("Get() after Drop error = %v, want ErrNoJob", err)
	}
	if len(s.History("kb1")) != 0 {
		t.Error("history survived Drop")
	}
}
