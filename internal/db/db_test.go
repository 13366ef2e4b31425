// Package db provides integration tests for SurrealDB operations.
package db

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/raphaelgruber/knowbase/internal/models"
)

var testDB *Client
var testContainer testcontainers.Container

// TestMain sets up and tears down the SurrealDB container for all tests.
func TestMain(m *testing.M) {
	// Disable ryuk (cleanup container) as it can cause issues in some environments
	os.Setenv("TESTCONTAINERS_RYUK_DISABLED", "true")

	ctx := context.Background()

	var err error
	testContainer, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "surrealdb/surrealdb:v3.0.0-beta.1",
			ExposedPorts: []string{"8000/tcp"},
			Cmd:          []string{"start", "--log", "info", "--user", "root", "--pass", "root"},
			WaitingFor:   wait.ForLog("Started web server").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("Failed to start SurrealDB container: %v", err)
	}

	host, err := testContainer.Host(ctx)
	if err != nil {
		log.Fatalf("Failed to get container host: %v", err)
	}
	// Workaround: testcontainers may return "null" as host in some environments
	if host == "" || host == "null" {
		host = "localhost"
	}
	mappedPort, err := testContainer.MappedPort(ctx, "8000")
	if err != nil {
		log.Fatalf("Failed to get mapped port: %v", err)
	}

	testDB, err = NewClient(ctx, Config{
		URL:       fmt.Sprintf("ws://%s:%s/rpc", host, mappedPort.Port()),
		Namespace: "test",
		Database:  "test",
		Username:  "root",
		Password:  "root",
	}, 384, nil)
	if err != nil {
		log.Fatalf("Failed to connect to test database: %v", err)
	}

	if err := testDB.InitSchema(ctx); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	code := m.Run()

	_ = testDB.Close(ctx)
	_ = testContainer.Terminate(ctx)

	os.Exit(code)
}

// dummyEmbedding returns a 384-dim vector matching the test schema dimension.
func dummyEmbedding() []float32 {
	embedding := make([]float32, 384)
	for i := range embedding {
		embedding[i] = float32(i) / 384.0
	}
	return embedding
}

func testKB(name string) *models.KnowledgeBase {
	return &models.KnowledgeBase{
		ID:          fmt.Sprintf("%s-%d", name, time.Now().UnixNano()),
		Name:        fmt.Sprintf("%s %d", name, time.Now().UnixNano()),
		Description: "integration test kb",
		Status:      models.KBActive,
		SourceType:  models.SourceMarkdown,
		SourceConfig: models.SourceConfig{
			Type:     models.SourceMarkdown,
			Markdown: &models.MarkdownSource{FolderPath: "/data/notes"},
		},
		Profiles:  []string{"support"},
		Priority:  3,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

// =============================================================================
// KNOWLEDGE BASE TESTS
// =============================================================================

func TestCreateAndGetKB(t *testing.T) {
	ctx := context.Background()

	kb := testKB("kb-roundtrip")
	if err := testDB.CreateKB(ctx, kb); err != nil {
		t.Fatalf("CreateKB failed: %v", err)
	}
	defer func() { _ = testDB.DeleteKB(ctx, kb.ID) }()

	got, err := testDB.GetKB(ctx, kb.ID)
	if err != nil {
		t.Fatalf("GetKB failed: %v", err)
	}
	if got.Name != kb.Name {
		t.Errorf("Name = %q, want %q", got.Name, kb.Name)
	}
	if got.SourceType != models.SourceMarkdown {
		t.Errorf("SourceType = %q, want markdown", got.SourceType)
	}
	if got.SourceConfig.Markdown == nil || got.SourceConfig.Markdown.FolderPath != "/data/notes" {
		t.Errorf("SourceConfig did not round-trip: %+v", got.SourceConfig)
	}
	if got.Indexed {
		t.Error("fresh KB should not be indexed")
	}
	if got.Priority != 3 {
		t.Errorf("Priority = %d, want 3", got.Priority)
	}
}

func TestGetKB_NotFound(t *testing.T) {
	_, err := testDB.GetKB(context.Background(), "does-not-exist")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetKB error = %v, want ErrNotFound", err)
	}
}

func TestCreateKB_DuplicateName(t *testing.T) {
	ctx := context.Background()

	kb := testKB("kb-dup")
	if err := testDB.CreateKB(ctx, kb); err != nil {
		t.Fatalf("CreateKB failed: %v", err)
	}
	defer func() { _ = testDB.DeleteKB(ctx, kb.ID) }()

	dup := testKB("kb-dup-2")
	dup.Name = kb.Name
	err := testDB.CreateKB(ctx, dup)
	if !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate name error = %v, want ErrAlreadyExists", err)
	}
}

func TestListKBs_OrderedByPriority(t *testing.T) {
	ctx := context.Background()

	low := testKB("kb-low")
	low.Priority = 1
	high := testKB("kb-high")
	high.Priority = 9

	for _, kb := range []*models.KnowledgeBase{low, high} {
		if err := testDB.CreateKB(ctx, kb); err != nil {
			t.Fatalf("CreateKB failed: %v", err)
		}
	}
	defer func() {
		_ = testDB.DeleteKB(ctx, low.ID)
		_ = testDB.DeleteKB(ctx, high.ID)
	}()

	kbs, err := testDB.ListKBs(ctx)
	if err != nil {
		t.Fatalf("ListKBs failed: %v", err)
	}

	posLow, posHigh := -1, -1
	for i, kb := range kbs {
		switch kb.ID {
		case low.ID:
			posLow = i
		case high.ID:
			posHigh = i
		}
	}
	if posLow == -1 || posHigh == -1 {
		t.Fatalf("created KBs missing from list (%d entries)", len(kbs))
	}
	if posHigh > posLow {
		t.Error("higher priority KB should list first")
	}
}

func TestMarkKBIndexed(t *testing.T) {
	ctx := context.Background()

	kb := testKB("kb-indexed")
	if err := testDB.CreateKB(ctx, kb); err != nil {
		t.Fatalf("CreateKB failed: %v", err)
	}
	defer func() { _ = testDB.DeleteKB(ctx, kb.ID) }()

	at := time.Now().UTC().Truncate(time.Millisecond)
	if err := testDB.MarkKBIndexed(ctx, kb.ID, at); err != nil {
		t.Fatalf("MarkKBIndexed failed: %v", err)
	}

	got, err := testDB.GetKB(ctx, kb.ID)
	if err != nil {
		t.Fatalf("GetKB failed: %v", err)
	}
	if !got.Indexed {
		t.Error("KB should be indexed")
	}
	if got.LastIndexedAt == nil {
		t.Error("LastIndexedAt should be set")
	}
}

func TestDeleteKB_CascadesChunksAndJobs(t *testing.T) {
	ctx := context.Background()

	kb := testKB("kb-cascade")
	if err := testDB.CreateKB(ctx, kb); err != nil {
		t.Fatalf("CreateKB failed: %v", err)
	}

	rows := []ChunkRow{
		{KBID: kb.ID, DocID: "doc-1", Content: "cascade chunk", Embedding: dummyEmbedding()},
	}
	if err := testDB.IndexChunks(ctx, rows); err != nil {
		t.Fatalf("IndexChunks failed: %v", err)
	}
	job := terminalJob(kb.ID)
	if err := testDB.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}

	if err := testDB.DeleteKB(ctx, kb.ID); err != nil {
		t.Fatalf("DeleteKB failed: %v", err)
	}

	if _, err := testDB.GetKB(ctx, kb.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("KB should be gone, got %v", err)
	}
	count, err := testDB.CountChunks(ctx, kb.ID)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 0 {
		t.Errorf("chunks remain after KB delete: %d", count)
	}
	jobs, err := testDB.ListJobs(ctx, kb.ID)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 0 {
		t.Errorf("jobs remain after KB delete: %d", len(jobs))
	}
}

// =============================================================================
// JOB TESTS
// =============================================================================

func terminalJob(kbID string) *models.IngestionJob {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &models.IngestionJob{
		JobID:         fmt.Sprintf("job-%d", time.Now().UnixNano()),
		KBID:          kbID,
		Status:        models.JobCompleted,
		Phase:         models.PhaseCompleted,
		Progress:      100,
		PhaseProgress: 100,
		Message:       "completed",
		Metrics: models.JobMetrics{
			DocumentsCrawled: 4,
			DocumentsCleaned: 4,
			ChunksCreated:    10,
			ChunksQueued:     10,
			ChunksEmbedded:   10,
		},
		PhaseDetails: []models.PhaseDetail{
			{Name: models.PhaseLoading, Status: models.JobCompleted, Progress: 100},
			{Name: models.PhaseChunking, Status: models.JobCompleted, Progress: 100},
			{Name: models.PhaseEmbedding, Status: models.JobCompleted, Progress: 100},
			{Name: models.PhaseIndexing, Status: models.JobCompleted, Progress: 100},
		},
		StartedAt:   now.Add(-time.Minute),
		CompletedAt: &now,
	}
}

func TestSaveAndGetJob(t *testing.T) {
	ctx := context.Background()

	job := terminalJob("kb-jobs")
	if err := testDB.SaveJob(ctx, job); err != nil {
		t.Fatalf("SaveJob failed: %v", err)
	}
	defer func() { _ = testDB.DeleteKB(ctx, "kb-jobs") }()

	got, err := testDB.GetJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobCompleted {
		t.Errorf("Status = %q, want completed", got.Status)
	}
	if got.Metrics.ChunksEmbedded != 10 {
		t.Errorf("ChunksEmbedded = %d, want 10", got.Metrics.ChunksEmbedded)
	}
	if len(got.PhaseDetails) != 4 {
		t.Errorf("PhaseDetails = %d entries, want 4", len(got.PhaseDetails))
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt should be set")
	}
}

func TestSaveJob_UpsertsInPlace(t *testing.T) {
	ctx := context.Background()

	job := terminalJob("kb-upsert")
	job.Status = models.JobRunning
	job.Phase = models.PhaseEmbedding
	job.Progress = 60
	job.CompletedAt = nil
	if err := testDB.SaveJob(ctx, job); err != nil {
		t.Fatalf("first SaveJob failed: %v", err)
	}
	defer func() { _ = testDB.DeleteKB(ctx, "kb-upsert") }()

	errMsg := "provider unavailable"
	job.Status = models.JobFailed
	job.Error = &errMsg
	job.Checkpoint = []byte(`{"version":1,"phase":"embedding","chunk_cursor":6}`)
	if err := testDB.SaveJob(ctx, job); err != nil {
		t.Fatalf("second SaveJob failed: %v", err)
	}

	got, err := testDB.GetJob(ctx, job.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if got.Status != models.JobFailed {
		t.Errorf("Status = %q, want failed after upsert", got.Status)
	}
	if got.Error == nil || *got.Error != errMsg {
		t.Errorf("Error = %v, want %q", got.Error, errMsg)
	}
	if len(got.Checkpoint) == 0 {
		t.Error("Checkpoint should survive the round trip")
	}

	jobs, err := testDB.ListJobs(ctx, "kb-upsert")
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 {
		t.Errorf("upsert created %d rows, want 1", len(jobs))
	}
}

func TestGetJob_NotFound(t *testing.T) {
	_, err := testDB.GetJob(context.Background(), "no-such-job")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetJob error = %v, want ErrNotFound", err)
	}
}

func TestListJobs_NewestFirst(t *testing.T) {
	ctx := context.Background()
	kbID := fmt.Sprintf("kb-history-%d", time.Now().UnixNano())

	older := terminalJob(kbID)
	older.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	newer := terminalJob(kbID)
	newer.JobID = older.JobID + "-b"
	newer.StartedAt = time.Now().UTC().Add(-time.Minute)

	for _, j := range []*models.IngestionJob{older, newer} {
		if err := testDB.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob failed: %v", err)
		}
	}
	defer func() { _ = testDB.DeleteKB(ctx, kbID) }()

	jobs, err := testDB.ListJobs(ctx, kbID)
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].JobID != newer.JobID {
		t.Errorf("jobs[0] = %s, want newest job first", jobs[0].JobID)
	}
}

// =============================================================================
// CHUNK TESTS
// =============================================================================

func TestIndexAndSearchChunks(t *testing.T) {
	ctx := context.Background()
	kbID := fmt.Sprintf("kb-chunks-%d", time.Now().UnixNano())
	defer func() { _ = testDB.DeleteChunks(ctx, kbID) }()

	rows := []ChunkRow{
		{KBID: kbID, DocID: "doc-1", DocTitle: "Guide", HeadingPath: "# Guide > ## Setup",
			ChunkIndex: 0, Content: "Install the service with the setup script.", Embedding: dummyEmbedding()},
		{KBID: kbID, DocID: "doc-1", DocTitle: "Guide", HeadingPath: "# Guide > ## Usage",
			ChunkIndex: 1, Content: "Run the service from the command line.", Embedding: dummyEmbedding(), Tags: []string{"cli"}},
		{KBID: kbID, DocID: "doc-2", DocTitle: "FAQ",
			ChunkIndex: 0, Content: "Frequently asked questions about the service.", Embedding: dummyEmbedding()},
	}
	if err := testDB.IndexChunks(ctx, rows); err != nil {
		t.Fatalf("IndexChunks failed: %v", err)
	}

	count, err := testDB.CountChunks(ctx, kbID)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountChunks = %d, want 3", count)
	}

	hits, err := testDB.SearchChunks(ctx, kbID, dummyEmbedding(), 2)
	if err != nil {
		t.Fatalf("SearchChunks failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("SearchChunks returned no hits")
	}
	if len(hits) > 2 {
		t.Errorf("SearchChunks returned %d hits, want at most 2", len(hits))
	}
	for _, h := range hits {
		if h.Score <= 0 {
			t.Errorf("hit %s has non-positive score %f", h.DocID, h.Score)
		}
	}
}

func TestIndexChunks_EmptyBatchIsNoop(t *testing.T) {
	if err := testDB.IndexChunks(context.Background(), nil); err != nil {
		t.Errorf("IndexChunks(nil) = %v, want nil", err)
	}
}

func TestDeleteChunks(t *testing.T) {
	ctx := context.Background()
	kbID := fmt.Sprintf("kb-delchunks-%d", time.Now().UnixNano())

	rows := []ChunkRow{
		{KBID: kbID, DocID: "doc-1", Content: "to be deleted", Embedding: dummyEmbedding()},
	}
	if err := testDB.IndexChunks(ctx, rows); err != nil {
		t.Fatalf("IndexChunks failed: %v", err)
	}

	if err := testDB.DeleteChunks(ctx, kbID); err != nil {
		t.Fatalf("DeleteChunks failed: %v", err)
	}
	count, err := testDB.CountChunks(ctx, kbID)
	if err != nil {
		t.Fatalf("CountChunks failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountChunks after delete = %d, want 0", count)
	}
}
