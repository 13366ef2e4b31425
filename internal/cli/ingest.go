package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/knowbase/internal/models"
)

var ingestNoWatch bool

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Run and control ingestion jobs",
	Long: `Start, watch and control the ingestion pipeline of a knowledge base.

Examples:
  knowbase ingest start a1b2c3d4          # start and watch
  knowbase ingest status a1b2c3d4
  knowbase ingest watch a1b2c3d4`,
}

var ingestStartCmd = &cobra.Command{
	Use:   "start <kb-id>",
	Short: "Start ingestion for a knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestStart,
}

var ingestStatusCmd = &cobra.Command{
	Use:   "status <kb-id>",
	Short: "Show the current ingestion status",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestStatus,
}

var ingestWatchCmd = &cobra.Command{
	Use:   "watch <kb-id>",
	Short: "Watch a running ingestion with pause/resume/cancel keys",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestWatch,
}

func init() {
	ingestStartCmd.Flags().BoolVar(&ingestNoWatch, "no-watch", false, "print the job ID and poll with 'ingest status' instead of watching")

	ingestCmd.AddCommand(ingestStartCmd)
	ingestCmd.AddCommand(ingestStatusCmd)
	ingestCmd.AddCommand(ingestWatchCmd)
}

func runIngestStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, true)
	if err != nil {
		return err
	}

	kbID := args[0]
	j, err := ctrl.StartIngestion(ctx, kbID)
	if err != nil {
		return err
	}
	fmt.Printf("Started job %s for knowledge base %s\n", j.JobID, kbID)

	if ingestNoWatch {
		// The pipeline runs inside this process; without the watch UI the
		// command blocks until the job ends.
		return pollUntilDone(ctx, kbID)
	}
	return runWatch(ctrl, kbID)
}

func runIngestStatus(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, false)
	if err != nil {
		return err
	}

	j, err := ctrl.GetStatus(ctx, args[0])
	if err != nil {
		return err
	}
	printJob(j)
	return nil
}

func runIngestWatch(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, true)
	if err != nil {
		return err
	}
	return runWatch(ctrl, args[0])
}

func pollUntilDone(ctx context.Context, kbID string) error {
	for {
		time.Sleep(time.Second)
		j, err := controller.GetStatus(ctx, kbID)
		if err != nil {
			return err
		}
		if j.Status.Terminal() {
			printJob(j)
			if j.Status == models.JobFailed && j.Error != nil {
				return fmt.Errorf("ingestion failed: %s", *j.Error)
			}
			return nil
		}
	}
}

func printJob(j *models.IngestionJob) {
	if j.JobID == "" {
		fmt.Printf("Status: %s\n", j.Status)
		return
	}

	fmt.Printf("Job: %s\n", j.JobID)
	fmt.Printf("  Status:   %s\n", j.Status)
	fmt.Printf("  Phase:    %s (%d%%)\n", j.Phase, j.PhaseProgress)
	fmt.Printf("  Overall:  %d%%\n", j.Progress)
	if j.Message != "" {
		fmt.Printf("  Message:  %s\n", j.Message)
	}
	if j.Error != nil {
		fmt.Printf("  Error:    %s\n", *j.Error)
	}

	fmt.Println("\n  Phases:")
	for _, d := range j.PhaseDetails {
		fmt.Printf("    %-10s %-12s %3d%%\n", d.Name, d.Status, d.Progress)
	}

	m := j.Metrics
	fmt.Println("\n  Metrics:")
	fmt.Printf("    documents crawled: %d, cleaned: %d\n", m.DocumentsCrawled, m.DocumentsCleaned)
	fmt.Printf("    chunks created: %d, queued: %d\n", m.ChunksCreated, m.ChunksQueued)
	fmt.Printf("    pending: %d, processing: %d, embedded: %d, failed: %d\n",
		m.ChunksPending, m.ChunksProcessing, m.ChunksEmbedded, m.ChunksFailed)

	fmt.Printf("\n  Started: %s\n", j.StartedAt.Format(time.RFC3339))
	if j.CompletedAt != nil {
		fmt.Printf("  Completed: %s (%s)\n", j.CompletedAt.Format(time.RFC3339),
			j.CompletedAt.Sub(j.StartedAt).Round(time.Second))
	}
}
