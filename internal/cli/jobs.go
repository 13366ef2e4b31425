package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs <kb-id>",
	Short: "List the ingestion job history of a knowledge base",
	Long: `List all ingestion jobs recorded for a knowledge base, newest first.

Examples:
  knowbase jobs a1b2c3d4`,
	Args: cobra.ExactArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	ctrl, err := getController(ctx, false)
	if err != nil {
		return err
	}

	jobs, err := ctrl.JobHistory(ctx, args[0])
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-12s %-11s %-9s %-17s %s\n", "ID", "STATUS", "PHASE", "PROGRESS", "STARTED", "DURATION")
	fmt.Println("------------------------------------------------------------------------")

	for _, j := range jobs {
		duration := "-"
		if j.CompletedAt != nil {
			duration = j.CompletedAt.Sub(j.StartedAt).Round(time.Second).String()
		}
		fmt.Printf("%-10s %-12s %-11s %8d%% %-17s %s\n",
			j.JobID, j.Status, j.Phase, j.Progress,
			j.StartedAt.Format("2006-01-02 15:04"), duration)
	}

	return nil
}
