package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/propertydigital/pdimport/internal/state"
	"github.com/propertydigital/pdimport/pkg/core"
)

// JobsOptions holds options for the jobs command.
type JobsOptions struct {
	Entity string
	Limit  int
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand() *cobra.Command {
	opts := &JobsOptions{}

	cmd := &cobra.Command{
		Use:   "jobs [jobID]",
		Short: "Show import job history",
		Long: `List recent import jobs from the local store, or show one job in
detail including its sampled errors.`,
		Example: `  # Recent jobs across all entities
  pdimport jobs

  # Payment jobs only
  pdimport jobs --entity Payment

  # One job with error detail
  pdimport jobs 3f6c2a18-...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return runJobDetail(cmd, args[0])
			}
			return runJobList(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Entity, "entity", "", "Filter by entity type")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "Maximum jobs to list")
	cmd.Flags().String("store.path", "pdimport.db", "Path to the SQLite store")

	return cmd
}

func openStore(cmd *cobra.Command) (*state.SQLiteStore, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	store := state.NewSQLiteStore()
	if err := store.Open(cfg.Store.Path); err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := store.InitSchema(); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func runJobList(cmd *cobra.Command, opts *JobsOptions) error {
	entity := core.EntityType(opts.Entity)
	if entity != "" && !entity.Valid() {
		return fmt.Errorf("unknown entity type %q", opts.Entity)
	}

	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	jobs, err := store.ListJobs(entity, opts.Limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No import jobs recorded.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Job", "Entity", "Status", "Total", "Processed", "Failed", "Cache", "Started"})
	for _, job := range jobs {
		t.AppendRow(table.Row{
			job.JobID, job.EntityType, job.Status,
			job.Total, job.Processed, job.Failed,
			job.CacheHitRate, job.StartedAt.Format(time.RFC3339),
		})
	}
	t.Render()
	return nil
}

func runJobDetail(cmd *cobra.Command, jobID string) error {
	store, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	job, err := store.GetJob(jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", jobID)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job:       %s\n", job.JobID)
	fmt.Fprintf(out, "Entity:    %s\n", job.EntityType)
	fmt.Fprintf(out, "Status:    %s\n", job.Status)
	fmt.Fprintf(out, "Records:   %d total, %d processed, %d failed\n", job.Total, job.Processed, job.Failed)
	if job.CacheHitRate != "" {
		fmt.Fprintf(out, "Cache:     %s hit rate\n", job.CacheHitRate)
	}
	fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Fprintf(out, "Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
	}

	if len(job.ErrorSample) > 0 {
		fmt.Fprintf(out, "\nSampled errors (first %d):\n", core.ErrorSampleLimit)
		t := table.NewWriter()
		t.SetOutputMirror(out)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Row", "Batch", "Column", "Kind", "Message"})
		for _, detail := range job.ErrorSample {
			t.AppendRow(table.Row{detail.Row, detail.Batch, detail.Column, detail.Kind, detail.Message})
		}
		t.Render()
	}
	return nil
}
