package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/docsd/internal/config"
	"github.com/fyrsmithlabs/docsd/internal/jobs"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "Follow job events published to NATS",
	Long: `Jobs subscribes to the NATS job-event subjects and prints every
lifecycle event as it arrives. With a job ID, only that job's events are
shown. Requires nats.enabled in the configuration; press Ctrl-C to stop.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.NATS.Enabled {
		return fmt.Errorf("job following requires nats.enabled: true (set nats.url to the broker)")
	}

	jobID := ""
	if len(args) == 1 {
		jobID = args[0]
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Following job events on %s (Ctrl-C to stop)\n", cfg.NATS.URL)
	return jobs.FollowEvents(ctx, cfg.NATS.URL, jobID, func(eventType string, job jobs.Job, at time.Time) {
		line := fmt.Sprintf("%s  %s  %-9s  %-9s  %3d%%",
			at.Format(time.RFC3339), job.ID, eventType, job.State, job.Progress)
		if job.Message != "" {
			line += "  " + job.Message
		}
		if job.Error != nil {
			line += "  error: " + job.Error.Message
		}
		fmt.Println(line)
	})
}
