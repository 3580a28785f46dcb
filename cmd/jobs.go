package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/app"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	types "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/domain"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/dbctx"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "jobs", Short: "Inspect and drive stage jobs"}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsProcessCmd())
	cmd.AddCommand(jobsFailCmd())
	cmd.AddCommand(jobsWaitCmd())
	return cmd
}

func parseOptionalUUID(raw, name string) (uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", name, raw, err)
	}
	return id, nil
}

func printJobs(list []*types.JobRun) error {
	if jsonOutput {
		return printJSON(list)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Type", "Status", "Progress", "Attempts", "Created", "Error"})
	for _, j := range list {
		tw.AppendRow(table.Row{
			j.ID,
			j.JobType,
			j.Status,
			fmt.Sprintf("%d%%", j.Progress),
			fmt.Sprintf("%d/%d", j.Attempts, j.MaxAttempts),
			j.CreatedAt.Format(time.RFC3339),
			j.Error,
		})
	}
	tw.Render()
	return nil
}

func jobsListCmd() *cobra.Command {
	var (
		org    string
		status string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOptionalUUID(org, "org")
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				list, err := a.Services.Stages.ListJobs(dbctx.Context{Ctx: cmd.Context()}, repos.JobListFilter{
					OrgID:  orgID,
					Status: types.JobStatus(strings.ToUpper(status)),
					Limit:  limit,
				})
				if err != nil {
					return err
				}
				return printJobs(list)
			})
		},
	}
	cmd.Flags().StringVar(&org, "org", "", "organization id")
	cmd.Flags().StringVar(&status, "status", "", "QUEUED, PROCESSING, DONE or FAILED")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func jobsProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <job-id>",
		Short: "Claim and execute one queued job in this process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Services.JobWorker.ProcessNow(cmd.Context(), jobID); err != nil {
					return err
				}
				job, err := a.Repos.Jobs.GetByID(dbctx.Context{Ctx: cmd.Context()}, jobID)
				if err != nil {
					return err
				}
				return printJobs([]*types.JobRun{job})
			})
		},
	}
}

func jobsFailCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "fail <job-id>",
		Short: "Mark a queued or processing job as failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				job, err := a.Services.Stages.MarkJobFailed(dbctx.Context{Ctx: cmd.Context()}, uuid.Nil, jobID, reason)
				if err != nil {
					return err
				}
				return printJobs([]*types.JobRun{job})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "failure reason recorded on the job")
	return cmd
}

func jobsWaitCmd() *cobra.Command {
	var (
		interval time.Duration
		attempts int
	)
	cmd := &cobra.Command{
		Use:   "wait <job-id>",
		Short: "Poll a job until it is DONE or FAILED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				job, err := jobs.WaitForJob(cmd.Context(), func(ctx context.Context) (*types.JobRun, error) {
					return a.Repos.Jobs.GetByID(dbctx.Context{Ctx: ctx}, jobID)
				}, interval, attempts)
				if job != nil {
					if perr := printJobs([]*types.JobRun{job}); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().IntVar(&attempts, "attempts", 60, "max polls")
	return cmd
}
