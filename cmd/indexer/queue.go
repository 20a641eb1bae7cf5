package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nftsync/internal/config"
)

func newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and control the job queues",
	}

	status := &cobra.Command{
		Use:   "status [queue...]",
		Short: "Show queue counters, all queues when none are named",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueues(cmd, func(ctx context.Context, a *app, cfg config.QueueAdminConfig, out *jsonlWriter) error {
				names := args
				if len(names) == 0 {
					names = a.queues.Queues()
				}
				for _, name := range names {
					st, err := a.queues.Status(ctx, name)
					if err != nil {
						return err
					}
					if err := out.Write(st); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	pause := &cobra.Command{
		Use:   "pause <queue>",
		Short: "Stop workers from claiming jobs of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueues(cmd, func(ctx context.Context, a *app, _ config.QueueAdminConfig, _ *jsonlWriter) error {
				return a.queues.Pause(ctx, args[0])
			})
		},
	}

	resume := &cobra.Command{
		Use:   "resume <queue>",
		Short: "Resume a paused queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueues(cmd, func(ctx context.Context, a *app, _ config.QueueAdminConfig, _ *jsonlWriter) error {
				return a.queues.Resume(ctx, args[0])
			})
		},
	}

	dead := &cobra.Command{
		Use:   "dead <queue>",
		Short: "List dead-lettered jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueues(cmd, func(ctx context.Context, a *app, cfg config.QueueAdminConfig, out *jsonlWriter) error {
				jobs, err := a.queues.DeadLetters(ctx, args[0], cfg.Limit)
				if err != nil {
					return err
				}
				for _, job := range jobs {
					if err := out.Write(job.Summary()); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	dead.Flags().Int("limit", 100, "maximum jobs to list")

	cmd.AddCommand(status, pause, resume, dead)
	return cmd
}

func withQueues(cmd *cobra.Command, fn func(ctx context.Context, a *app, cfg config.QueueAdminConfig, out *jsonlWriter) error) error {
	cfg, err := config.LoadQueueAdmin(configFile(cmd), cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.PGDSN == "" {
		return fmt.Errorf("queue commands need --pg-dsn")
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg.Config, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()
	if err := a.declareQueues(nil); err != nil {
		return err
	}

	out := newStdoutWriter()
	defer out.Close()
	return fn(ctx, a, cfg, out)
}
