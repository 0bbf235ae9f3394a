// Command station is the scanning-station client: it records marks
// against the attendance server, queues them locally when offline, and
// drains the queue once connectivity returns.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"flock/internal/offline"
	"flock/internal/platform/logger"
	"flock/internal/station"
	"flock/internal/sync"
	id "flock/pkg/domain"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "station",
		Short:         "Attendance scanning station client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "station.yaml", "path to station config file")

	root.AddCommand(newMarkCmd(&configPath))
	root.AddCommand(newSyncCmd(&configPath))
	root.AddCommand(newStatusCmd(&configPath))
	return root
}

// env bundles the station runtime a command needs.
type env struct {
	cfg    *station.Config
	queue  *offline.SQLiteQueue
	client *station.Client
}

func setup(configPath string) (*env, error) {
	cfg, err := station.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	queue, err := offline.OpenSQLite(cfg.QueuePath)
	if err != nil {
		return nil, err
	}
	return &env{
		cfg:    cfg,
		queue:  queue,
		client: station.NewClient(cfg.ServerURL, cfg.ParsedStationID(), nil),
	}, nil
}

func newMarkCmd(configPath *string) *cobra.Command {
	var (
		rawToken   string
		status     string
		firstTimer bool
	)

	cmd := &cobra.Command{
		Use:   "mark",
		Short: "Record one attendance mark (queues locally if offline)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.queue.Close()

			parsedStatus, err := id.ParseAttendanceStatus(status)
			if err != nil {
				return err
			}

			ctrl, err := station.NewController(e.cfg, e.client, e.queue, logger.New())
			if err != nil {
				return err
			}

			outcome, err := ctrl.Scan(cmd.Context(), rawToken, parsedStatus, firstTimer)
			if err != nil {
				return err
			}
			if outcome.Queued {
				fmt.Printf("offline: mark queued locally (local id %d)\n", outcome.LocalID)
				return nil
			}
			fmt.Printf("recorded: %s is %s (%d present of %d)\n",
				outcome.Result.DisplayName, outcome.Result.Status,
				outcome.Result.Summary.Present, outcome.Result.Summary.Total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&rawToken, "token", "t", "", "scanned check-in token")
	cmd.Flags().StringVarP(&status, "status", "s", "present", "attendance status (present, absent, excused)")
	cmd.Flags().BoolVar(&firstTimer, "first-timer", false, "flag the member as a first-time visitor")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newSyncCmd(configPath *string) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the offline queue against the server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.queue.Close()

			operator := station.NewRemoteOperatorStore(e.cfg.ServerURL, nil)
			engine, err := sync.NewEngine(e.queue, e.client, operator, logger.New(),
				sync.WithBatchSize(e.cfg.BatchSize),
				sync.WithInterval(e.cfg.SyncInterval),
			)
			if err != nil {
				return err
			}

			if watch {
				engine.NotifyOnline()
				err := engine.Run(cmd.Context())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			stats, err := engine.Sweep(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("sync: %d acknowledged, %d requeued, %d parked\n",
				stats.Acked, stats.Requeued, stats.Parked)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep syncing on the configured interval")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the offline queue backlog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(*configPath)
			if err != nil {
				return err
			}
			defer e.queue.Close()

			ctrl, err := station.NewController(e.cfg, e.client, e.queue, logger.New())
			if err != nil {
				return err
			}
			status, err := ctrl.Status(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("queued: %d\n", status.Queued)
			if len(status.Rejected) > 0 {
				fmt.Printf("rejected (manual reconciliation needed):\n")
				for _, mark := range status.Rejected {
					fmt.Printf("  #%d member=%s reason=%s at=%s\n",
						mark.LocalID, mark.MemberID.String(), mark.LastError,
						mark.ClientTimestamp.Format(time.RFC3339))
				}
			}
			return nil
		},
	}
}
