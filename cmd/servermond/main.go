package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shih-Wei-Lin/Server-Monitor-System/config"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/app"
	"github.com/Shih-Wei-Lin/Server-Monitor-System/internal/backup"
)

// Exit codes: 0 success, 1 partial failure (some hosts unreachable or
// errored but the run completed), 2 fatal configuration/storage error.
const (
	exitOK      = 0
	exitPartial = 1
	exitFatal   = 2
)

var cfile string

func main() {
	rootCmd := &cobra.Command{
		Use:           "servermond",
		Short:         "Fleet resource monitor: SSH collection, retention, backup",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&cfile, "config", "c", "servermon.yml", "config file path")

	rootCmd.AddCommand(
		runSchedulerCmd(),
		checkConnectivityCmd(),
		compactCmd(),
		backupCmd(),
		initdbCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitFatal)
	}
}

// bootstrap loads config and initializes the application; any failure
// here is fatal by contract.
func bootstrap() *app.Application {
	cfg, err := config.LoadConfig(cfile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(exitFatal)
	}
	application := app.NewApplication(cfg)
	if err := application.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "startup error: %v\n", err)
		os.Exit(exitFatal)
	}
	return application
}

func runSchedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-scheduler",
		Short: "Start the collection tick loop (blocks until interrupted)",
		Run: func(cmd *cobra.Command, args []string) {
			application := bootstrap()
			defer application.Release()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			zap.L().Info("scheduler starting",
				zap.Duration("poll_interval", application.Config().Schedule.PollInterval.Std()),
				zap.Int("inventory", len(application.Config().Inventory)))
			if err := application.StartSchedulerService(ctx); err != nil {
				zap.L().Error("scheduler stopped with error", zap.Error(err))
				os.Exit(exitFatal)
			}
			zap.L().Info("scheduler stopped")
		},
	}
}

func checkConnectivityCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "check-connectivity",
		Short: "Probe every enabled host once and report reachability",
		Run: func(cmd *cobra.Command, args []string) {
			application := bootstrap()
			defer application.Release()

			statuses, unreachable, err := application.FleetService().ProbeAll(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "probe run failed: %v\n", err)
				os.Exit(exitFatal)
			}
			if asJSON {
				out, err := jsoniter.MarshalIndent(statuses, "", "  ")
				if err != nil {
					fmt.Fprintf(os.Stderr, "encode report: %v\n", err)
					os.Exit(exitFatal)
				}
				fmt.Println(string(out))
			} else {
				for _, status := range statuses {
					state := "reachable"
					if !status.Reachable {
						state = "UNREACHABLE (" + status.LastError + ")"
					}
					fmt.Printf("server %d: %s\n", status.ServerID, state)
				}
				fmt.Printf("%d/%d hosts reachable\n", len(statuses)-unreachable, len(statuses))
			}
			if unreachable > 0 {
				os.Exit(exitPartial)
			}
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	return cmd
}

func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Run one retention compaction pass",
		Run: func(cmd *cobra.Command, args []string) {
			application := bootstrap()
			defer application.Release()

			summary, err := application.Compactor().Run(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "compaction failed: %v\n", err)
				os.Exit(exitFatal)
			}
			fmt.Printf("compacted %d buckets (%d rows folded), %d failed\n",
				summary.Buckets, summary.FoldedRows, summary.Failed)
			if summary.Failed > 0 {
				os.Exit(exitPartial)
			}
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the store to the backup directory",
		Run: func(cmd *cobra.Command, args []string) {
			application := bootstrap()
			defer application.Release()

			snapshot, err := application.BackupService().Snapshot(context.Background())
			if err != nil {
				fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
				var storeErr *backup.StoreError
				if errors.As(err, &storeErr) {
					os.Exit(exitFatal)
				}
				os.Exit(exitPartial)
			}
			fmt.Printf("backup written: %s (%d bytes)\n", snapshot.Path, snapshot.SizeBytes)
		},
	}
}

func initdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Drop and recreate the schema, then reseed the inventory",
		Run: func(cmd *cobra.Command, args []string) {
			application := bootstrap()
			defer application.Release()

			if err := application.InitDb(); err != nil {
				fmt.Fprintf(os.Stderr, "initdb failed: %v\n", err)
				os.Exit(exitFatal)
			}
			fmt.Println("schema recreated")
		},
	}
}
