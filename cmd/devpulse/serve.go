package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/storage"
	"github.com/steveyegge/devpulse/internal/telemetry"
)

// version is reported in the scheduler lock file.
const version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled jobs and expose metrics",
	Long: `Run the maintenance jobs on their configured intervals until interrupted:

  - dashboard_refresh   rebuild every project's rollup
  - insight_sweep       mark expired insights outdated
  - alert_escalation    escalate open alerts past their acknowledgement SLA
  - event_cleanup       delete audit events past the retention period
  - stale_sessions      fail discovery sessions that stopped making progress

Prometheus metrics are served on server.metrics_addr at /metrics. Only one
serve process may run against a database at a time.

Examples:
  devpulse serve
  devpulse serve --metrics-addr :9464`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("metrics-addr")
		if addr == "" {
			addr = cfg.Server.MetricsAddr
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()

		lockPath, err := storage.AcquireExclusiveLock(cfg.Database.Path, version)
		if err != nil {
			if errors.Is(err, storage.ErrLocked) {
				exitOnError("cannot start", err)
			}
			// Databases outside .devpulse/ (e.g. --db /tmp/x.db) run unlocked.
			fmt.Fprintf(os.Stderr, "%s Running without scheduler lock: %v\n", yellow("⚠"), err)
		}
		defer func() {
			if err := storage.ReleaseExclusiveLock(lockPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to release scheduler lock: %v\n", err)
			}
		}()

		// Set up context with cancellation
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Handle signals for graceful shutdown
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		sched := eng.Scheduler()
		if err := sched.Start(ctx); err != nil {
			_ = storage.ReleaseExclusiveLock(lockPath)
			exitOnError("failed to start scheduler", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok\n"))
		})
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		srvErr := make(chan error, 1)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				srvErr <- err
			}
		}()

		fmt.Printf("%s Scheduler started (version %s)\n", green("✓"), cyan(version))
		for _, job := range sched.Jobs() {
			fmt.Printf("  %-18s every %v\n", job.Name, job.Every)
		}
		fmt.Printf("  Metrics: %s\n", cyan("http://"+addr+"/metrics"))
		fmt.Printf("  Press Ctrl+C to stop\n\n")

		// Wait for shutdown signal or a server failure
		select {
		case <-sigCh:
			fmt.Println("\n\nShutting down...")
		case err := <-srvErr:
			fmt.Fprintf(os.Stderr, "Error: metrics server failed: %v\n", err)
		}

		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error during shutdown: %v\n", err)
		}
		sched.Stop()

		fmt.Printf("%s Scheduler stopped\n", green("✓"))
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run every maintenance job once",
	Long: `Run the jobs of 'devpulse serve' once, in order, and exit. Useful from cron
when a long-running serve process is not wanted.`,
	Run: func(cmd *cobra.Command, args []string) {
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		start := time.Now()
		if err := eng.Sweep(cmd.Context()); err != nil {
			exitOnError("sweep finished with errors", err)
		}
		fmt.Printf("%s Sweep complete %s\n", green("✓"), gray(time.Since(start).Round(time.Millisecond).String()))
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", "", "Address for the metrics endpoint (default: server.metrics_addr)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sweepCmd)
}
