package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/config"
	"github.com/steveyegge/devpulse/internal/engine"
	"github.com/steveyegge/devpulse/internal/logging"
	"github.com/steveyegge/devpulse/internal/storage"
)

// Command annotations read by the root pre-run hook.
const (
	// annotationNoStore marks commands that run without opening the database.
	annotationNoStore = "devpulse/no-store"
	// annotationSource marks commands that read activity through the
	// configured source instead of the imported copy in the store.
	annotationSource = "devpulse/source"
)

var (
	configPath  string
	dbPathFlag  string
	projectFlag string

	cfg          *config.Config
	logger       *slog.Logger
	logCloser    io.Closer
	eng          *engine.Engine
	sourceCloser func()
)

var rootCmd = &cobra.Command{
	Use:   "devpulse",
	Short: "Mine development activity for patterns, insights and alerts",
	Long: `devpulse analyses a project's commit history to discover co-change,
temporal, developer and change-magnitude patterns, turns them into reviewable
insights, classifies recorded metrics into alerts and keeps a dashboard rollup
per project.

Configuration is read from .devpulse/config.yaml (see 'devpulse init') and
DEVPULSE_* environment variables. A .env file in the working directory is
loaded first when present.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Load .env file (optional - won't error if missing)
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if dbPathFlag != "" {
			cfg.Database.Path = dbPathFlag
		}

		logger, logCloser, err = logging.New(&cfg.Logging, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		slog.SetDefault(logger)

		if !needsStore(cmd) {
			return
		}
		if err := openEngine(cmd.Context(), cmd.Annotations[annotationSource] == "true"); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		closeEngine()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath, "Path to the config file")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "Path to the database (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&projectFlag, "project", "p", "", "Project name (default: $DEVPULSE_PROJECT or the current directory name)")
}

// needsStore reports whether cmd works against the database. Help and
// shell completion never do.
func needsStore(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationNoStore] == "true" {
			return false
		}
		switch c.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

// openEngine opens the store and wires the engine. withSource reads
// discovery activity from the configured source; otherwise discovery reads
// the activity imported into the store.
func openEngine(ctx context.Context, withSource bool) error {
	if cfg.Database.Path == storage.DefaultPath {
		path, err := storage.DiscoverDatabase()
		if err != nil {
			return err
		}
		cfg.Database.Path = path
	}

	store, err := storage.NewStorage(ctx, cfg.StorageConfig())
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	source := &activitySource{Close: func() {}}
	if withSource {
		source, err = openSource(ctx, cfg.Activity.Source, cfg.Activity.Repo, currentProject())
		if err != nil {
			_ = store.Close()
			return err
		}
	}

	eng, err = engine.New(store, engine.Options{
		Source:    source.Source,
		Discovery: cfg.DiscoveryConfig(),
		Insights:  cfg.InsightsConfig(),
		Alerting:  cfg.AlertingConfig(),
		Dashboard: cfg.DashboardConfig(),
		Scheduler: cfg.SchedulerConfig(),
		Logger:    logger,
	})
	if err != nil {
		source.Close()
		_ = store.Close()
		return err
	}
	sourceCloser = source.Close
	return nil
}

func closeEngine() {
	if sourceCloser != nil {
		sourceCloser()
		sourceCloser = nil
	}
	if eng != nil {
		if err := eng.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
		}
		eng = nil
	}
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

// currentProject resolves the project name: --project, then
// DEVPULSE_PROJECT, then the name of the working directory.
func currentProject() string {
	if projectFlag != "" {
		return projectFlag
	}
	if p := os.Getenv("DEVPULSE_PROJECT"); p != "" {
		return p
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "default"
	}
	return filepath.Base(cwd)
}

// exitOnError prints err and exits. The engine is closed first so the
// database is left in a clean state.
func exitOnError(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	closeEngine()
	os.Exit(1)
}

// exitUsage reports a bad flag value and exits.
func exitUsage(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", a...)
	closeEngine()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
