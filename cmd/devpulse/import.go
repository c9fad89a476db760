package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/config"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Copy commit history into the local database",
	Long: `Copy commits, file changes and developer sessions from an activity source
into the local database so discovery can run without the source.

By default the git repository given by --repo is read. Use --source postgres
to read the activity database configured under activity.postgres instead.
Importing the same range twice replaces the rows already present.

Examples:
  devpulse import --repo .
  devpulse import --repo ~/src/api --project api --from 2024-01-01 --to 2024-06-30
  devpulse import --source postgres --from 90d`,
	Run: func(cmd *cobra.Command, args []string) {
		sourceKind, _ := cmd.Flags().GetString("source")
		repo, _ := cmd.Flags().GetString("repo")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")

		if repo == "" {
			repo = cfg.Activity.Repo
		}
		if sourceKind == config.SourceStore {
			fmt.Fprintf(os.Stderr, "Error: cannot import from the store into itself (use --source git or postgres)\n")
			closeEngine()
			os.Exit(1)
		}

		rng, err := parseRange(from, to, time.Now())
		if err != nil {
			exitOnError("invalid range", err)
		}

		ctx := cmd.Context()
		project := currentProject()
		source, err := openSource(ctx, sourceKind, repo, project)
		if err != nil {
			exitOnError("failed to open activity source", err)
		}
		defer source.Close()

		stats, err := eng.Import(ctx, source.Source, project, rng)
		if err != nil {
			source.Close()
			exitOnError("import failed", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s Imported activity for %s\n\n", green("✓"), cyan(project))
		fmt.Printf("  Range:        %s .. %s\n", rng.Start.Format("2006-01-02"), rng.End.Format("2006-01-02"))
		fmt.Printf("  Commits:      %d\n", stats.Commits)
		fmt.Printf("  File changes: %d\n", stats.FileChanges)
		fmt.Printf("  Sessions:     %d\n", stats.Sessions)
		if stats.Commits == 0 {
			fmt.Printf("\n%s\n", gray("No commits found in range."))
		}
		fmt.Println()
	},
}

func init() {
	importCmd.Flags().String("source", config.SourceGit, "Activity source to read (git or postgres)")
	importCmd.Flags().String("repo", "", "Path to the git repository (default: activity.repo from config)")
	importCmd.Flags().String("from", "90d", "Start of the range (YYYY-MM-DD, RFC3339 or offset like 90d)")
	importCmd.Flags().String("to", "tomorrow", "End of the range")
	rootCmd.AddCommand(importCmd)
}
