package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/discovery"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Mine patterns and synthesize insights for a commit range",
	Long: `Run a discovery session over the project's commits in [--from, --to].

The enabled miners (co-occurrence, temporal, developer, change magnitude)
run in parallel and their patterns are turned into insights. A session that
already exists for the same range and algorithm version is reused unless
--refresh is given, in which case it is re-mined in place.

Activity is read from the source named by activity.source in the config
(store, git or postgres).

Examples:
  devpulse discover --from 90d
  devpulse discover --from 2024-01-01 --to 2024-04-01 --refresh
  devpulse discover --list                 # Show the available miners`,
	Annotations: map[string]string{annotationSource: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		refresh, _ := cmd.Flags().GetBool("refresh")
		list, _ := cmd.Flags().GetBool("list")

		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		if list {
			registry, err := discovery.DefaultRegistry(eng.Store(), cfg.DiscoveryConfig(), logger)
			if err != nil {
				exitOnError("failed to build miner registry", err)
			}
			fmt.Printf("\n%s\n\n", cyan("Available miners:"))
			for _, name := range registry.List() {
				miner, _ := registry.Get(name)
				fmt.Printf("  %-20s %s\n", name, gray(string(miner.Family())))
			}
			fmt.Println()
			return
		}

		rng, err := parseRange(from, to, time.Now())
		if err != nil {
			exitOnError("invalid range", err)
		}
		project := currentProject()

		mode := ""
		if refresh {
			mode = " (refresh)"
		}
		fmt.Printf("%s Discovering %s %s .. %s%s\n", gray("→"), cyan(project),
			rng.Start.Format("2006-01-02"), rng.End.Format("2006-01-02"), mode)

		result, err := eng.RunDiscovery(cmd.Context(), project, rng.Start, rng.End, refresh)
		if err != nil {
			if result != nil && result.Session != nil {
				fmt.Fprintf(os.Stderr, "%s Session %s failed\n", red("✗"), result.Session.ID)
			}
			exitOnError("discovery failed", err)
		}

		sess := result.Session
		if result.Reused {
			fmt.Printf("\n%s Reused session %s (%s)\n", green("✓"), cyan(sess.ID), statusColor(string(sess.Status)).Sprint(sess.Status))
			fmt.Printf("  %s\n\n", gray("Use --refresh to re-mine this range."))
			return
		}

		fmt.Printf("\n%s Discovery complete!\n\n", green("✓"))
		fmt.Printf("  Session: %s\n", cyan(sess.ID))
		fmt.Printf("  Commits analyzed: %s\n", cyan(fmt.Sprintf("%d", sess.CommitsAnalyzed)))
		fmt.Printf("  Patterns discovered: %s\n", cyan(fmt.Sprintf("%d", sess.PatternsDiscovered)))
		fmt.Printf("  Insights produced: %s\n", cyan(fmt.Sprintf("%d", result.InsightsProduced)))
		fmt.Printf("  Duration: %s\n", cyan(sess.TotalDuration.Round(time.Millisecond).String()))
		if len(result.Superseded) > 0 {
			fmt.Printf("  Superseded sessions: %s\n", gray(fmt.Sprintf("%d", len(result.Superseded))))
		}

		if len(result.Miners) > 0 {
			fmt.Printf("\n  %s\n", cyan("Miners:"))
			for _, m := range result.Miners {
				if m.Err != nil {
					fmt.Printf("    %s %-18s %s\n", yellow("⚠"), m.Miner, gray(m.Err.Error()))
					continue
				}
				fmt.Printf("    %s %-18s %4d patterns  %s\n", green("✓"), m.Miner, m.PatternsWritten,
					gray(m.Duration.Round(time.Millisecond).String()))
			}
		}

		fmt.Printf("\n%s Next steps:\n", gray("→"))
		fmt.Printf("  %s\n", gray("devpulse insights            # Review the new insights"))
		fmt.Printf("  %s\n", gray("devpulse patterns cooccurrence"))
		fmt.Println()
	},
}

func init() {
	discoverCmd.Flags().String("from", "30d", "Start of the range (YYYY-MM-DD, RFC3339 or offset like 30d)")
	discoverCmd.Flags().String("to", "tomorrow", "End of the range")
	discoverCmd.Flags().Bool("refresh", false, "Re-mine an existing session for the same range")
	discoverCmd.Flags().Bool("list", false, "List available miners and exit")
	rootCmd.AddCommand(discoverCmd)
}
