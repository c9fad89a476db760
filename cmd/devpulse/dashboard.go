package main

import (
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/types"
)

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Show the project's dashboard rollup",
	Long: `Show the precomputed dashboard rollup for the project: pattern counts,
file risk and knowledge silo distributions, insight and alert summaries,
technical debt and the ranked backlog.

The rollup is computed on first use and refreshed by 'devpulse serve'.
--refresh recomputes it now (rate limited per project).

Examples:
  devpulse dashboard
  devpulse dashboard --refresh`,
	Run: func(cmd *cobra.Command, args []string) {
		refresh, _ := cmd.Flags().GetBool("refresh")

		project := currentProject()
		rollup, err := eng.GetDashboard(cmd.Context(), project, refresh)
		if err != nil {
			exitOnError("failed to load dashboard", err)
		}
		printDashboard(rollup)
	},
}

func init() {
	dashboardCmd.Flags().Bool("refresh", false, "Recompute the rollup before showing it")
	rootCmd.AddCommand(dashboardCmd)
}

func printDashboard(r *types.DashboardRollup) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("\n%s %s\n", bold("Dashboard"), cyan(r.Project))
	fmt.Printf("  %s\n", gray("generated "+r.GeneratedAt.Format("2006-01-02 15:04:05 MST")))
	if r.HoursSinceLastAnalysis == nil {
		fmt.Printf("  %s No completed analysis yet (run 'devpulse discover')\n", yellow("⚠"))
	} else {
		fmt.Printf("  Last analysis: %s\n", cyan(fmt.Sprintf("%.1fh ago", *r.HoursSinceLastAnalysis)))
	}

	fmt.Printf("\n  %s\n", bold("Patterns"))
	for _, f := range types.AllFamilies() {
		fmt.Printf("    %-18s %d\n", f, r.PatternCounts[f])
	}

	fmt.Printf("\n  %s\n", bold("Files by risk"))
	printRiskCounts(r.FilesByRisk)

	fmt.Printf("\n  %s\n", bold("Developers by silo grade"))
	grades := make([]string, 0, len(r.DevelopersBySiloGrade))
	for g := range r.DevelopersBySiloGrade {
		grades = append(grades, g)
	}
	sort.Strings(grades)
	if len(grades) == 0 {
		fmt.Printf("    %s\n", gray("none"))
	}
	for _, g := range grades {
		fmt.Printf("    %s %d\n", siloColor(g).Sprint(g), r.DevelopersBySiloGrade[g])
	}

	fmt.Printf("\n  %s\n", bold("Insights by risk"))
	printRiskCounts(r.InsightsByRisk)

	fmt.Printf("\n  %s\n", bold("Insights by status"))
	for _, s := range []types.ValidationStatus{
		types.ValidationPending, types.ValidationValidated, types.ValidationImplemented,
		types.ValidationRejected, types.ValidationOutdated,
	} {
		fmt.Printf("    %-12s %d\n", statusColor(string(s)).Sprint(s), r.InsightsByStatus[s])
	}

	fmt.Printf("\n  %s\n", bold("Active alerts"))
	for _, s := range types.AllSeverities() {
		fmt.Printf("    %-10s %d\n", alertSeverityColor(s).Sprint(s), r.ActiveAlertsBySeverity[s])
	}

	fmt.Printf("\n  %s\n", bold("Technical debt"))
	fmt.Printf("    total %.2f | average %.2f | high-debt files %d | refactoring opportunities %d\n",
		r.TechnicalDebtTotal, r.TechnicalDebtAverage, r.HighDebtFiles, r.RefactoringOpportunities)

	fmt.Printf("\n  %s\n", bold("Backlog"))
	if len(r.Backlog) == 0 {
		fmt.Printf("    %s\n", gray("empty"))
	}
	for i, item := range r.Backlog {
		fmt.Printf("    %2d. P%d %-7s %s %s\n", i+1, item.Priority, item.Kind,
			truncateString(item.Title, 60), gray(fmt.Sprintf("(%.2f)", item.Score)))
	}
	fmt.Println()
}

func printRiskCounts(counts map[types.RiskLevel]int) {
	for _, r := range types.AllRiskLevels() {
		fmt.Printf("    %-10s %d\n", riskColor(r).Sprint(r), counts[r])
	}
}
