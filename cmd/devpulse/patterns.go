package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/engine"
	"github.com/steveyegge/devpulse/internal/types"
)

var patternsCmd = &cobra.Command{
	Use:   "patterns <family>",
	Short: "List discovered patterns of one family",
	Long: `List the patterns of one family from the project's latest completed
discovery session, or from --session.

Families: cooccurrence, temporal, developer, change_magnitude

Examples:
  devpulse patterns cooccurrence --min-strength strong
  devpulse patterns change_magnitude --risk high
  devpulse patterns developer --limit 10`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		sessionID, _ := cmd.Flags().GetString("session")
		minStrength, _ := cmd.Flags().GetString("min-strength")
		risk, _ := cmd.Flags().GetString("risk")
		file, _ := cmd.Flags().GetString("file")
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")

		family := types.PatternFamily(strings.ReplaceAll(args[0], "-", "_"))
		if minStrength != "" && !types.PatternStrength(minStrength).IsValid() {
			exitUsage("invalid --min-strength %q", minStrength)
		}
		if risk != "" && !types.RiskLevel(risk).IsValid() {
			exitUsage("invalid --risk %q", risk)
		}
		filter := types.PatternFilter{
			Project:     currentProject(),
			SessionID:   sessionID,
			ActiveOnly:  !all,
			MinStrength: types.PatternStrength(minStrength),
			RiskLevel:   types.RiskLevel(risk),
			FilePath:    file,
			Limit:       limit,
		}

		patterns, err := eng.GetPatterns(cmd.Context(), family, filter)
		if err != nil {
			exitOnError("failed to list patterns", err)
		}
		if patterns.Len() == 0 {
			fmt.Printf("\n%s No %s patterns found\n\n", color.New(color.FgYellow).Sprint("✨"), family)
			return
		}
		printPatterns(patterns)
	},
}

func init() {
	patternsCmd.Flags().String("session", "", "Session id (default: latest completed session)")
	patternsCmd.Flags().String("min-strength", "", "Minimum strength (weak, moderate, strong, very_strong)")
	patternsCmd.Flags().String("risk", "", "Risk level for change_magnitude (low, medium, high, critical)")
	patternsCmd.Flags().String("file", "", "Only patterns touching this file")
	patternsCmd.Flags().IntP("limit", "n", 50, "Maximum number of patterns to show")
	patternsCmd.Flags().Bool("all", false, "Include inactive patterns")
	rootCmd.AddCommand(patternsCmd)
}

func printPatterns(p *engine.Patterns) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Printf("\n%s (%d)\n\n", cyan(string(p.Family)+" patterns"), p.Len())

	for _, c := range p.Cooccurrence {
		arrow := "→"
		if c.Bidirectional {
			arrow = "↔"
		}
		fmt.Printf("  %s %s %s\n", c.Path1, arrow, c.Path2)
		fmt.Printf("    %s  %s\n", strengthColor(c.Strength).Sprint(c.Strength),
			gray(fmt.Sprintf("together %d | support %.3f | conf %s/%s | lift %.2f",
				c.CooccurrenceCount, c.Support, formatPercent(c.Confidence1To2),
				formatPercent(c.Confidence2To1), c.Lift)))
	}

	for _, t := range p.Temporal {
		fmt.Printf("  %-9s %s  %s\n", t.PatternType, strengthColor(t.Strength).Sprint(t.Strength),
			gray(fmt.Sprintf("chi2 %.1f (df %d) | p %.4f | %s | peaks %v",
				t.ChiSquare, t.DegreesOfFreedom, t.PValue, t.Stability, t.PeakBuckets)))
	}

	for _, d := range p.Developer {
		fmt.Printf("  %-24s %s\n", truncateString(d.DisplayName, 24),
			siloColor(types.SiloGrade(d.KnowledgeSiloRisk)).Sprint("silo "+types.SiloGrade(d.KnowledgeSiloRisk)))
		fmt.Printf("    %s\n", gray(fmt.Sprintf("%d commits | %d files (%d exclusive) | specialization %s | collaboration %s | %s",
			d.CommitCount, d.UniqueFiles, d.ExclusiveFiles, formatPercent(d.SpecializationScore),
			formatPercent(d.CollaborationScore), d.WorkSchedule)))
	}

	for _, f := range p.ChangeMagnitude {
		fmt.Printf("  %-48s %s\n", truncateString(f.FilePath, 48), riskColor(f.RiskLevel).Sprint(f.RiskLevel))
		fmt.Printf("    %s\n", gray(fmt.Sprintf("%d changes | hotspot %s | volatility %s | debt %s | %s",
			f.ChangeCount, formatPercent(f.HotspotScore), formatPercent(f.VolatilityScore),
			formatPercent(f.TechnicalDebt), f.Trend)))
	}
	fmt.Println()
}

func siloColor(grade string) *color.Color {
	switch grade {
	case "A", "B":
		return color.New(color.FgGreen)
	case "C":
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}
