package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/types"
)

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "List synthesized insights",
	Long: `List the project's insights, highest priority first.

Examples:
  devpulse insights
  devpulse insights --risk high --status pending
  devpulse insights --type knowledge_silo -v`,
	Run: func(cmd *cobra.Command, args []string) {
		risk, _ := cmd.Flags().GetString("risk")
		status, _ := cmd.Flags().GetString("status")
		insightType, _ := cmd.Flags().GetString("type")
		sessionID, _ := cmd.Flags().GetString("session")
		limit, _ := cmd.Flags().GetInt("limit")
		verbose, _ := cmd.Flags().GetBool("verbose")

		if risk != "" && !types.RiskLevel(risk).IsValid() {
			exitUsage("invalid --risk %q", risk)
		}
		if status != "" && !types.ValidationStatus(status).IsValid() {
			exitUsage("invalid --status %q", status)
		}
		if insightType != "" && !types.InsightType(insightType).IsValid() {
			exitUsage("invalid --type %q", insightType)
		}

		list, err := eng.GetInsights(cmd.Context(), types.InsightFilter{
			Project:   currentProject(),
			SessionID: sessionID,
			RiskLevel: types.RiskLevel(risk),
			Status:    types.ValidationStatus(status),
			Type:      types.InsightType(insightType),
			Limit:     limit,
		})
		if err != nil {
			exitOnError("failed to list insights", err)
		}
		if len(list) == 0 {
			fmt.Printf("\n%s No insights found\n\n", color.New(color.FgYellow).Sprint("✨"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s (%d)\n\n", cyan("Insights"), len(list))
		now := time.Now()
		for _, in := range list {
			printInsight(in, verbose, now)
		}
	},
}

var insightCmd = &cobra.Command{
	Use:   "insight",
	Short: "Review an insight",
	Long: `Move an insight through its review lifecycle.

  pending → validated → implemented
  pending → rejected

Examples:
  devpulse insight validate 3f2a... --notes "confirmed with the team"
  devpulse insight reject 3f2a... --notes "generated code"
  devpulse insight implement 3f2a...`,
}

func newInsightTransitionCmd(use, short, verb string, apply func(ctx context.Context, id, notes string) (*types.Insight, error)) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <insight-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			notes, _ := cmd.Flags().GetString("notes")
			in, err := apply(cmd.Context(), args[0], notes)
			if err != nil {
				exitOnError("failed to "+use+" insight", err)
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Insight %s %s: %s\n", green("✓"), in.ID, verb, in.Title)
		},
	}
	c.Flags().String("notes", "", "Review notes")
	return c
}

func init() {
	insightsCmd.Flags().String("risk", "", "Filter by risk level (low, medium, high, critical)")
	insightsCmd.Flags().String("status", "", "Filter by status (pending, validated, rejected, implemented, outdated)")
	insightsCmd.Flags().String("type", "", "Filter by insight type")
	insightsCmd.Flags().String("session", "", "Only insights from this session")
	insightsCmd.Flags().IntP("limit", "n", 25, "Maximum number of insights to show")
	insightsCmd.Flags().BoolP("verbose", "v", false, "Show descriptions and recommendations")
	rootCmd.AddCommand(insightsCmd)

	insightCmd.AddCommand(
		newInsightTransitionCmd("validate", "Mark a pending insight as validated", "validated",
			func(ctx context.Context, id, notes string) (*types.Insight, error) {
				return eng.ValidateInsight(ctx, id, notes)
			}),
		newInsightTransitionCmd("reject", "Reject a pending insight", "rejected",
			func(ctx context.Context, id, notes string) (*types.Insight, error) {
				return eng.RejectInsight(ctx, id, notes)
			}),
		newInsightTransitionCmd("implement", "Mark a validated insight as implemented", "implemented",
			func(ctx context.Context, id, notes string) (*types.Insight, error) {
				return eng.ImplementInsight(ctx, id, notes)
			}),
	)
	rootCmd.AddCommand(insightCmd)
}

func printInsight(in *types.Insight, verbose bool, now time.Time) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("  P%d %s %s\n", in.Priority, riskColor(in.RiskLevel).Sprintf("%-8s", in.RiskLevel), bold(in.Title))
	meta := []string{
		string(in.Type),
		statusColor(string(in.Status)).Sprint(in.Status),
		"confidence " + formatPercent(in.Confidence),
		fmt.Sprintf("%d evidence", in.EvidenceCount),
	}
	if in.IsExpired(now) {
		meta = append(meta, "expired")
	} else if !in.ExpiresAt.IsZero() {
		meta = append(meta, "expires "+in.ExpiresAt.Format("2006-01-02"))
	}
	fmt.Printf("     %s\n", gray(in.ID+" | ")+strings.Join(meta, gray(" | ")))

	if verbose {
		if in.Description != "" {
			fmt.Printf("     %s\n", in.Description)
		}
		for _, r := range in.Recommendations {
			fmt.Printf("     %s %s\n", gray("→"), r)
		}
		if in.ReviewNotes != "" {
			fmt.Printf("     %s %s\n", gray("notes:"), in.ReviewNotes)
		}
	}
	fmt.Println()
}
