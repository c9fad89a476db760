package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/types"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts raised from recorded metrics",
	Long: `List the project's alerts, most severe first. By default only open
alerts (open, acknowledged, investigating) are shown.

Examples:
  devpulse alerts
  devpulse alerts --severity critical
  devpulse alerts --status resolved
  devpulse alerts ack 9c1d... --notes "on it"
  devpulse alerts resolve 9c1d... --method fixed --notes "cache warmed"`,
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		severity, _ := cmd.Flags().GetString("severity")
		limit, _ := cmd.Flags().GetInt("limit")

		if status != "" && !types.AlertStatus(status).IsValid() {
			exitUsage("invalid --status %q", status)
		}
		if severity != "" && !types.Severity(severity).IsValid() {
			exitUsage("invalid --severity %q", severity)
		}

		list, err := eng.GetAlerts(cmd.Context(), types.AlertFilter{
			Project:  currentProject(),
			Status:   types.AlertStatus(status),
			Severity: types.Severity(severity),
			OpenOnly: status == "",
			Limit:    limit,
		})
		if err != nil {
			exitOnError("failed to list alerts", err)
		}
		if len(list) == 0 {
			fmt.Printf("\n%s No alerts found\n\n", color.New(color.FgGreen).Sprint("✨"))
			return
		}

		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s (%d)\n\n", cyan("Alerts"), len(list))
		now := time.Now()
		for _, a := range list {
			printAlert(a, now)
		}
	},
}

func newAlertTransitionCmd(use, short, verb string, apply func(ctx context.Context, id string, cmd *cobra.Command) (*types.Alert, error)) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <alert-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			a, err := apply(cmd.Context(), args[0], cmd)
			if err != nil {
				exitOnError("failed to "+use+" alert", err)
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Printf("%s Alert %s %s (%s)\n", green("✓"), a.ID, verb, statusColor(string(a.Status)).Sprint(a.Status))
		},
	}
	c.Flags().String("notes", "", "Notes recorded with the transition")
	return c
}

var metricCmd = &cobra.Command{
	Use:   "metric",
	Short: "Record development metrics",
}

var metricRecordCmd = &cobra.Command{
	Use:   "record <type> <value>",
	Short: "Record a metric value and classify it",
	Long: `Record one metric observation. The value is ranked against the project's
other active metrics, compared with its baseline and checked against its
threshold. A significant change or a threshold breach opens an alert, or
merges into a matching open alert.

Examples:
  devpulse metric record build_time 412 --baseline 300 --unit s
  devpulse metric record churn 0.42 --scope file --scope-id api/handler.go --threshold 0.3
  devpulse metric record coverage 61 --threshold 70 --direction below`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		scope, _ := cmd.Flags().GetString("scope")
		scopeID, _ := cmd.Flags().GetString("scope-id")
		unit, _ := cmd.Flags().GetString("unit")
		direction, _ := cmd.Flags().GetString("direction")

		value, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			exitUsage("invalid value %q", args[1])
		}

		m := &types.Metric{
			Project:            currentProject(),
			Type:               args[0],
			Scope:              types.MetricScope(scope),
			ScopeID:            scopeID,
			Value:              value,
			Unit:               unit,
			ThresholdDirection: types.ThresholdDirection(direction),
		}
		if cmd.Flags().Changed("baseline") {
			b, _ := cmd.Flags().GetFloat64("baseline")
			m.Baseline = &b
		}
		if cmd.Flags().Changed("threshold") {
			t, _ := cmd.Flags().GetFloat64("threshold")
			m.Threshold = &t
		}

		c, err := eng.RecordMetric(cmd.Context(), m)
		if err != nil {
			exitOnError("failed to record metric", err)
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("%s Recorded %s = %g %s\n", green("✓"), m.Type, m.Value, unit)
		fmt.Printf("  %s\n", gray(fmt.Sprintf("percentile %s | change %+.1f%% | %s",
			formatPercent(c.PercentileRank), c.PercentChange, c.ChangeSignificance)))
		if c.AlertTriggered && c.Alert != nil {
			action := "opened"
			if c.Deduplicated {
				action = "merged into"
			}
			fmt.Printf("%s Alert %s %s (%s)\n", yellow("⚠"), action, c.Alert.ID,
				alertSeverityColor(c.Alert.Severity).Sprint(c.Alert.Severity))
		}
	},
}

func init() {
	alertsCmd.Flags().String("status", "", "Filter by status (default: open alerts only)")
	alertsCmd.Flags().String("severity", "", "Filter by severity (low, medium, high, critical)")
	alertsCmd.Flags().IntP("limit", "n", 50, "Maximum number of alerts to show")

	resolveCmd := newAlertTransitionCmd("resolve", "Resolve an acknowledged alert", "resolved",
		func(ctx context.Context, id string, cmd *cobra.Command) (*types.Alert, error) {
			method, _ := cmd.Flags().GetString("method")
			notes, _ := cmd.Flags().GetString("notes")
			return eng.ResolveAlert(ctx, id, method, notes)
		})
	resolveCmd.Flags().String("method", "fixed", "Resolution method (fixed, false_positive, suppressed, ...)")

	alertsCmd.AddCommand(
		newAlertTransitionCmd("ack", "Acknowledge an open alert", "acknowledged",
			func(ctx context.Context, id string, cmd *cobra.Command) (*types.Alert, error) {
				notes, _ := cmd.Flags().GetString("notes")
				return eng.AcknowledgeAlert(ctx, id, notes)
			}),
		newAlertTransitionCmd("investigate", "Start investigating an alert", "under investigation",
			func(ctx context.Context, id string, cmd *cobra.Command) (*types.Alert, error) {
				notes, _ := cmd.Flags().GetString("notes")
				return eng.InvestigateAlert(ctx, id, notes)
			}),
		resolveCmd,
	)
	rootCmd.AddCommand(alertsCmd)

	metricRecordCmd.Flags().String("scope", string(types.ScopeProject), "Scope (project, file, directory, developer, session)")
	metricRecordCmd.Flags().String("scope-id", "", "Scope identifier, required unless scope is project")
	metricRecordCmd.Flags().Float64("baseline", 0, "Baseline value for change detection")
	metricRecordCmd.Flags().Float64("threshold", 0, "Threshold value (overrides configured thresholds)")
	metricRecordCmd.Flags().String("direction", "", "Threshold direction (above or below)")
	metricRecordCmd.Flags().String("unit", "", "Unit of the value")
	metricCmd.AddCommand(metricRecordCmd)
	rootCmd.AddCommand(metricCmd)
}

func printAlert(a *types.Alert, now time.Time) {
	gray := color.New(color.FgHiBlack).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Printf("  %s %s\n", alertSeverityColor(a.Severity).Sprintf("%-8s", a.Severity), bold(a.Title))
	meta := []string{
		string(a.Type),
		statusColor(string(a.Status)).Sprint(a.Status),
		fmt.Sprintf("value %g", a.TriggerValue),
	}
	if a.EscalationLevel > 0 {
		meta = append(meta, fmt.Sprintf("escalated x%d", a.EscalationLevel))
	}
	if a.SimilarAlertCount > 0 {
		meta = append(meta, fmt.Sprintf("%d repeats", a.SimilarAlertCount))
	}
	meta = append(meta, "seen "+formatAge(a.LastSeenAt, now))
	fmt.Printf("           %s\n", gray(a.ID+" | ")+strings.Join(meta, gray(" | ")))
	if a.Message != "" {
		fmt.Printf("           %s\n", gray(truncateString(a.Message, 100)))
	}
	fmt.Println()
}
