package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/steveyegge/devpulse/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the audit trail of lifecycle transitions",
	Long: `Show audit events for the project: discovery sessions, miners, insight and
alert transitions, and dashboard refreshes. Events are printed oldest first.

Examples:
  devpulse events
  devpulse events --since 2h
  devpulse events --type alert_escalated
  devpulse events --entity 3f2a...           # One session, insight or alert`,
	Run: func(cmd *cobra.Command, args []string) {
		entity, _ := cmd.Flags().GetString("entity")
		eventType, _ := cmd.Flags().GetString("type")
		severity, _ := cmd.Flags().GetString("severity")
		since, _ := cmd.Flags().GetString("since")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := events.EventFilter{
			Project:  currentProject(),
			EntityID: entity,
			Type:     events.EventType(eventType),
			Severity: events.EventSeverity(severity),
			Limit:    limit,
		}
		if entity != "" {
			// Entity ids are globally unique; don't also require the project.
			filter.Project = ""
		}
		if since != "" {
			after, err := parseTimeArg(since, time.Now())
			if err != nil {
				exitUsage("invalid --since: %v", err)
			}
			filter.AfterTime = after
		}

		list, err := eng.Events(cmd.Context(), filter)
		if err != nil {
			exitOnError("failed to list events", err)
		}
		if len(list) == 0 {
			fmt.Printf("\n%s No events found\n\n", color.New(color.FgYellow).Sprint("✨"))
			return
		}

		sort.SliceStable(list, func(i, j int) bool {
			return list[i].Timestamp.Before(list[j].Timestamp)
		})
		for _, e := range list {
			displayEvent(e)
		}
	},
}

func init() {
	eventsCmd.Flags().String("entity", "", "Only events for this session, insight or alert id")
	eventsCmd.Flags().String("type", "", "Filter by event type")
	eventsCmd.Flags().String("severity", "", "Filter by severity (info, warning, error, critical)")
	eventsCmd.Flags().String("since", "", "Only events after this time (e.g. 2h, 7d, 2024-05-01)")
	eventsCmd.Flags().IntP("limit", "n", 50, "Maximum number of events to show")
	rootCmd.AddCommand(eventsCmd)
}
