package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/steveyegge/devpulse/internal/events"
)

// displayEvent formats and prints a single event with consistent two-line format
func displayEvent(event *events.Event) {
	emoji := getEventEmoji(event)
	severityColor := getSeverityColor(event.Severity)

	timestamp := event.Timestamp.Format("01-02 15:04:05")

	entityColor := color.New(color.FgGreen)
	entityID := entityColor.Sprint(shortID(event.EntityID))

	typeColor := color.New(color.FgMagenta)
	eventType := typeColor.Sprint(event.Type)

	// Line 1: emoji + [timestamp] + entity + event_type: message
	maxMessageLen := 60 - len(shortID(event.EntityID)) - len(string(event.Type))
	message := truncateString(event.Message, maxMessageLen)

	fmt.Printf("%s [%s] %s %s: %s\n",
		emoji,
		timestamp,
		entityID,
		eventType,
		severityColor.Sprint(message),
	)

	// Line 2: metadata fields, pipe-separated
	metadata := extractEventMetadata(event)
	if len(metadata) > 0 {
		gray := color.New(color.FgHiBlack)
		fmt.Printf("  %s\n", gray.Sprint(metadata))
	} else {
		fmt.Println()
	}
}

// getEventEmoji returns the appropriate emoji for each event type
func getEventEmoji(event *events.Event) string {
	switch event.Type {
	case events.EventTypeSessionStarted, events.EventTypeSessionRefreshing:
		return "🔍"
	case events.EventTypeSessionCompleted:
		return "✅"
	case events.EventTypeSessionFailed, events.EventTypeMinerFailed:
		return "❌"
	case events.EventTypeSessionOutdated, events.EventTypeSessionArchived:
		return "📦"
	case events.EventTypeMinerCompleted:
		return "⛏️"
	case events.EventTypeInsightCreated:
		return "💡"
	case events.EventTypeInsightTransition:
		return "📝"
	case events.EventTypeInsightExpired:
		return "⌛"
	case events.EventTypeAlertCreated:
		return "🚨"
	case events.EventTypeAlertDeduplicated:
		return "🔀"
	case events.EventTypeAlertEscalated:
		return "🔥"
	case events.EventTypeAlertTransition:
		return "🎯"
	case events.EventTypeDashboardRefreshed:
		return "📊"
	}

	switch event.Severity {
	case events.SeverityInfo:
		return "ℹ️"
	case events.SeverityWarning:
		return "⚠️"
	case events.SeverityError:
		return "❌"
	case events.SeverityCritical:
		return "🔥"
	default:
		return "•"
	}
}

// getSeverityColor returns the appropriate color for a severity level
func getSeverityColor(severity events.EventSeverity) *color.Color {
	switch severity {
	case events.SeverityInfo:
		return color.New(color.FgCyan)
	case events.SeverityWarning:
		return color.New(color.FgYellow)
	case events.SeverityError:
		return color.New(color.FgRed)
	case events.SeverityCritical:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// extractEventMetadata extracts the key data fields of an event as a
// pipe-separated string, truncated to fit an 80 column terminal.
func extractEventMetadata(event *events.Event) string {
	var fields []string

	switch event.Type {
	case events.EventTypeMinerCompleted, events.EventTypeMinerFailed:
		// miner: name | patterns | duration | error
		miner := getStringField(event.Data, "miner", "unknown")
		patterns := fmt.Sprintf("%d patterns", getIntField(event.Data, "patterns", 0))
		duration := formatDurationMs(getIntField(event.Data, "duration_ms", 0))
		fields = []string{miner, patterns, duration, truncateString(getStringField(event.Data, "error", ""), 30)}

	case events.EventTypeSessionCompleted, events.EventTypeSessionFailed, events.EventTypeSessionOutdated,
		events.EventTypeSessionRefreshing, events.EventTypeInsightTransition, events.EventTypeInsightExpired,
		events.EventTypeAlertTransition:
		// transition: from → to | reason
		from := getStringField(event.Data, "from", "")
		to := getStringField(event.Data, "to", "")
		if from != "" || to != "" {
			fields = append(fields, from+" → "+to)
		}
		fields = append(fields, truncateString(getStringField(event.Data, "reason", ""), 40))

	case events.EventTypeAlertCreated, events.EventTypeAlertDeduplicated, events.EventTypeAlertEscalated:
		// alert: metric | severity | value | repeats | level
		metric := getStringField(event.Data, "metric_type", "unknown")
		if scope := getStringField(event.Data, "scope_identifier", ""); scope != "" {
			metric += "@" + truncateString(scope, 20)
		}
		severity := getStringField(event.Data, "severity", "unknown")
		value := fmt.Sprintf("value %g", getFloatField(event.Data, "trigger_value", 0))
		fields = []string{metric, severity, value}
		if n := getIntField(event.Data, "similar_alert_count", 0); n > 0 {
			fields = append(fields, fmt.Sprintf("%d repeats", n))
		}
		if lvl := getIntField(event.Data, "escalation_level", 0); lvl > 0 {
			fields = append(fields, fmt.Sprintf("level %d", lvl))
		}

	default:
		if err, ok := event.Data["error"].(string); ok {
			fields = append(fields, truncateString(err, 50))
		}
		if duration := getIntField(event.Data, "duration_ms", 0); duration > 0 {
			fields = append(fields, formatDurationMs(duration))
		}
	}

	if len(fields) == 0 {
		return ""
	}
	return truncateString(joinFields(fields), 70)
}

// Helper functions to safely extract typed fields from event data
func getStringField(data map[string]interface{}, key, defaultValue string) string {
	if val, ok := data[key].(string); ok {
		return val
	}
	return defaultValue
}

func getIntField(data map[string]interface{}, key string, defaultValue int) int {
	if val, ok := data[key].(int); ok {
		return val
	}
	if val, ok := data[key].(float64); ok {
		return int(val)
	}
	return defaultValue
}

func getFloatField(data map[string]interface{}, key string, defaultValue float64) float64 {
	if val, ok := data[key].(float64); ok {
		return val
	}
	if val, ok := data[key].(int); ok {
		return float64(val)
	}
	return defaultValue
}

// formatDurationMs formats milliseconds into a human-readable duration
func formatDurationMs(ms int) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	return fmt.Sprintf("%.1fm", float64(ms)/60000)
}

// joinFields joins the non-empty fields with " | "
func joinFields(fields []string) string {
	nonEmpty := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			nonEmpty = append(nonEmpty, f)
		}
	}
	return strings.Join(nonEmpty, " | ")
}

// shortID keeps the first uuid group, enough to tell entities apart in a feed.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i >= 8 {
		return id[:i]
	}
	return truncateString(id, 12)
}
