package events

import (
	"context"
	"time"
)

// EventType represents the kind of lifecycle transition that was audited.
type EventType string

const (
	// Discovery session events
	EventTypeSessionStarted    EventType = "session_started"
	EventTypeSessionCompleted  EventType = "session_completed"
	EventTypeSessionFailed     EventType = "session_failed"
	EventTypeSessionOutdated   EventType = "session_outdated"
	EventTypeSessionRefreshing EventType = "session_refreshing"
	EventTypeSessionArchived   EventType = "session_archived"
	EventTypeMinerCompleted    EventType = "miner_completed"
	EventTypeMinerFailed       EventType = "miner_failed"

	// Insight events
	EventTypeInsightCreated    EventType = "insight_created"
	EventTypeInsightTransition EventType = "insight_transition"
	EventTypeInsightExpired    EventType = "insight_expired"

	// Alert events
	EventTypeAlertCreated      EventType = "alert_created"
	EventTypeAlertDeduplicated EventType = "alert_deduplicated"
	EventTypeAlertEscalated    EventType = "alert_escalated"
	EventTypeAlertTransition   EventType = "alert_transition"

	// Dashboard events
	EventTypeDashboardRefreshed EventType = "dashboard_refreshed"
)

// EventSeverity represents the severity level of an event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// Event is an audit record of a lifecycle transition.
type Event struct {
	ID        int64                  `json:"id"`
	Type      EventType              `json:"type"`
	Project   string                 `json:"project"`
	EntityID  string                 `json:"entity_id"`
	Severity  EventSeverity          `json:"severity"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// TransitionData describes a state change of a session, insight or alert.
type TransitionData struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}

// MinerData describes a single miner's outcome inside a session.
type MinerData struct {
	Miner      string `json:"miner"`
	Patterns   int    `json:"patterns"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// AlertData describes alert creation, dedup and escalation.
type AlertData struct {
	AlertType         string  `json:"alert_type"`
	MetricType        string  `json:"metric_type"`
	ScopeID           string  `json:"scope_identifier"`
	Severity          string  `json:"severity"`
	TriggerValue      float64 `json:"trigger_value"`
	SimilarAlertCount int     `json:"similar_alert_count"`
	EscalationLevel   int     `json:"escalation_level"`
}

// EventFilter is used to filter event queries
type EventFilter struct {
	// Project filters events by project
	Project string
	// EntityID filters events by session, insight or alert id
	EntityID string
	// Type filters events by event type
	Type EventType
	// Severity filters events by severity level
	Severity EventSeverity
	// AfterTime filters events that occurred after this time
	AfterTime time.Time
	// Limit limits the number of events returned
	Limit int
}

// Recorder persists audit events.
type Recorder interface {
	RecordEvent(ctx context.Context, event *Event) error
}
