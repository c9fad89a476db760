package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// NewTransitionEvent creates an event for a lifecycle state change.
func NewTransitionEvent(eventType EventType, project, entityID string, severity EventSeverity, message string, data TransitionData) (*Event, error) {
	return newEvent(eventType, project, entityID, severity, message, data)
}

// NewMinerEvent creates an event for a miner outcome.
func NewMinerEvent(project, sessionID string, data MinerData) (*Event, error) {
	eventType, severity := EventTypeMinerCompleted, SeverityInfo
	msg := fmt.Sprintf("miner %s wrote %d patterns", data.Miner, data.Patterns)
	if data.Error != "" {
		eventType, severity = EventTypeMinerFailed, SeverityError
		msg = fmt.Sprintf("miner %s failed: %s", data.Miner, data.Error)
	}
	return newEvent(eventType, project, sessionID, severity, msg, data)
}

// NewAlertEvent creates an event for alert creation, dedup or escalation.
func NewAlertEvent(eventType EventType, project, alertID string, severity EventSeverity, message string, data AlertData) (*Event, error) {
	return newEvent(eventType, project, alertID, severity, message, data)
}

// NewEvent creates an event without structured data.
func NewEvent(eventType EventType, project, entityID string, severity EventSeverity, message string) *Event {
	return &Event{
		Type:      eventType,
		Project:   project,
		EntityID:  entityID,
		Severity:  severity,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
}

func newEvent(eventType EventType, project, entityID string, severity EventSeverity, message string, data interface{}) (*Event, error) {
	e := NewEvent(eventType, project, entityID, severity, message)
	m, err := structToMap(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s event data: %w", eventType, err)
	}
	e.Data = m
	return e, nil
}

// DecodeData unmarshals the event's Data map into target.
func (e *Event) DecodeData(target interface{}) error {
	return mapToStruct(e.Data, target)
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
