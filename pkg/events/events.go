// Package events defines the report lifecycle events published on the event bus.
package events

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type EventType string

// Topic carries every report lifecycle event.
const Topic = "reportgen.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ReportGenerationStartedEvent EventType = "report.generation.started"
	ReportGenerationFailedEvent  EventType = "report.generation.failed"
	ReportPublishedEvent         EventType = "report.published"
	ReportDeletedEvent           EventType = "report.deleted"
)

// Trigger names the origin of a generation run.
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
	TriggerCLI       = "cli"
)

var (
	ErrMissingSessionID = errors.New("session_id is required")
	ErrMissingReportID  = errors.New("report_id is required")
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Metadata:  make(map[string]any),
	}
}

// ReportGenerationStarted is published when a session is allocated.
type ReportGenerationStarted struct {
	BaseEvent

	Trigger string `json:"trigger"`
}

func (e ReportGenerationStarted) GetType() EventType {
	return ReportGenerationStartedEvent
}

func NewReportGenerationStarted(sessionID, trigger string) ReportGenerationStarted {
	return ReportGenerationStarted{
		BaseEvent: NewBaseEvent(ReportGenerationStartedEvent, sessionID),
		Trigger:   trigger,
	}
}

// ReportPublished is published after a report has been stored.
type ReportPublished struct {
	BaseEvent

	ReportID         int64         `json:"report_id"`
	Trigger          string        `json:"trigger"`
	ResearchAttempts int           `json:"research_attempts"`
	Duration         time.Duration `json:"duration"`
}

func (e ReportPublished) GetType() EventType {
	return ReportPublishedEvent
}

func NewReportPublished(sessionID string, reportID int64, trigger string, researchAttempts int, duration time.Duration) ReportPublished {
	return ReportPublished{
		BaseEvent:        NewBaseEvent(ReportPublishedEvent, sessionID),
		ReportID:         reportID,
		Trigger:          trigger,
		ResearchAttempts: researchAttempts,
		Duration:         duration,
	}
}

func (e ReportPublished) Validate() error {
	if e.SessionID == "" {
		return ErrMissingSessionID
	}

	if e.ReportID <= 0 {
		return ErrMissingReportID
	}

	return nil
}

// ReportGenerationFailed is published when a run ends without a report.
type ReportGenerationFailed struct {
	BaseEvent

	Trigger          string   `json:"trigger"`
	Errors           []string `json:"errors"`
	RateLimited      bool     `json:"rate_limited"`
	ValidationResult string   `json:"validation_result,omitempty"`
}

func (e ReportGenerationFailed) GetType() EventType {
	return ReportGenerationFailedEvent
}

func NewReportGenerationFailed(sessionID, trigger string, errs []string, rateLimited bool, validation string) ReportGenerationFailed {
	return ReportGenerationFailed{
		BaseEvent:        NewBaseEvent(ReportGenerationFailedEvent, sessionID),
		Trigger:          trigger,
		Errors:           errs,
		RateLimited:      rateLimited,
		ValidationResult: validation,
	}
}

// ReportDeleted is published after a report has been removed.
type ReportDeleted struct {
	BaseEvent

	ReportID int64 `json:"report_id"`
}

func (e ReportDeleted) GetType() EventType {
	return ReportDeletedEvent
}

func NewReportDeleted(reportID int64) ReportDeleted {
	return ReportDeleted{
		BaseEvent: NewBaseEvent(ReportDeletedEvent, ""),
		ReportID:  reportID,
	}
}

func (e ReportDeleted) Validate() error {
	if e.ReportID <= 0 {
		return ErrMissingReportID
	}

	return nil
}
