// Package progress keeps per-session progress records for long running report generations.
package progress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Record is the externally visible progress of one generation session.
type Record struct {
	SessionID  string     `json:"session_id"`
	Step       int        `json:"current_step"`
	TotalSteps int        `json:"total_steps"`
	StepName   string     `json:"step_name"`
	Percentage int        `json:"percentage"`
	Status     Status     `json:"status"`
	Details    string     `json:"details"`
	StartTime  time.Time  `json:"start_time"`
	LastUpdate time.Time  `json:"last_update"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	ReportID   *int64     `json:"report_id,omitempty"`
}

// Finished reports whether the record reached a terminal status.
func (r Record) Finished() bool {
	return r.Status == StatusCompleted || r.Status == StatusError
}

// Tracker is a mutex protected store of progress records keyed by session id.
// Updates for unknown sessions are ignored.
type Tracker struct {
	mu      sync.RWMutex
	records map[string]*Record
	logger  *slog.Logger
	now     func() time.Time
}

type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	tracker := &Tracker{
		records: make(map[string]*Record),
		logger:  logger.With("module", "progress"),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(tracker)
	}

	return tracker
}

// Start registers a session, replacing any previous record with the same id.
func (t *Tracker) Start(sessionID string, totalSteps int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	t.records[sessionID] = &Record{
		SessionID:  sessionID,
		TotalSteps: totalSteps,
		StepName:   "Starting",
		Status:     StatusRunning,
		Details:    t.stamp(now, "Initializing report generation"),
		StartTime:  now,
		LastUpdate: now,
	}

	t.logger.Info("progress started", "session_id", sessionID, "total_steps", totalSteps)
}

// Advance moves a session to the given step.
func (t *Tracker) Advance(sessionID string, step int, stepName, details string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[sessionID]
	if !ok {
		return
	}

	now := t.now()
	record.Step = step
	record.StepName = stepName
	record.Percentage = percentage(step, record.TotalSteps)
	record.LastUpdate = now

	if details != "" {
		record.Details = t.stamp(now, details)
	}

	t.logger.Debug("progress advanced", "session_id", sessionID, "step", step, "step_name", stepName)
}

// Detail replaces the latest detail line without moving the step.
func (t *Tracker) Detail(sessionID, details string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[sessionID]
	if !ok {
		return
	}

	now := t.now()
	record.Details = t.stamp(now, details)
	record.LastUpdate = now
}

// Complete finalizes a session at the last step with status completed or error.
func (t *Tracker) Complete(sessionID string, success bool, reportID *int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[sessionID]
	if !ok {
		return
	}

	now := t.now()
	record.LastUpdate = now
	record.EndTime = &now
	record.Step = record.TotalSteps
	record.Percentage = 100

	if reportID != nil {
		id := *reportID
		record.ReportID = &id
	}

	if !success {
		record.Status = StatusError
		record.StepName = "Failed"
		record.Details = t.stamp(now, "Report generation finished without a report")

		t.logger.Warn("progress completed without a report", "session_id", sessionID)

		return
	}

	record.Status = StatusCompleted
	record.StepName = "Completed"

	if record.ReportID != nil {
		record.Details = t.stamp(now, fmt.Sprintf("Report #%d created", *record.ReportID))
	} else {
		record.Details = t.stamp(now, "Report generation completed")
	}

	t.logger.Info("progress completed", "session_id", sessionID, "report_id", record.ReportID)
}

// Error finalizes a session with a failure message.
func (t *Tracker) Error(sessionID, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.records[sessionID]
	if !ok {
		return
	}

	now := t.now()
	record.Status = StatusError
	record.StepName = "Failed"
	record.Details = t.stamp(now, "Error: "+message)
	record.LastUpdate = now
	record.EndTime = &now

	t.logger.Warn("progress failed", "session_id", sessionID, "error", message)
}

// Get returns a copy of the session record.
func (t *Tracker) Get(sessionID string) (Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	record, ok := t.records[sessionID]
	if !ok {
		return Record{}, false
	}

	snapshot := *record
	if record.EndTime != nil {
		end := *record.EndTime
		snapshot.EndTime = &end
	}

	if record.ReportID != nil {
		id := *record.ReportID
		snapshot.ReportID = &id
	}

	return snapshot, true
}

// Prune drops finished records whose last update is older than maxAge and
// returns how many were removed. Running sessions are never pruned.
func (t *Tracker) Prune(maxAge time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-maxAge)
	removed := 0

	for id, record := range t.records {
		if record.Finished() && record.LastUpdate.Before(cutoff) {
			delete(t.records, id)

			removed++
		}
	}

	if removed > 0 {
		t.logger.Info("pruned finished progress records", "removed", removed)
	}

	return removed
}

// Len returns the number of tracked sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.records)
}

func (t *Tracker) stamp(now time.Time, details string) string {
	return fmt.Sprintf("[%s] %s", now.Format("15:04:05"), details)
}

func percentage(step, total int) int {
	if total <= 0 {
		return 0
	}

	pct := 100 * step / total
	if pct > 100 {
		return 100
	}

	return pct
}
