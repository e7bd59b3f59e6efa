package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/models"
	"github.com/cryptodashboard/reportgen/pkg/persistence"
)

// Persist writes the finished page. All five page fields must be present;
// otherwise nothing is written. Transient store errors are retried with
// exponential backoff. On success the page fields are released from the state.
func (n *Nodes) Persist(ctx context.Context, state *State) (*State, error) {
	if state.RateLimitStop {
		return state, nil
	}

	n.progress.Advance(state.SessionID, StepPersist, "Saving report", "Writing the report to the database")

	record := &models.Report{
		HTML:      deref(state.HTML),
		CSS:       deref(state.CSS),
		JS:        deref(state.JS),
		HTMLEn:    deref(state.HTMLEn),
		JSEn:      deref(state.JSEn),
		CreatedAt: n.now().UTC(),
	}

	if blank := record.BlankFields(); len(blank) > 0 {
		state.fail("cannot save report, missing content: " + strings.Join(blank, ", "))
		n.progress.Detail(state.SessionID, "Report is incomplete, nothing saved")

		return state, nil
	}

	id, err := n.save(ctx, state.SessionID, record)
	if err != nil {
		state.fail(fmt.Sprintf("failed to save report: %v", err))
		n.progress.Detail(state.SessionID, "Saving the report failed")

		return state, nil
	}

	state.ReportID = &id
	state.Success = true
	state.HTML, state.CSS, state.JS, state.HTMLEn, state.JSEn = nil, nil, nil, nil, nil

	n.progress.Complete(state.SessionID, true, &id)

	return state, nil
}

func (n *Nodes) save(ctx context.Context, sessionID string, record *models.Report) (int64, error) {
	var err error

	for attempt := range n.cfg.SaveAttempts {
		var id int64

		id, err = n.store.SaveReport(ctx, record)
		if err == nil {
			return id, nil
		}

		if !persistence.IsTransient(err) || attempt == n.cfg.SaveAttempts-1 {
			break
		}

		delay := n.cfg.SaveBackoff * time.Duration(1<<attempt)

		n.logger.WarnContext(ctx, "transient error saving report, retrying",
			"session_id", sessionID,
			"attempt", attempt+1,
			"max_attempts", n.cfg.SaveAttempts,
			"delay", delay,
			"error", err)
		n.progress.Detail(sessionID, fmt.Sprintf("Database connection error, retrying in %s (attempt %d/%d)",
			delay, attempt+1, n.cfg.SaveAttempts))

		if serr := n.sleep(ctx, delay); serr != nil {
			return 0, fmt.Errorf("save cancelled: %w", serr)
		}
	}

	return 0, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
