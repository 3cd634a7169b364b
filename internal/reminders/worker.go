// Package reminders emits a reminder notification for each confirmed session
// shortly before it starts.
package reminders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/teletherapy-platform/internal/counselors"
	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// SessionSource lists and claims confirmed sessions awaiting a reminder.
type SessionSource interface {
	ListUnreminded(ctx context.Context, fromDate, toDate string) ([]sessions.Session, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// CounselorReader resolves a counselor's timezone.
type CounselorReader interface {
	GetByID(ctx context.Context, id string) (*counselors.Counselor, error)
}

// Config controls the reminder window and polling.
type Config struct {
	LeadTime        time.Duration
	Interval        time.Duration
	DefaultTimezone string
}

// Worker finds sessions starting within LeadTime and notifies once per
// session. Claiming happens before notifying, so a reminder is sent at most
// once even with several workers.
type Worker struct {
	sessions   SessionSource
	counselors CounselorReader
	notifier   events.Notifier
	cfg        Config
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewWorker(ss SessionSource, cr CounselorReader, notifier events.Notifier, cfg Config, m *metrics.BookingMetrics, logger *logging.Logger) *Worker {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Worker{
		sessions:   ss,
		counselors: cr,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Component("reminders"),
		now:        time.Now,
	}
}

// Start runs ProcessDue every Interval until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessDue(ctx); err != nil {
			w.logger.Error("reminder pass failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// ProcessDue sends reminders for sessions starting between now and now+LeadTime.
// Returns the number of reminders sent.
func (w *Worker) ProcessDue(ctx context.Context) (int, error) {
	now := w.now()
	until := now.Add(w.cfg.LeadTime)
	// session dates are local to the counselor; widen by a day each side and
	// filter on the exact start below
	from := now.UTC().AddDate(0, 0, -1).Format(time.DateOnly)
	to := until.UTC().AddDate(0, 0, 1).Format(time.DateOnly)

	candidates, err := w.sessions.ListUnreminded(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("reminders: list sessions: %w", err)
	}

	locations := make(map[string]*time.Location)
	sent := 0
	for i := range candidates {
		s := &candidates[i]
		loc, err := w.location(ctx, s.CounselorID, locations)
		if err != nil {
			w.logger.Warn("skipping session, counselor lookup failed", "session_id", s.ID, "error", err)
			w.metrics.ObserveReminder("error")
			continue
		}
		start, err := time.ParseInLocation("2006-01-02 15:04", s.Date+" "+s.Time, loc)
		if err != nil || start.Before(now) || start.After(until) {
			continue
		}
		claimed, err := w.sessions.MarkReminderSent(ctx, s.ID)
		if err != nil {
			w.logger.Error("failed to claim reminder", "session_id", s.ID, "error", err)
			w.metrics.ObserveReminder("error")
			continue
		}
		if !claimed {
			continue
		}
		if w.notifier != nil {
			if err := w.notifier.Notify(ctx, events.TypeSessionReminder, s.ID); err != nil {
				w.logger.Error("reminder claimed but not recorded", "session_id", s.ID, "error", err)
				w.metrics.ObserveReminder("error")
				continue
			}
		}
		w.metrics.ObserveReminder("sent")
		w.logger.Info("reminder queued", "session_id", s.ID, "starts_at", start.Format(time.RFC3339))
		sent++
	}
	return sent, nil
}

func (w *Worker) location(ctx context.Context, counselorID string, cache map[string]*time.Location) (*time.Location, error) {
	if loc, ok := cache[counselorID]; ok {
		return loc, nil
	}
	c, err := w.counselors.GetByID(ctx, counselorID)
	if err != nil {
		return nil, err
	}
	loc := c.Location(w.cfg.DefaultTimezone)
	cache[counselorID] = loc
	return loc, nil
}
