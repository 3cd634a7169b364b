package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/internal/counselors"
	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
)

func confirmedSession(t *testing.T, repo *sessions.InMemoryRepository, counselorID, date, clock string) *sessions.Session {
	t.Helper()
	s, err := repo.CreateBooked(context.Background(), "p-1", counselorID, date, clock, 55)
	require.NoError(t, err)
	s, err = repo.MarkConfirmed(context.Background(), s.ID)
	require.NoError(t, err)
	return s
}

func TestProcessDueSendsOncePerSession(t *testing.T) {
	repo := sessions.NewInMemoryRepository()
	cr := counselors.NewInMemoryRepository(
		counselors.Counselor{ID: "c-ny", Timezone: "America/New_York"},
		counselors.Counselor{ID: "c-utc"},
	)
	notifier := &events.MemoryNotifier{}
	w := NewWorker(repo, cr, notifier, Config{LeadTime: 24 * time.Hour, DefaultTimezone: "UTC"}, nil, nil)
	// 2024-06-10 12:00 UTC is 08:00 in New York
	w.now = func() time.Time { return time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC) }

	dueNY := confirmedSession(t, repo, "c-ny", "2024-06-10", "13:00")
	pastNY := confirmedSession(t, repo, "c-ny", "2024-06-10", "07:00")
	dueUTC := confirmedSession(t, repo, "c-utc", "2024-06-11", "11:30")
	tooLate := confirmedSession(t, repo, "c-utc", "2024-06-11", "12:30")
	booked, err := repo.CreateBooked(context.Background(), "p-2", "c-utc", "2024-06-10", "15:00", 55)
	require.NoError(t, err)

	sent, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	got := map[string]bool{}
	for _, n := range notifier.Sent() {
		assert.Equal(t, events.TypeSessionReminder, n.Type)
		got[n.SessionID.String()] = true
	}
	assert.True(t, got[dueNY.ID.String()])
	assert.True(t, got[dueUTC.ID.String()])
	assert.False(t, got[pastNY.ID.String()])
	assert.False(t, got[tooLate.ID.String()])
	assert.False(t, got[booked.ID.String()], "unconfirmed sessions get no reminder")

	sent, err = w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, notifier.Sent(), 2)
}

func TestProcessDueRescheduleResetsReminder(t *testing.T) {
	repo := sessions.NewInMemoryRepository()
	cr := counselors.NewInMemoryRepository(counselors.Counselor{ID: "c-1"})
	notifier := &events.MemoryNotifier{}
	w := NewWorker(repo, cr, notifier, Config{LeadTime: 2 * time.Hour}, nil, nil)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	s := confirmedSession(t, repo, "c-1", "2024-06-10", "10:00")
	sent, err := w.ProcessDue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	_, err = repo.Reschedule(context.Background(), s.ID, "2024-06-12", "10:00", 55)
	require.NoError(t, err)
	now = time.Date(2024, 6, 12, 8, 30, 0, 0, time.UTC)

	sent, err = w.ProcessDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, 2, notifier.Count(events.TypeSessionReminder))
}

func TestStartStopsOnCancel(t *testing.T) {
	w := NewWorker(sessions.NewInMemoryRepository(), counselors.NewInMemoryRepository(), nil, Config{Interval: time.Millisecond}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
