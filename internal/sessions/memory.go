package sessions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

// InMemoryRepository mirrors the Postgres slot index with a map guarded by
// a mutex, so concurrent bookings race exactly like they do in the database.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	active   map[string]uuid.UUID // counselor|date|time -> session holding it
	now      func() time.Time
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[uuid.UUID]*Session),
		active:   make(map[string]uuid.UUID),
		now:      time.Now,
	}
}

func slotKey(counselorID, date, clock string) string {
	return counselorID + "|" + date + "|" + clock
}

func (r *InMemoryRepository) CreateBooked(ctx context.Context, patientID, counselorID, date, clock string, duration int) (*Session, error) {
	if _, err := parseDate(date); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := slotKey(counselorID, date, clock)
	if _, taken := r.active[key]; taken {
		return nil, apperr.SlotUnavailable(fmt.Sprintf("slot %s %s was just booked", date, clock))
	}
	s := NewBooked(patientID, counselorID, date, clock, duration)
	s.CreatedAt = r.now().UTC()
	s.UpdatedAt = s.CreatedAt
	r.sessions[s.ID] = s
	r.active[key] = s.ID
	return clone(s), nil
}

func (r *InMemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return clone(s), nil
}

func (r *InMemoryRepository) FindByCounselorAndDate(ctx context.Context, counselorID, date string) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for _, s := range r.sessions {
		if s.CounselorID == counselorID && s.Date == date && s.Status.Holds() {
			out = append(out, *clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (r *InMemoryRepository) MarkConfirmed(ctx context.Context, id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	switch s.Status {
	case StatusConfirmed:
	case StatusBooked:
		s.Status = StatusConfirmed
		s.UpdatedAt = r.now().UTC()
	default:
		return nil, apperr.InvalidState("session %s is %s and cannot be confirmed", id, s.Status)
	}
	return clone(s), nil
}

func (r *InMemoryRepository) Reschedule(ctx context.Context, id uuid.UUID, date, clock string, duration int) (*Session, error) {
	if _, err := parseDate(date); err != nil {
		return nil, err
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	if s.Status != StatusBooked && s.Status != StatusConfirmed {
		return nil, apperr.InvalidState("session %s is %s and cannot be rescheduled", id, s.Status)
	}
	oldKey := slotKey(s.CounselorID, s.Date, s.Time)
	newKey := slotKey(s.CounselorID, date, clock)
	if holder, taken := r.active[newKey]; taken && holder != id {
		return nil, apperr.SlotUnavailable(fmt.Sprintf("slot %s %s was just booked", date, clock))
	}
	delete(r.active, oldKey)
	r.active[newKey] = id
	s.Date, s.Time, s.Duration = date, clock, duration
	s.ReminderSent = false
	s.UpdatedAt = r.now().UTC()
	return clone(s), nil
}

func (r *InMemoryRepository) AttachMeeting(ctx context.Context, id uuid.UUID, handle MeetingHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return notFound(id)
	}
	if s.Meeting != nil {
		return apperr.InvalidState("session %s already has a meeting", id)
	}
	h := handle
	s.Meeting = &h
	s.UpdatedAt = r.now().UTC()
	return nil
}

func (r *InMemoryRepository) ReplaceMeeting(ctx context.Context, id uuid.UUID, handle MeetingHandle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return notFound(id)
	}
	h := handle
	s.Meeting = &h
	s.UpdatedAt = r.now().UTC()
	return nil
}

func (r *InMemoryRepository) ClearMeeting(ctx context.Context, id uuid.UUID, meetingID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Meeting == nil || s.Meeting.MeetingID != meetingID {
		return false, nil
	}
	s.Meeting = nil
	s.UpdatedAt = r.now().UTC()
	return true, nil
}

func (r *InMemoryRepository) ListUnreminded(ctx context.Context, fromDate, toDate string) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Session
	for _, s := range r.sessions {
		if s.Status == StatusConfirmed && !s.ReminderSent && s.Date >= fromDate && s.Date <= toDate {
			out = append(out, *clone(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Time < out[j].Time
	})
	return out, nil
}

func (r *InMemoryRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != StatusConfirmed || s.ReminderSent {
		return false, nil
	}
	s.ReminderSent = true
	s.UpdatedAt = r.now().UTC()
	return true, nil
}

// SetStatus forces a status, releasing the slot for cancelled sessions.
// Cancellation and completion happen outside the booking flow; tests and
// local tooling use this to simulate them.
func (r *InMemoryRepository) SetStatus(id uuid.UUID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return notFound(id)
	}
	s.Status = status
	if !status.Holds() {
		key := slotKey(s.CounselorID, s.Date, s.Time)
		if r.active[key] == id {
			delete(r.active, key)
		}
	}
	return nil
}

// All returns every stored session, including cancelled ones.
func (r *InMemoryRepository) All() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *clone(s))
	}
	return out
}

func clone(s *Session) *Session {
	out := *s
	if s.Meeting != nil {
		m := *s.Meeting
		out.Meeting = &m
	}
	return &out
}
