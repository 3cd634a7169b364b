package video

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

// ErrNotFound is returned when no local meeting record matches.
var ErrNotFound = errors.New("video: meeting not found")

// Meeting is the local record of a provider meeting bound to one session.
type Meeting struct {
	MeetingID   int64     `json:"meetingId"`
	SessionID   uuid.UUID `json:"sessionId"`
	Topic       string    `json:"topic"`
	JoinURL     string    `json:"joinUrl"`
	StartURL    string    `json:"hostStartUrl"`
	StartTime   time.Time `json:"startTime"`
	Duration    int       `json:"duration"`
	Status      string    `json:"status"`
	CounselorID string    `json:"counselorId"`
	PatientID   string    `json:"patientId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Repository persists meeting records.
type Repository interface {
	Insert(ctx context.Context, m *Meeting) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*Meeting, error)
	GetByMeetingID(ctx context.Context, meetingID int64) (*Meeting, error)
	UpdateSchedule(ctx context.Context, meetingID int64, start time.Time, duration int) error
	Delete(ctx context.Context, meetingID int64) (bool, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const meetingColumns = `meeting_id, session_id, topic, join_url, start_url, start_time, duration_minutes, status,
	counselor_id, patient_id, created_at, updated_at`

type postgresRepository struct {
	db DB
}

func NewPostgresRepository(db DB) Repository {
	if db == nil {
		panic("video: db required")
	}
	return &postgresRepository{db: db}
}

func (r *postgresRepository) Insert(ctx context.Context, m *Meeting) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO video_meetings (meeting_id, session_id, topic, join_url, start_url, start_time, duration_minutes, status, counselor_id, patient_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at`,
		m.MeetingID, m.SessionID, m.Topic, m.JoinURL, m.StartURL, m.StartTime, m.Duration, m.Status, m.CounselorID, m.PatientID,
	).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperr.Conflict("session %s already has a meeting record", m.SessionID)
		}
		return fmt.Errorf("video: insert meeting: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*Meeting, error) {
	return r.get(ctx, `SELECT `+meetingColumns+` FROM video_meetings WHERE session_id = $1`, sessionID)
}

func (r *postgresRepository) GetByMeetingID(ctx context.Context, meetingID int64) (*Meeting, error) {
	return r.get(ctx, `SELECT `+meetingColumns+` FROM video_meetings WHERE meeting_id = $1`, meetingID)
}

func (r *postgresRepository) get(ctx context.Context, query string, arg any) (*Meeting, error) {
	var m Meeting
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&m.MeetingID, &m.SessionID, &m.Topic, &m.JoinURL, &m.StartURL, &m.StartTime, &m.Duration, &m.Status,
		&m.CounselorID, &m.PatientID, &m.CreatedAt, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("video: get meeting: %w", err)
	}
	return &m, nil
}

func (r *postgresRepository) UpdateSchedule(ctx context.Context, meetingID int64, start time.Time, duration int) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE video_meetings
		SET start_time = $2, duration_minutes = $3, updated_at = now()
		WHERE meeting_id = $1`, meetingID, start, duration)
	if err != nil {
		return fmt.Errorf("video: update meeting: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *postgresRepository) Delete(ctx context.Context, meetingID int64) (bool, error) {
	ct, err := r.db.Exec(ctx, `DELETE FROM video_meetings WHERE meeting_id = $1`, meetingID)
	if err != nil {
		return false, fmt.Errorf("video: delete meeting: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// InMemoryRepository keeps meetings in maps keyed by id and session.
type InMemoryRepository struct {
	mu        sync.RWMutex
	byID      map[int64]Meeting
	bySession map[uuid.UUID]int64

	// failures injected by tests, keyed by operation name
	FailInsert error
	FailDelete error
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byID:      make(map[int64]Meeting),
		bySession: make(map[uuid.UUID]int64),
	}
}

func (r *InMemoryRepository) Insert(ctx context.Context, m *Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailInsert != nil {
		return r.FailInsert
	}
	if _, ok := r.bySession[m.SessionID]; ok {
		return apperr.Conflict("session %s already has a meeting record", m.SessionID)
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	r.byID[m.MeetingID] = *m
	r.bySession[m.SessionID] = m.MeetingID
	return nil
}

func (r *InMemoryRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bySession[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	m := r.byID[id]
	return &m, nil
}

func (r *InMemoryRepository) GetByMeetingID(ctx context.Context, meetingID int64) (*Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return nil, ErrNotFound
	}
	return &m, nil
}

func (r *InMemoryRepository) UpdateSchedule(ctx context.Context, meetingID int64, start time.Time, duration int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[meetingID]
	if !ok {
		return ErrNotFound
	}
	m.StartTime, m.Duration, m.UpdatedAt = start, duration, time.Now().UTC()
	r.byID[meetingID] = m
	return nil
}

func (r *InMemoryRepository) Delete(ctx context.Context, meetingID int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailDelete != nil {
		return false, r.FailDelete
	}
	m, ok := r.byID[meetingID]
	if !ok {
		return false, nil
	}
	delete(r.byID, meetingID)
	delete(r.bySession, m.SessionID)
	return true, nil
}

// Count returns the number of stored meetings.
func (r *InMemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
