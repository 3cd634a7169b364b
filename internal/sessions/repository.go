package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

// Repository is the session store. Every mutation touches only the fields it
// owns so concurrent writers (booking, video, reminders) never overwrite
// each other.
type Repository interface {
	CreateBooked(ctx context.Context, patientID, counselorID, date, clock string, duration int) (*Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	FindByCounselorAndDate(ctx context.Context, counselorID, date string) ([]Session, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID) (*Session, error)
	Reschedule(ctx context.Context, id uuid.UUID, date, clock string, duration int) (*Session, error)
	AttachMeeting(ctx context.Context, id uuid.UUID, handle MeetingHandle) error
	ReplaceMeeting(ctx context.Context, id uuid.UUID, handle MeetingHandle) error
	ClearMeeting(ctx context.Context, id uuid.UUID, meetingID int64) (bool, error)
	ListUnreminded(ctx context.Context, fromDate, toDate string) ([]Session, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"

const sessionColumns = `id, patient_id, counselor_id, session_date, start_time, duration_minutes, status,
	created_at, updated_at, meeting_id, meeting_join_url, meeting_start_url, reminder_sent`

const dateLayout = "2006-01-02"

type postgresRepository struct {
	db DB
}

// NewPostgresRepository returns a Repository on the sessions table. Slot
// uniqueness is enforced by the sessions_active_slot_key partial index.
func NewPostgresRepository(db DB) Repository {
	if db == nil {
		panic("sessions: db required")
	}
	return &postgresRepository{db: db}
}

func (r *postgresRepository) CreateBooked(ctx context.Context, patientID, counselorID, date, clock string, duration int) (*Session, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	s := NewBooked(patientID, counselorID, date, clock, duration)
	err = r.db.QueryRow(ctx, `
		INSERT INTO sessions (id, patient_id, counselor_id, session_date, start_time, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`,
		s.ID, s.PatientID, s.CounselorID, day, s.Time, s.Duration, string(s.Status),
	).Scan(&s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, apperr.SlotUnavailable(fmt.Sprintf("slot %s %s was just booked", date, clock))
		}
		return nil, fmt.Errorf("sessions: create booked: %w", err)
	}
	return s, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("sessions: get: %w", err)
	}
	return s, nil
}

func (r *postgresRepository) FindByCounselorAndDate(ctx context.Context, counselorID, date string) ([]Session, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE counselor_id = $1 AND session_date = $2 AND status <> 'cancelled'
		ORDER BY start_time`, counselorID, day)
	if err != nil {
		return nil, fmt.Errorf("sessions: find by counselor and date: %w", err)
	}
	return collect(rows)
}

func (r *postgresRepository) MarkConfirmed(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := scanSession(r.db.QueryRow(ctx, `
		UPDATE sessions
		SET status = 'confirmed', updated_at = now()
		WHERE id = $1 AND status = 'booked'
		RETURNING `+sessionColumns, id))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sessions: mark confirmed: %w", err)
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == StatusConfirmed {
		return current, nil
	}
	return nil, apperr.InvalidState("session %s is %s and cannot be confirmed", id, current.Status)
}

func (r *postgresRepository) Reschedule(ctx context.Context, id uuid.UUID, date, clock string, duration int) (*Session, error) {
	day, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		duration = DefaultDuration
	}
	s, err := scanSession(r.db.QueryRow(ctx, `
		UPDATE sessions
		SET session_date = $2, start_time = $3, duration_minutes = $4, reminder_sent = false, updated_at = now()
		WHERE id = $1 AND status IN ('booked', 'confirmed')
		RETURNING `+sessionColumns, id, day, clock, duration))
	if err == nil {
		return s, nil
	}
	if isUniqueViolation(err) {
		return nil, apperr.SlotUnavailable(fmt.Sprintf("slot %s %s was just booked", date, clock))
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("sessions: reschedule: %w", err)
	}
	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperr.InvalidState("session %s is %s and cannot be rescheduled", id, current.Status)
}

func (r *postgresRepository) AttachMeeting(ctx context.Context, id uuid.UUID, handle MeetingHandle) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET meeting_id = $2, meeting_join_url = $3, meeting_start_url = $4, updated_at = now()
		WHERE id = $1 AND meeting_id IS NULL`,
		id, handle.MeetingID, handle.JoinURL, handle.StartURL)
	if err != nil {
		return fmt.Errorf("sessions: attach meeting: %w", err)
	}
	if ct.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return apperr.InvalidState("session %s already has a meeting", id)
}

func (r *postgresRepository) ReplaceMeeting(ctx context.Context, id uuid.UUID, handle MeetingHandle) error {
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET meeting_id = $2, meeting_join_url = $3, meeting_start_url = $4, updated_at = now()
		WHERE id = $1`,
		id, handle.MeetingID, handle.JoinURL, handle.StartURL)
	if err != nil {
		return fmt.Errorf("sessions: replace meeting: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (r *postgresRepository) ClearMeeting(ctx context.Context, id uuid.UUID, meetingID int64) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET meeting_id = NULL, meeting_join_url = NULL, meeting_start_url = NULL, updated_at = now()
		WHERE id = $1 AND meeting_id = $2`, id, meetingID)
	if err != nil {
		return false, fmt.Errorf("sessions: clear meeting: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *postgresRepository) ListUnreminded(ctx context.Context, fromDate, toDate string) ([]Session, error) {
	from, err := parseDate(fromDate)
	if err != nil {
		return nil, err
	}
	to, err := parseDate(toDate)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = 'confirmed' AND reminder_sent = false AND session_date BETWEEN $1 AND $2
		ORDER BY session_date, start_time`, from, to)
	if err != nil {
		return nil, fmt.Errorf("sessions: list unreminded: %w", err)
	}
	return collect(rows)
}

func (r *postgresRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := r.db.Exec(ctx, `
		UPDATE sessions
		SET reminder_sent = true, updated_at = now()
		WHERE id = $1 AND status = 'confirmed' AND reminder_sent = false`, id)
	if err != nil {
		return false, fmt.Errorf("sessions: mark reminder sent: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		s         Session
		day       time.Time
		status    string
		meetingID *int64
		joinURL   *string
		startURL  *string
	)
	if err := row.Scan(&s.ID, &s.PatientID, &s.CounselorID, &day, &s.Time, &s.Duration, &status,
		&s.CreatedAt, &s.UpdatedAt, &meetingID, &joinURL, &startURL, &s.ReminderSent); err != nil {
		return nil, err
	}
	s.Date = day.Format(dateLayout)
	s.Status = Status(status)
	if meetingID != nil {
		s.Meeting = &MeetingHandle{MeetingID: *meetingID}
		if joinURL != nil {
			s.Meeting.JoinURL = *joinURL
		}
		if startURL != nil {
			s.Meeting.StartURL = *startURL
		}
	}
	return &s, nil
}

func collect(rows pgx.Rows) ([]Session, error) {
	defer rows.Close()
	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sessions: scan: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func parseDate(value string) (time.Time, error) {
	d, err := time.Parse(dateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("date %q must be a calendar date in YYYY-MM-DD form", value)
	}
	return d, nil
}

func notFound(id uuid.UUID) error {
	return &apperr.Error{Kind: apperr.KindNotFound, Message: fmt.Sprintf("session %s not found", id), Err: ErrNotFound}
}
