package video

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

func TestPostgresRepositoryInsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPostgresRepository(mock)

	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	m := &Meeting{MeetingID: 42, SessionID: uuid.New(), Topic: "t", JoinURL: "j", StartURL: "s", StartTime: now, Duration: 55, Status: "waiting", CounselorID: "c-1", PatientID: "p-1"}
	mock.ExpectQuery("INSERT INTO video_meetings").
		WithArgs(int64(42), m.SessionID, "t", "j", "s", now, 55, "waiting", "c-1", "p-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	require.NoError(t, repo.Insert(context.Background(), m))
	assert.Equal(t, now, m.CreatedAt)

	mock.ExpectQuery("INSERT INTO video_meetings").
		WithArgs(int64(42), m.SessionID, "t", "j", "s", now, 55, "waiting", "c-1", "p-1").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err = repo.Insert(context.Background(), m)
	assert.True(t, apperr.IsKind(err, apperr.KindConflict))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPostgresRepository(mock)

	sessionID := uuid.New()
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM video_meetings WHERE session_id").WithArgs(sessionID).WillReturnRows(
		pgxmock.NewRows([]string{"meeting_id", "session_id", "topic", "join_url", "start_url", "start_time", "duration_minutes",
			"status", "counselor_id", "patient_id", "created_at", "updated_at"}).
			AddRow(int64(42), sessionID, "t", "j", "s", now, 55, "waiting", "c-1", "p-1", now, now))

	m, err := repo.GetBySession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), m.MeetingID)
	assert.Equal(t, "s", m.StartURL)

	mock.ExpectQuery("FROM video_meetings WHERE meeting_id").WithArgs(int64(7)).WillReturnError(pgx.ErrNoRows)
	_, err = repo.GetByMeetingID(context.Background(), 7)
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryUpdateAndDelete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewPostgresRepository(mock)

	start := time.Date(2024, 6, 11, 15, 0, 0, 0, time.UTC)
	mock.ExpectExec("UPDATE video_meetings").WithArgs(int64(42), start, 50).WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateSchedule(context.Background(), 42, start, 50))

	mock.ExpectExec("UPDATE video_meetings").WithArgs(int64(43), start, 50).WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	assert.True(t, errors.Is(repo.UpdateSchedule(context.Background(), 43, start, 50), ErrNotFound))

	mock.ExpectExec("DELETE FROM video_meetings").WithArgs(int64(42)).WillReturnResult(pgxmock.NewResult("DELETE", 1))
	deleted, err := repo.Delete(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, deleted)

	require.NoError(t, mock.ExpectationsWereMet())
}
