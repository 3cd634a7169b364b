package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresRepositoryUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	updated := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO availability").
		WithArgs("c-1", pgxmock.AnyArg(), []string{"13:00", "14:00"}).
		WillReturnRows(pgxmock.NewRows([]string{"updated_at"}).AddRow(updated))

	day, err := repo.Upsert(context.Background(), Day{CounselorID: "c-1", Date: "2024-06-10", AvailableSlots: []string{"13:00", "14:00"}})
	require.NoError(t, err)
	assert.Equal(t, updated, day.UpdatedAt)
	assert.Equal(t, "2024-06-10", day.Date)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryGetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	mock.ExpectQuery("SELECT counselor_id, day, slots, updated_at").
		WithArgs("c-1", pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	_, err = repo.Get(context.Background(), "c-1", "2024-06-10")
	assert.True(t, errors.Is(err, ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryListRange(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	updated := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"counselor_id", "day", "slots", "updated_at"}).
		AddRow("c-1", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), []string{"09:00"}, updated).
		AddRow("c-1", time.Date(2024, 6, 12, 0, 0, 0, 0, time.UTC), []string{"10:00", "11:00"}, updated)
	mock.ExpectQuery("FROM availability").
		WithArgs("c-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	days, err := repo.ListRange(context.Background(), "c-1", "2024-06-10", "2024-06-16")
	require.NoError(t, err)
	require.Len(t, days, 2)
	assert.Equal(t, "2024-06-10", days[0].Date)
	assert.Equal(t, []string{"10:00", "11:00"}, days[1].AvailableSlots)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepositoryRejectsBadDate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPostgresRepository(mock)
	_, err = repo.ListRange(context.Background(), "c-1", "June 10", "2024-06-16")
	assert.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
