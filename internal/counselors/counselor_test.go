package counselors

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

func TestPostgresGetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	account := "acct_123"
	mock.ExpectQuery("FROM counselors").WithArgs("c-1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "display_name", "fee_cents", "stripe_account_id", "timezone"}).
			AddRow("c-1", "Dr. Rivera", int64(10000), &account, "America/New_York"))
	mock.ExpectQuery("FROM counselors").WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	repo := NewPostgresRepository(mock)
	c, err := repo.GetByID(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), c.FeeCents)
	assert.Equal(t, "acct_123", c.StripeAccountID)

	_, err = repo.GetByID(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLocationFallbacks(t *testing.T) {
	c := Counselor{Timezone: "America/Chicago"}
	assert.Equal(t, "America/Chicago", c.Location("UTC").String())

	c.Timezone = "Mars/Olympus"
	assert.Equal(t, "Europe/London", c.Location("Europe/London").String())

	c.Timezone = ""
	assert.Equal(t, "UTC", c.Location("").String())
}

func TestInMemoryRepository(t *testing.T) {
	repo := NewInMemoryRepository(Counselor{ID: "c-1", FeeCents: 5000})
	c, err := repo.GetByID(context.Background(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), c.FeeCents)

	repo.Put(Counselor{ID: "c-1", FeeCents: 6000})
	c, _ = repo.GetByID(context.Background(), "c-1")
	assert.Equal(t, int64(6000), c.FeeCents)

	_, err = repo.GetByID(context.Background(), "c-2")
	assert.True(t, errors.Is(err, ErrNotFound))
}
