package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

func TestListUnpaid_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewAdminReconciliationHandler(db, 24*time.Hour, logging.Default())
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return now }

	created := time.Date(2024, 6, 10, 8, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "patient_id", "counselor_id", "session_date", "start_time", "created_at", "intent_id", "status"}).
		AddRow("0b5c7a40-0000-4000-8000-000000000001", "p-1", "c-1", time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), "13:00", created, "pi_1", "requires_payment").
		AddRow("0b5c7a40-0000-4000-8000-000000000002", "p-2", "c-1", time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), "14:00", created, nil, nil)

	mock.ExpectQuery("FROM sessions s").
		WithArgs(now.Add(-48*time.Hour), 100).
		WillReturnRows(rows)

	req := httptest.NewRequest(http.MethodGet, "/admin/reconciliation/unpaid?olderThan=48h", nil)
	rec := httptest.NewRecorder()
	handler.ListUnpaid(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp UnpaidResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Total)
	assert.Equal(t, "48h0m0s", resp.OlderThan)
	assert.Equal(t, "2024-06-14", resp.Sessions[0].Date)
	require.NotNil(t, resp.Sessions[0].IntentID)
	assert.Equal(t, "pi_1", *resp.Sessions[0].IntentID)
	assert.Nil(t, resp.Sessions[1].IntentID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnpaid_DefaultAgeAndEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewAdminReconciliationHandler(db, 6*time.Hour, logging.Default())
	now := time.Date(2024, 6, 12, 12, 0, 0, 0, time.UTC)
	handler.now = func() time.Time { return now }

	mock.ExpectQuery("FROM sessions s").
		WithArgs(now.Add(-6*time.Hour), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "patient_id", "counselor_id", "session_date", "start_time", "created_at", "intent_id", "status"}))

	req := httptest.NewRequest(http.MethodGet, "/admin/reconciliation/unpaid?limit=10", nil)
	rec := httptest.NewRecorder()
	handler.ListUnpaid(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"olderThan":"6h0m0s","cutoff":"2024-06-12T06:00:00Z","sessions":[],"total":0}`, rec.Body.String())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListUnpaid_InvalidDuration(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewAdminReconciliationHandler(db, 0, logging.Default())
	req := httptest.NewRequest(http.MethodGet, "/admin/reconciliation/unpaid?olderThan=yesterday", nil)
	rec := httptest.NewRecorder()
	handler.ListUnpaid(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "validation_error")
}

func TestListUnpaid_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	handler := NewAdminReconciliationHandler(db, time.Hour, logging.Default())
	mock.ExpectQuery("FROM sessions s").WithArgs(sqlmock.AnyArg(), 100).WillReturnError(errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/admin/reconciliation/unpaid", nil)
	rec := httptest.NewRecorder()
	handler.ListUnpaid(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}
