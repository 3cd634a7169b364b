package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// AdminReconciliationHandler reports sessions that were booked but never
// confirmed. It never releases them; an operator decides.
type AdminReconciliationHandler struct {
	db         *sql.DB
	defaultAge time.Duration
	logger     *logging.Logger
	now        func() time.Time
}

// NewAdminReconciliationHandler creates the handler. defaultAge applies when
// the request has no olderThan parameter.
func NewAdminReconciliationHandler(db *sql.DB, defaultAge time.Duration, logger *logging.Logger) *AdminReconciliationHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if defaultAge <= 0 {
		defaultAge = 24 * time.Hour
	}
	return &AdminReconciliationHandler{db: db, defaultAge: defaultAge, logger: logger, now: time.Now}
}

// UnpaidSession is one stale booked session.
type UnpaidSession struct {
	SessionID     string  `json:"sessionId"`
	PatientID     string  `json:"patientId"`
	CounselorID   string  `json:"counselorId"`
	Date          string  `json:"date"`
	Time          string  `json:"time"`
	CreatedAt     string  `json:"createdAt"`
	IntentID      *string `json:"intentId,omitempty"`
	PaymentStatus *string `json:"paymentStatus,omitempty"`
}

// UnpaidResponse is the body of GET /admin/reconciliation/unpaid.
type UnpaidResponse struct {
	OlderThan string          `json:"olderThan"`
	Cutoff    string          `json:"cutoff"`
	Sessions  []UnpaidSession `json:"sessions"`
	Total     int             `json:"total"`
}

// ListUnpaid returns booked sessions created before now-olderThan, oldest first.
// GET /admin/reconciliation/unpaid?olderThan=24h&limit=100
func (h *AdminReconciliationHandler) ListUnpaid(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		apperr.WriteJSON(w, apperr.Upstream("database", "reconciliation disabled", nil))
		return
	}
	age := h.defaultAge
	if raw := r.URL.Query().Get("olderThan"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			apperr.WriteJSON(w, apperr.Validation("olderThan must be a positive duration such as 24h"))
			return
		}
		age = parsed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 500 {
		limit = 100
	}
	cutoff := h.now().UTC().Add(-age)

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT s.id, s.patient_id, s.counselor_id, s.session_date, s.start_time, s.created_at,
		       p.intent_id, p.status
		FROM sessions s
		LEFT JOIN LATERAL (
			SELECT intent_id, status FROM payments
			WHERE session_id = s.id
			ORDER BY created_at DESC
			LIMIT 1
		) p ON true
		WHERE s.status = 'booked' AND s.created_at < $1
		ORDER BY s.created_at ASC
		LIMIT $2`, cutoff, limit)
	if err != nil {
		h.logger.Error("failed to query unpaid sessions", "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	defer rows.Close()

	resp := UnpaidResponse{
		OlderThan: age.String(),
		Cutoff:    cutoff.Format(time.RFC3339),
		Sessions:  []UnpaidSession{},
	}
	for rows.Next() {
		var (
			item      UnpaidSession
			day       time.Time
			createdAt time.Time
		)
		if err := rows.Scan(&item.SessionID, &item.PatientID, &item.CounselorID, &day, &item.Time, &createdAt,
			&item.IntentID, &item.PaymentStatus); err != nil {
			h.logger.Error("failed to scan unpaid session", "error", err)
			apperr.WriteJSON(w, err)
			return
		}
		item.Date = day.Format(time.DateOnly)
		item.CreatedAt = createdAt.UTC().Format(time.RFC3339)
		resp.Sessions = append(resp.Sessions, item)
	}
	if err := rows.Err(); err != nil {
		h.logger.Error("failed to read unpaid sessions", "error", err)
		apperr.WriteJSON(w, err)
		return
	}
	resp.Total = len(resp.Sessions)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode reconciliation report", "error", err)
	}
}
