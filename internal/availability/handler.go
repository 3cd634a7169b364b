package availability

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/internal/auth"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// Handler serves the counselor-facing availability endpoints.
type Handler struct {
	store  *Store
	logger *logging.Logger
}

func NewHandler(store *Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// SetRequest is the body of POST /availability.
type SetRequest struct {
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
}

// WeekResponse is the body of GET /availability.
type WeekResponse struct {
	WeekStart    string `json:"weekStart"`
	WeekEnd      string `json:"weekEnd"`
	Availability []Day  `json:"availability"`
}

// GetWeek handles GET /availability?weekStart=YYYY-MM-DD for the calling counselor.
func (h *Handler) GetWeek(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	weekStart := r.URL.Query().Get("weekStart")
	start, err := ParseDate(weekStart)
	if err != nil {
		apperr.WriteJSON(w, err)
		return
	}
	weekEnd := start.AddDate(0, 0, 6).Format(DateLayout)

	days, err := h.store.GetAvailability(r.Context(), p.UserID, weekStart, weekEnd)
	if err != nil {
		h.logger.Error("failed to load availability", "error", err, "counselor_id", p.UserID)
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, WeekResponse{WeekStart: weekStart, WeekEnd: weekEnd, Availability: days})
}

// Set handles POST /availability. A counselor may only write their own days.
func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var req SetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	day, err := h.store.SetAvailability(r.Context(), p.UserID, req.Date, req.AvailableSlots)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("failed to set availability", "error", err, "counselor_id", p.UserID)
		}
		apperr.WriteJSON(w, err)
		return
	}
	writeJSON(w, http.StatusOK, day)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
