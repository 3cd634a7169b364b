package slots

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// Handler serves GET /sessions/available.
type Handler struct {
	resolver *Resolver
	logger   *logging.Logger
}

func NewHandler(resolver *Resolver, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{resolver: resolver, logger: logger}
}

// AvailableResponse is the body of GET /sessions/available.
type AvailableResponse struct {
	CounselorID    string   `json:"counselorId"`
	Date           string   `json:"date"`
	AvailableSlots []string `json:"availableSlots"`
}

func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	counselorID := r.URL.Query().Get("counselorId")
	date := r.URL.Query().Get("date")

	free, err := h.resolver.Resolve(r.Context(), counselorID, date)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			h.logger.Error("slot resolution failed", "error", err, "counselor_id", counselorID, "date", date)
		}
		apperr.WriteJSON(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(AvailableResponse{CounselorID: counselorID, Date: date, AvailableSlots: free})
}
