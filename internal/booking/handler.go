package booking

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/internal/auth"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
	"github.com/wolfman30/teletherapy-platform/internal/video"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// MeetingDeleter removes meetings by provider id.
type MeetingDeleter interface {
	MeetingByID(ctx context.Context, meetingID int64) (*video.Meeting, error)
	DeleteMeeting(ctx context.Context, meetingID int64) error
}

// Handler serves the booking, payment and meeting endpoints.
type Handler struct {
	orchestrator *Orchestrator
	meetings     MeetingDeleter
	logger       *logging.Logger
}

func NewHandler(o *Orchestrator, meetings MeetingDeleter, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{orchestrator: o, meetings: meetings, logger: logger}
}

// BookingRequest is the body of POST /booking.
type BookingRequest struct {
	CounselorID string `json:"counselorId"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Duration    int    `json:"duration,omitempty"`
}

// BookingResponse reports the booking outcome. PaymentError and VideoError
// carry {code, message} when those steps failed after the session was held.
type BookingResponse struct {
	SessionID    uuid.UUID         `json:"sessionId"`
	Status       sessions.Status   `json:"status"`
	State        State             `json:"state"`
	ClientSecret string            `json:"clientSecret,omitempty"`
	Amount       int64             `json:"amount,omitempty"`
	Currency     string            `json:"currency,omitempty"`
	PaymentError any               `json:"paymentError,omitempty"`
	Meeting      *MeetingResponse  `json:"meeting,omitempty"`
	VideoError   any               `json:"videoError,omitempty"`
	Session      *sessions.Session `json:"session,omitempty"`
}

// MeetingResponse is a meeting as shown to one participant. HostStartURL is
// only populated for the counselor and admins.
type MeetingResponse struct {
	MeetingID    int64  `json:"meetingId"`
	SessionID    string `json:"sessionId"`
	Topic        string `json:"topic"`
	JoinURL      string `json:"joinUrl"`
	HostStartURL string `json:"hostStartUrl,omitempty"`
	StartTime    string `json:"startTime"`
	Duration     int    `json:"duration"`
	Status       string `json:"status"`
}

// IntentRequest is the body of POST /payment/intent.
type IntentRequest struct {
	SessionID string `json:"sessionId"`
}

// RescheduleBody is the body of PUT /sessions/{id}/meeting.
type RescheduleBody struct {
	Date     string `json:"date"`
	Time     string `json:"time"`
	Duration int    `json:"duration,omitempty"`
}

// Book handles POST /booking for the calling patient.
func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var body BookingRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	res, err := h.orchestrator.RequestBooking(r.Context(), Request{
		PatientID:   p.UserID,
		CounselorID: strings.TrimSpace(body.CounselorID),
		Date:        strings.TrimSpace(body.Date),
		Time:        strings.TrimSpace(body.Time),
		Duration:    body.Duration,
	})
	if err != nil {
		h.writeError(w, err, "booking failed", "counselor_id", body.CounselorID)
		return
	}
	writeJSON(w, http.StatusCreated, bookingResponse(p, res))
}

// CreateIntent handles POST /payment/intent, the retry path for a booked
// session whose payment setup failed.
func (h *Handler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	var body IntentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	id, err := uuid.Parse(strings.TrimSpace(body.SessionID))
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("sessionId must be a UUID"))
		return
	}
	sess, err := h.orchestrator.Session(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "session lookup failed", "session_id", id)
		return
	}
	if sess.PatientID != p.UserID && !p.Is(auth.RoleAdmin) {
		apperr.WriteJSON(w, apperr.Forbidden("session belongs to another patient"))
		return
	}
	res, err := h.orchestrator.CreatePaymentIntent(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "payment intent failed", "session_id", id)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponse(p, res))
}

// GetSession handles GET /sessions/{id} for participants and admins.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	p, sess, ok := h.participantSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sessionView(p, sess))
}

// ProvisionMeeting handles POST /sessions/{id}/meeting. Repeating the call
// returns the same meeting.
func (h *Handler) ProvisionMeeting(w http.ResponseWriter, r *http.Request) {
	p, sess, ok := h.participantSession(w, r)
	if !ok {
		return
	}
	m, err := h.orchestrator.ProvisionVideo(r.Context(), sess.ID)
	if err != nil {
		h.writeError(w, err, "meeting provisioning failed", "session_id", sess.ID)
		return
	}
	writeJSON(w, http.StatusOK, meetingView(p, m))
}

// RescheduleMeeting handles PUT /sessions/{id}/meeting: the session moves to
// the new slot and its meeting follows.
func (h *Handler) RescheduleMeeting(w http.ResponseWriter, r *http.Request) {
	p, sess, ok := h.participantSession(w, r)
	if !ok {
		return
	}
	if !p.Is(auth.RoleAdmin) && sess.CounselorID != p.UserID {
		apperr.WriteJSON(w, apperr.Forbidden("only the session's counselor may reschedule"))
		return
	}
	var body RescheduleBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		apperr.WriteJSON(w, apperr.Validation("invalid request body"))
		return
	}
	res, err := h.orchestrator.RescheduleSession(r.Context(), sess.ID, RescheduleRequest{
		Date:     strings.TrimSpace(body.Date),
		Time:     strings.TrimSpace(body.Time),
		Duration: body.Duration,
	})
	if err != nil {
		h.writeError(w, err, "reschedule failed", "session_id", sess.ID)
		return
	}
	writeJSON(w, http.StatusOK, bookingResponse(p, res))
}

// DeleteMeeting handles DELETE /meetings/{meetingId}.
func (h *Handler) DeleteMeeting(w http.ResponseWriter, r *http.Request) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}
	meetingID, err := strconv.ParseInt(chi.URLParam(r, "meetingId"), 10, 64)
	if err != nil || meetingID <= 0 {
		apperr.WriteJSON(w, apperr.Validation("meetingId must be a positive integer"))
		return
	}
	m, err := h.meetings.MeetingByID(r.Context(), meetingID)
	if err != nil {
		h.writeError(w, err, "meeting lookup failed", "meeting_id", meetingID)
		return
	}
	if !p.Is(auth.RoleAdmin) && m.CounselorID != p.UserID {
		apperr.WriteJSON(w, apperr.Forbidden("only the session's counselor may delete its meeting"))
		return
	}
	if err := h.meetings.DeleteMeeting(r.Context(), meetingID); err != nil {
		h.writeError(w, err, "meeting delete failed", "meeting_id", meetingID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) participantSession(w http.ResponseWriter, r *http.Request) (auth.Principal, *sessions.Session, bool) {
	p, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return auth.Principal{}, nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		apperr.WriteJSON(w, apperr.Validation("session id must be a UUID"))
		return p, nil, false
	}
	sess, err := h.orchestrator.Session(r.Context(), id)
	if err != nil {
		h.writeError(w, err, "session lookup failed", "session_id", id)
		return p, nil, false
	}
	if !p.Is(auth.RoleAdmin) && !sess.HasParticipant(p.UserID) {
		// same response as a missing session
		apperr.WriteJSON(w, apperr.NotFound("session %s not found", id))
		return p, nil, false
	}
	return p, sess, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error, msg string, args ...any) {
	switch apperr.KindOf(err) {
	case apperr.KindInternal, apperr.KindIntegrity:
		h.logger.Error(msg, append(args, "error", err)...)
	case apperr.KindUpstream:
		h.logger.Warn(msg, append(args, "error", err)...)
	}
	apperr.WriteJSON(w, err)
}

func hostView(p auth.Principal, counselorID string) bool {
	return p.Is(auth.RoleAdmin) || (p.Role == auth.RoleCounselor && p.UserID == counselorID)
}

func sessionView(p auth.Principal, sess *sessions.Session) *sessions.Session {
	out := *sess
	if sess.Meeting != nil {
		m := *sess.Meeting
		if !hostView(p, sess.CounselorID) {
			m.StartURL = ""
		}
		out.Meeting = &m
	}
	return &out
}

func meetingView(p auth.Principal, m *video.Meeting) *MeetingResponse {
	if m == nil {
		return nil
	}
	out := &MeetingResponse{
		MeetingID: m.MeetingID,
		SessionID: m.SessionID.String(),
		Topic:     m.Topic,
		JoinURL:   m.JoinURL,
		StartTime: m.StartTime.Format("2006-01-02T15:04:05Z07:00"),
		Duration:  m.Duration,
		Status:    m.Status,
	}
	if hostView(p, m.CounselorID) {
		out.HostStartURL = m.StartURL
	}
	return out
}

func bookingResponse(p auth.Principal, res *Result) BookingResponse {
	out := BookingResponse{
		SessionID:    res.Session.ID,
		Status:       res.Session.Status,
		State:        res.State,
		PaymentError: apperr.Detail(res.PaymentError),
		Meeting:      meetingView(p, res.Meeting),
		VideoError:   apperr.Detail(res.VideoError),
		Session:      sessionView(p, res.Session),
	}
	if res.Payment != nil {
		out.ClientSecret = res.Payment.ClientSecret
		out.Amount = res.Payment.Amount
		out.Currency = res.Payment.Currency
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
