package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types written to the outbox. The delivery service maps them to
// patient/counselor notifications.
const (
	TypeBookingConfirmed   = "booking_confirmed.v1"
	TypePaymentSetupFailed = "payment_setup_failed.v1"
	TypePaymentSucceeded   = "payment_succeeded.v1"
	TypePaymentFailed      = "payment_failed.v1"
	TypeSessionReminder    = "session_reminder.v1"
	TypeMeetingReady       = "meeting_ready.v1"
)

// SessionEventV1 is the payload of every session-scoped notification.
type SessionEventV1 struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	SessionID  string    `json:"session_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

func newSessionEvent(eventType string, sessionID uuid.UUID, at time.Time) SessionEventV1 {
	return SessionEventV1{
		EventID:    uuid.NewString(),
		Type:       eventType,
		SessionID:  sessionID.String(),
		OccurredAt: at.UTC(),
	}
}
