package sessions

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultDuration is the session length in minutes when none is requested.
const DefaultDuration = 55

// ErrNotFound is returned when a session id does not exist.
var ErrNotFound = errors.New("sessions: not found")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusBooked    Status = "booked"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// Holds reports whether a session in this status occupies its slot.
func (s Status) Holds() bool {
	return s != StatusCancelled
}

// MeetingHandle is the video meeting reference stored on a session.
type MeetingHandle struct {
	MeetingID int64  `json:"meetingId"`
	JoinURL   string `json:"joinUrl"`
	StartURL  string `json:"startUrl,omitempty"`
}

// Session is one appointment occupying (counselor, date, time).
type Session struct {
	ID           uuid.UUID      `json:"id"`
	PatientID    string         `json:"patientId"`
	CounselorID  string         `json:"counselorId"`
	Date         string         `json:"date"`
	Time         string         `json:"time"`
	Duration     int            `json:"duration"`
	Status       Status         `json:"status"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	Meeting      *MeetingHandle `json:"meeting,omitempty"`
	ReminderSent bool           `json:"reminderSent"`
}

// HasParticipant reports whether userID is the patient or counselor.
func (s *Session) HasParticipant(userID string) bool {
	return userID != "" && (s.PatientID == userID || s.CounselorID == userID)
}

// NewBooked builds a session in booked status.
func NewBooked(patientID, counselorID, date, clock string, duration int) *Session {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Session{
		ID:          uuid.New(),
		PatientID:   patientID,
		CounselorID: counselorID,
		Date:        date,
		Time:        clock,
		Duration:    duration,
		Status:      StatusBooked,
	}
}
