package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/internal/counselors"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// SessionStore is the subset of the session store the provisioner mutates.
type SessionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	AttachMeeting(ctx context.Context, id uuid.UUID, handle sessions.MeetingHandle) error
	ReplaceMeeting(ctx context.Context, id uuid.UUID, handle sessions.MeetingHandle) error
	ClearMeeting(ctx context.Context, id uuid.UUID, meetingID int64) (bool, error)
}

// CounselorReader resolves the counselor's timezone.
type CounselorReader interface {
	GetByID(ctx context.Context, id string) (*counselors.Counselor, error)
}

// ProvisionerConfig tunes locking and time handling.
type ProvisionerConfig struct {
	LockTTL         time.Duration
	DefaultTimezone string
}

// Provisioner keeps provider meetings, local meeting records and session
// handles in step. Every operation is keyed by session and serialized with
// the Locker.
type Provisioner struct {
	sessions   SessionStore
	counselors CounselorReader
	meetings   Repository
	provider   Provider
	locker     Locker
	lockTTL    time.Duration
	defaultTZ  string
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
}

func NewProvisioner(ss SessionStore, cr CounselorReader, meetings Repository, provider Provider, locker Locker, cfg ProvisionerConfig, m *metrics.BookingMetrics, logger *logging.Logger) *Provisioner {
	if logger == nil {
		logger = logging.Default()
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Provisioner{
		sessions:   ss,
		counselors: cr,
		meetings:   meetings,
		provider:   provider,
		locker:     locker,
		lockTTL:    ttl,
		defaultTZ:  cfg.DefaultTimezone,
		metrics:    m,
		logger:     logger.Component("video"),
	}
}

func lockKey(sessionID uuid.UUID) string {
	return "video:session:" + sessionID.String()
}

func (p *Provisioner) lock(ctx context.Context, sessionID uuid.UUID) (func(), error) {
	release, ok, err := p.locker.Acquire(ctx, lockKey(sessionID), p.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Conflict("meeting operation already in progress for session %s", sessionID)
	}
	return release, nil
}

// CreateMeeting provisions a meeting for a confirmed session. Calling it
// again for the same session returns the existing meeting.
func (p *Provisioner) CreateMeeting(ctx context.Context, sessionID uuid.UUID) (*Meeting, error) {
	m, _, err := p.Provision(ctx, sessionID)
	return m, err
}

// Provision is CreateMeeting that also reports whether this call created
// the meeting. The answer is decided under the session lock.
func (p *Provisioner) Provision(ctx context.Context, sessionID uuid.UUID) (*Meeting, bool, error) {
	release, err := p.lock(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	defer release()

	sess, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if sess.Status != sessions.StatusConfirmed {
		return nil, false, apperr.InvalidState("session %s is %s; meetings require a confirmed session", sessionID, sess.Status)
	}

	existing, err := p.meetings.GetBySession(ctx, sessionID)
	switch {
	case err == nil:
		if sess.Meeting == nil || sess.Meeting.MeetingID != existing.MeetingID {
			if err := p.sessions.ReplaceMeeting(ctx, sessionID, handleOf(existing)); err != nil {
				return nil, false, err
			}
		}
		p.metrics.ObserveVideo("create", "existing")
		return existing, false, nil
	case !errors.Is(err, ErrNotFound):
		return nil, false, err
	}

	req, err := p.meetingRequest(ctx, sess)
	if err != nil {
		return nil, false, err
	}
	pm, err := p.provider.CreateMeeting(ctx, req)
	if err != nil {
		p.metrics.ObserveVideo("create", "error")
		p.logger.Warn("meeting creation failed", "error", err, "session_id", sessionID)
		return nil, false, err
	}

	m := &Meeting{
		MeetingID:   pm.ID,
		SessionID:   sessionID,
		Topic:       pm.Topic,
		JoinURL:     pm.JoinURL,
		StartURL:    pm.StartURL,
		StartTime:   req.Start,
		Duration:    req.Duration,
		Status:      pm.Status,
		CounselorID: sess.CounselorID,
		PatientID:   sess.PatientID,
	}
	if m.Topic == "" {
		m.Topic = req.Topic
	}
	if err := p.meetings.Insert(ctx, m); err != nil {
		return nil, false, p.compensate(ctx, sessionID, pm.ID, err)
	}
	attach := p.sessions.AttachMeeting
	if sess.Meeting != nil {
		// a stale handle survived an earlier partial delete
		attach = p.sessions.ReplaceMeeting
	}
	if err := attach(ctx, sessionID, handleOf(m)); err != nil {
		if _, delErr := p.meetings.Delete(ctx, pm.ID); delErr != nil {
			return nil, false, apperr.Integrity(fmt.Sprintf("meeting %d recorded but not attached to session %s", pm.ID, sessionID), errors.Join(err, delErr))
		}
		return nil, false, p.compensate(ctx, sessionID, pm.ID, err)
	}

	p.metrics.ObserveVideo("create", "ok")
	p.logger.Info("meeting provisioned", "session_id", sessionID, "meeting_id", pm.ID)
	return m, true, nil
}

// compensate removes a provider meeting whose local bookkeeping failed.
func (p *Provisioner) compensate(ctx context.Context, sessionID uuid.UUID, meetingID int64, cause error) error {
	delErr := p.provider.DeleteMeeting(ctx, meetingID)
	if delErr != nil && !errors.Is(delErr, ErrMeetingGone) {
		p.metrics.ObserveVideo("create", "integrity_error")
		p.logger.Error("orphaned provider meeting", "session_id", sessionID, "meeting_id", meetingID, "error", delErr, "cause", cause)
		return apperr.Integrity(fmt.Sprintf("meeting %d exists at provider but could not be recorded for session %s", meetingID, sessionID), errors.Join(cause, delErr))
	}
	p.metrics.ObserveVideo("create", "error")
	return fmt.Errorf("video: persist meeting for session %s: %w", sessionID, cause)
}

// UpdateMeeting moves the session's meeting to the session's current date,
// time and duration.
func (p *Provisioner) UpdateMeeting(ctx context.Context, sessionID uuid.UUID) (*Meeting, error) {
	release, err := p.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := p.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m, err := p.meetings.GetBySession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("session %s has no meeting", sessionID)
	}
	if err != nil {
		return nil, err
	}
	req, err := p.meetingRequest(ctx, sess)
	if err != nil {
		return nil, err
	}
	if err := p.provider.UpdateMeeting(ctx, m.MeetingID, req); err != nil {
		p.metrics.ObserveVideo("update", "error")
		if errors.Is(err, ErrMeetingGone) {
			return nil, apperr.Integrity(fmt.Sprintf("meeting %d is recorded for session %s but missing at provider", m.MeetingID, sessionID), err)
		}
		return nil, err
	}
	if err := p.meetings.UpdateSchedule(ctx, m.MeetingID, req.Start, req.Duration); err != nil {
		p.metrics.ObserveVideo("update", "integrity_error")
		return nil, apperr.Integrity(fmt.Sprintf("meeting %d rescheduled at provider but local record is stale", m.MeetingID), err)
	}
	m.StartTime, m.Duration = req.Start, req.Duration
	p.metrics.ObserveVideo("update", "ok")
	return m, nil
}

// DeleteMeeting removes the provider meeting, then the local record and the
// session handle. Local failures after the provider delete are integrity
// errors.
func (p *Provisioner) DeleteMeeting(ctx context.Context, meetingID int64) error {
	m, err := p.meetings.GetByMeetingID(ctx, meetingID)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("meeting %d not found", meetingID)
	}
	if err != nil {
		return err
	}
	release, err := p.lock(ctx, m.SessionID)
	if err != nil {
		return err
	}
	defer release()

	if err := p.provider.DeleteMeeting(ctx, meetingID); err != nil && !errors.Is(err, ErrMeetingGone) {
		p.metrics.ObserveVideo("delete", "error")
		return err
	}
	if _, err := p.meetings.Delete(ctx, meetingID); err != nil {
		p.metrics.ObserveVideo("delete", "integrity_error")
		p.logger.Error("meeting deleted at provider but local record remains", "meeting_id", meetingID, "session_id", m.SessionID, "error", err)
		return apperr.Integrity(fmt.Sprintf("meeting %d deleted at provider but local record remains", meetingID), err)
	}
	if _, err := p.sessions.ClearMeeting(ctx, m.SessionID, meetingID); err != nil {
		p.metrics.ObserveVideo("delete", "integrity_error")
		p.logger.Error("meeting deleted but session handle remains", "meeting_id", meetingID, "session_id", m.SessionID, "error", err)
		return apperr.Integrity(fmt.Sprintf("meeting %d deleted but session %s still references it", meetingID, m.SessionID), err)
	}
	p.metrics.ObserveVideo("delete", "ok")
	p.logger.Info("meeting deleted", "meeting_id", meetingID, "session_id", m.SessionID)
	return nil
}

// MeetingForSession returns the local meeting record, if any.
func (p *Provisioner) MeetingForSession(ctx context.Context, sessionID uuid.UUID) (*Meeting, error) {
	m, err := p.meetings.GetBySession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return m, err
}

// MeetingByID returns the local record for a provider meeting id.
func (p *Provisioner) MeetingByID(ctx context.Context, meetingID int64) (*Meeting, error) {
	m, err := p.meetings.GetByMeetingID(ctx, meetingID)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("meeting %d not found", meetingID)
	}
	return m, err
}

func (p *Provisioner) meetingRequest(ctx context.Context, sess *sessions.Session) (MeetingRequest, error) {
	c, err := p.counselors.GetByID(ctx, sess.CounselorID)
	if err != nil {
		return MeetingRequest{}, err
	}
	loc := c.Location(p.defaultTZ)
	start, err := time.ParseInLocation("2006-01-02 15:04", sess.Date+" "+sess.Time, loc)
	if err != nil {
		return MeetingRequest{}, apperr.Validation("session %s has unparseable start %s %s", sess.ID, sess.Date, sess.Time)
	}
	topic := "Counseling session"
	if c.DisplayName != "" {
		topic = "Counseling session with " + c.DisplayName
	}
	return MeetingRequest{Topic: topic, Start: start, Timezone: loc.String(), Duration: sess.Duration}, nil
}

func handleOf(m *Meeting) sessions.MeetingHandle {
	return sessions.MeetingHandle{MeetingID: m.MeetingID, JoinURL: m.JoinURL, StartURL: m.StartURL}
}
