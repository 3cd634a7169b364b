// Package booking turns a slot request into a confirmed, paid and (optionally)
// video-backed session.
package booking

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/internal/availability"
	"github.com/wolfman30/teletherapy-platform/internal/counselors"
	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/internal/payments"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
	"github.com/wolfman30/teletherapy-platform/internal/video"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

var tracer = otel.Tracer("teletherapy.internal.booking")

// MaxDuration bounds a requested session length in minutes.
const MaxDuration = 240

// State is the booking flow's position. FAILED is terminal for the request;
// a session created before the failure stays booked.
type State string

const (
	StateRequested        State = "REQUESTED"
	StateSlotVerified     State = "SLOT_VERIFIED"
	StateSessionCreated   State = "SESSION_CREATED"
	StatePaymentInitiated State = "PAYMENT_INITIATED"
	StateConfirmed        State = "CONFIRMED"
	StateFailed           State = "FAILED"
)

// SlotChecker re-verifies a slot against the live stores.
type SlotChecker interface {
	IsFree(ctx context.Context, counselorID, date, clock string) (bool, error)
}

// SessionStore is the subset of the session store the orchestrator drives.
type SessionStore interface {
	CreateBooked(ctx context.Context, patientID, counselorID, date, clock string, duration int) (*sessions.Session, error)
	GetByID(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID) (*sessions.Session, error)
	Reschedule(ctx context.Context, id uuid.UUID, date, clock string, duration int) (*sessions.Session, error)
}

// CounselorReader loads the counselor's fee, payout account and timezone.
type CounselorReader interface {
	GetByID(ctx context.Context, id string) (*counselors.Counselor, error)
}

// Settler issues payment intents.
type Settler interface {
	CreateIntent(ctx context.Context, sess *sessions.Session, c *counselors.Counselor) (*payments.IntentResult, error)
	Existing(ctx context.Context, sessionID uuid.UUID) (*payments.IntentResult, error)
}

// MeetingProvisioner manages a session's video meeting.
type MeetingProvisioner interface {
	Provision(ctx context.Context, sessionID uuid.UUID) (*video.Meeting, bool, error)
	UpdateMeeting(ctx context.Context, sessionID uuid.UUID) (*video.Meeting, error)
	MeetingForSession(ctx context.Context, sessionID uuid.UUID) (*video.Meeting, error)
}

// Request is a patient's booking request.
type Request struct {
	PatientID   string
	CounselorID string
	Date        string
	Time        string
	Duration    int
}

// Result is the outcome of a booking flow. A non-nil Session with a
// PaymentError means the slot is held but payment setup must be retried.
type Result struct {
	Session      *sessions.Session
	State        State
	Payment      *payments.IntentResult
	PaymentError error
	Meeting      *video.Meeting
	VideoError   error
}

// Config toggles optional steps.
type Config struct {
	AutoProvisionVideo bool
}

// Orchestrator sequences slot verification, session creation, payment and
// video provisioning. It holds no state between calls.
type Orchestrator struct {
	slots      SlotChecker
	sessions   SessionStore
	counselors CounselorReader
	settlement Settler
	video      MeetingProvisioner
	notifier   events.Notifier
	cfg        Config
	metrics    *metrics.BookingMetrics
	logger     *logging.Logger
	now        func() time.Time
}

func NewOrchestrator(sc SlotChecker, ss SessionStore, cr CounselorReader, settlement Settler, vp MeetingProvisioner, notifier events.Notifier, cfg Config, m *metrics.BookingMetrics, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		slots:      sc,
		sessions:   ss,
		counselors: cr,
		settlement: settlement,
		video:      vp,
		notifier:   notifier,
		cfg:        cfg,
		metrics:    m,
		logger:     logger.Component("booking"),
		now:        time.Now,
	}
}

func validate(req *Request) error {
	if strings.TrimSpace(req.PatientID) == "" {
		return apperr.Validation("patientId is required")
	}
	if strings.TrimSpace(req.CounselorID) == "" {
		return apperr.Validation("counselorId is required")
	}
	if _, err := availability.ParseDate(req.Date); err != nil {
		return err
	}
	if err := availability.ValidateSlot(req.Time); err != nil {
		return err
	}
	if req.Duration == 0 {
		req.Duration = sessions.DefaultDuration
	}
	if req.Duration < 0 || req.Duration > MaxDuration {
		return apperr.Validation("duration must be between 1 and %d minutes", MaxDuration)
	}
	return nil
}

// RequestBooking runs the booking flow. It returns an error only when no
// session was created or a created session could not be read back; payment
// and video failures after creation are reported on the Result.
func (o *Orchestrator) RequestBooking(ctx context.Context, req Request) (res *Result, err error) {
	ctx, span := tracer.Start(ctx, "booking.request")
	defer span.End()
	started := o.now()
	res = &Result{State: StateRequested}
	defer func() {
		outcome := "confirmed"
		switch {
		case err != nil:
			outcome = string(apperr.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case res.PaymentError != nil:
			outcome = "payment_failed"
		}
		o.metrics.ObserveBooking(outcome, o.now().Sub(started).Seconds())
	}()

	if err := validate(&req); err != nil {
		res.State = StateFailed
		return res, err
	}
	span.SetAttributes(
		attribute.String("booking.counselor_id", req.CounselorID),
		attribute.String("booking.date", req.Date),
		attribute.String("booking.time", req.Time),
	)

	counselor, err := o.counselors.GetByID(ctx, req.CounselorID)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	free, err := o.slots.IsFree(ctx, req.CounselorID, req.Date, req.Time)
	if err != nil {
		res.State = StateFailed
		return res, err
	}
	if !free {
		res.State = StateFailed
		return res, apperr.SlotUnavailable("slot " + req.Date + " " + req.Time + " is not available")
	}
	res.State = StateSlotVerified

	sess, err := o.sessions.CreateBooked(ctx, req.PatientID, req.CounselorID, req.Date, req.Time, req.Duration)
	if err != nil {
		res.State = StateFailed
		if apperr.IsKind(err, apperr.KindSlotUnavailable) {
			o.logger.Info("lost booking race", "counselor_id", req.CounselorID, "date", req.Date, "time", req.Time)
		}
		return res, err
	}
	res.Session = sess
	res.State = StateSessionCreated
	span.SetAttributes(attribute.String("booking.session_id", sess.ID.String()))
	o.logger.Info("session booked", "session_id", sess.ID, "counselor_id", sess.CounselorID, "date", sess.Date, "time", sess.Time)

	intent, err := o.settlement.CreateIntent(ctx, sess, counselor)
	if err != nil {
		res.State = StateFailed
		res.PaymentError = err
		o.logger.Warn("payment setup failed, session remains booked", "session_id", sess.ID, "error", err)
		o.notify(ctx, events.TypePaymentSetupFailed, sess.ID)
		return res, nil
	}
	res.Payment = intent
	res.State = StatePaymentInitiated

	if err := o.confirm(ctx, res); err != nil {
		return res, err
	}
	o.provisionAfterConfirm(ctx, res)
	return res, nil
}

func (o *Orchestrator) confirm(ctx context.Context, res *Result) error {
	wasBooked := res.Session.Status == sessions.StatusBooked
	confirmed, err := o.sessions.MarkConfirmed(ctx, res.Session.ID)
	if err != nil {
		res.State = StateFailed
		o.logger.Error("failed to confirm session after payment setup", "session_id", res.Session.ID, "error", err)
		return err
	}
	res.Session = confirmed
	res.State = StateConfirmed
	if wasBooked {
		o.notify(ctx, events.TypeBookingConfirmed, confirmed.ID)
	}
	return nil
}

func (o *Orchestrator) provisionAfterConfirm(ctx context.Context, res *Result) {
	if !o.cfg.AutoProvisionVideo || o.video == nil {
		return
	}
	m, err := o.ProvisionVideo(ctx, res.Session.ID)
	if err != nil {
		res.VideoError = err
		o.logger.Warn("video provisioning failed, retry via meeting endpoint", "session_id", res.Session.ID, "error", err)
		return
	}
	res.Meeting = m
	if sess, err := o.sessions.GetByID(ctx, res.Session.ID); err == nil {
		res.Session = sess
	}
}

// CreatePaymentIntent returns a usable intent for a booked or confirmed
// session, reusing the recorded one when the processor still accepts it, and
// confirms the session.
func (o *Orchestrator) CreatePaymentIntent(ctx context.Context, sessionID uuid.UUID) (*Result, error) {
	ctx, span := tracer.Start(ctx, "booking.payment_intent")
	defer span.End()
	span.SetAttributes(attribute.String("booking.session_id", sessionID.String()))

	sess, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status != sessions.StatusBooked && sess.Status != sessions.StatusConfirmed {
		return nil, apperr.InvalidState("session %s is %s; payment cannot be initiated", sessionID, sess.Status)
	}
	res := &Result{Session: sess, State: StateSessionCreated}

	// a recorded intent that cannot be checked must not be replaced, or the
	// patient could end up with two payable intents
	intent, err := o.settlement.Existing(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if intent == nil {
		counselor, err := o.counselors.GetByID(ctx, sess.CounselorID)
		if err != nil {
			return nil, err
		}
		intent, err = o.settlement.CreateIntent(ctx, sess, counselor)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	}
	res.Payment = intent
	res.State = StatePaymentInitiated

	if err := o.confirm(ctx, res); err != nil {
		return res, err
	}
	if res.Session.Meeting == nil {
		o.provisionAfterConfirm(ctx, res)
	}
	return res, nil
}

// ProvisionVideo creates (or returns) the session's meeting.
func (o *Orchestrator) ProvisionVideo(ctx context.Context, sessionID uuid.UUID) (*video.Meeting, error) {
	if o.video == nil {
		return nil, apperr.Upstream("video", "video provider not configured", nil)
	}
	m, created, err := o.video.Provision(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if created {
		o.notify(ctx, events.TypeMeetingReady, sessionID)
	}
	return m, nil
}

// RescheduleRequest moves a session.
type RescheduleRequest struct {
	Date     string
	Time     string
	Duration int
}

// RescheduleSession moves a session to a new free slot and re-syncs its
// meeting. Keeping the same slot with a new duration skips the slot check.
func (o *Orchestrator) RescheduleSession(ctx context.Context, sessionID uuid.UUID, req RescheduleRequest) (*Result, error) {
	ctx, span := tracer.Start(ctx, "booking.reschedule")
	defer span.End()

	sess, err := o.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	full := Request{PatientID: sess.PatientID, CounselorID: sess.CounselorID, Date: req.Date, Time: req.Time, Duration: req.Duration}
	if err := validate(&full); err != nil {
		return nil, err
	}
	if full.Date != sess.Date || full.Time != sess.Time {
		free, err := o.slots.IsFree(ctx, sess.CounselorID, full.Date, full.Time)
		if err != nil {
			return nil, err
		}
		if !free {
			return nil, apperr.SlotUnavailable("slot " + full.Date + " " + full.Time + " is not available")
		}
	}
	moved, err := o.sessions.Reschedule(ctx, sessionID, full.Date, full.Time, full.Duration)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	res := &Result{Session: moved, State: StateConfirmed}
	if moved.Status == sessions.StatusBooked {
		res.State = StateSessionCreated
	}
	o.logger.Info("session rescheduled", "session_id", sessionID, "date", moved.Date, "time", moved.Time)

	if o.video == nil {
		return res, nil
	}
	existing, err := o.video.MeetingForSession(ctx, sessionID)
	if err != nil || existing == nil {
		res.VideoError = err
		return res, nil
	}
	m, err := o.video.UpdateMeeting(ctx, sessionID)
	if err != nil {
		res.VideoError = err
		o.logger.Warn("meeting update failed after reschedule", "session_id", sessionID, "error", err)
		return res, nil
	}
	res.Meeting = m
	return res, nil
}

// Session loads a session by id.
func (o *Orchestrator) Session(ctx context.Context, id uuid.UUID) (*sessions.Session, error) {
	return o.sessions.GetByID(ctx, id)
}

func (o *Orchestrator) notify(ctx context.Context, eventType string, sessionID uuid.UUID) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, eventType, sessionID); err != nil {
		o.logger.Warn("notification not recorded", "type", eventType, "session_id", sessionID, "error", err)
	}
}
