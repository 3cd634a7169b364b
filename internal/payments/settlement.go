package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/internal/counselors"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// Routing modes for an intent.
const (
	ModeConnect  = "connect"  // fee withheld, remainder transferred to the counselor
	ModePlatform = "platform" // platform retains the whole charge
)

// IntentResult is what the booking flow hands back to the client.
type IntentResult struct {
	SessionID    uuid.UUID `json:"sessionId"`
	IntentID     string    `json:"intentId"`
	ClientSecret string    `json:"clientSecret"`
	Amount       int64     `json:"amount"`
	Currency     string    `json:"currency"`
	Split        Split     `json:"split"`
	Mode         string    `json:"mode"`
	Destination  string    `json:"destination,omitempty"`
	Status       string    `json:"status"`
}

// SettlementConfig holds the commission and currency.
type SettlementConfig struct {
	Currency string
	// PlatformFeeBPS is the commission in basis points; 0 means none and a
	// negative value selects DefaultPlatformFeeBPS.
	PlatformFeeBPS int64
}

// Settlement computes fee splits and issues payment intents for sessions.
type Settlement struct {
	processor Processor
	records   Repository
	currency  string
	feeBPS    int64
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

func NewSettlement(processor Processor, records Repository, cfg SettlementConfig, m *metrics.BookingMetrics, logger *logging.Logger) *Settlement {
	if logger == nil {
		logger = logging.Default()
	}
	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}
	bps := cfg.PlatformFeeBPS
	if bps < 0 {
		bps = DefaultPlatformFeeBPS
	}
	return &Settlement{
		processor: processor,
		records:   records,
		currency:  currency,
		feeBPS:    bps,
		metrics:   m,
		logger:    logger.Component("settlement"),
	}
}

// CreateIntent requests a payment intent for the session. A counselor whose
// connected account has active transfers gets the counselor share routed to
// it; otherwise the platform keeps the full amount.
func (s *Settlement) CreateIntent(ctx context.Context, sess *sessions.Session, c *counselors.Counselor) (*IntentResult, error) {
	split, err := ComputeSplitBPS(c.FeeCents, s.feeBPS)
	if err != nil {
		return nil, err
	}
	if split.Total == 0 {
		return nil, apperr.Validation("counselor %s has no consultation fee configured", c.ID)
	}

	// the key is stable until the latest recorded intent is abandoned, so
	// retries and concurrent callers converge on one intent
	key := "session:" + sess.ID.String()
	rec, err := s.records.LatestForSession(ctx, sess.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("payments: latest intent: %w", err)
	default:
		live, err := s.liveResult(ctx, rec)
		if err != nil {
			return nil, err
		}
		if live != nil {
			s.metrics.ObservePaymentIntent(live.Mode, "reused")
			return live, nil
		}
		key += ":after:" + rec.IntentID
	}
	req := IntentRequest{
		Amount:         split.Total,
		Currency:       s.currency,
		Description:    fmt.Sprintf("Counseling session %s %s", sess.Date, sess.Time),
		IdempotencyKey: key,
		Metadata: map[string]string{
			"session_id":   sess.ID.String(),
			"counselor_id": sess.CounselorID,
			"patient_id":   sess.PatientID,
		},
	}
	mode := ModePlatform
	if c.StripeAccountID != "" {
		acct, err := s.processor.RetrieveConnectedAccount(ctx, c.StripeAccountID)
		if err != nil {
			s.metrics.ObservePaymentIntent(ModeConnect, "account_error")
			return nil, err
		}
		if acct.TransfersActive {
			mode = ModeConnect
			req.ApplicationFee = split.PlatformFee
			req.TransferDestination = acct.ID
		} else {
			s.logger.Info("connected account cannot receive transfers, platform retains charge",
				"counselor_id", c.ID, "account_id", acct.ID, "session_id", sess.ID)
		}
	}

	intent, err := s.processor.CreatePaymentIntent(ctx, req)
	if err != nil {
		s.metrics.ObservePaymentIntent(mode, "error")
		return nil, err
	}
	s.metrics.ObservePaymentIntent(mode, "created")

	rec = &Record{
		SessionID:            sess.ID,
		IntentID:             intent.ID,
		AmountCents:          split.Total,
		PlatformFeeCents:     split.PlatformFee,
		CounselorAmountCents: split.CounselorAmount,
		Currency:             s.currency,
		Destination:          req.TransferDestination,
		Status:               StatusRequiresPayment,
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		// the intent exists at the processor and carries session_id metadata
		s.logger.Error("failed to persist payment record", "error", err, "session_id", sess.ID, "intent_id", intent.ID)
	}

	return &IntentResult{
		SessionID:    sess.ID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       split.Total,
		Currency:     s.currency,
		Split:        split,
		Mode:         mode,
		Destination:  req.TransferDestination,
		Status:       intent.Status,
	}, nil
}

// Existing returns the session's most recent intent if the processor still
// considers it usable, or nil.
func (s *Settlement) Existing(ctx context.Context, sessionID uuid.UUID) (*IntentResult, error) {
	rec, err := s.records.LatestForSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.liveResult(ctx, rec)
}

// liveResult rebuilds the result for a recorded intent, or returns nil when
// the processor has canceled it.
func (s *Settlement) liveResult(ctx context.Context, rec *Record) (*IntentResult, error) {
	intent, err := s.processor.RetrievePaymentIntent(ctx, rec.IntentID)
	if err != nil {
		return nil, err
	}
	if intent.Status == "canceled" {
		return nil, nil
	}
	mode := ModePlatform
	if rec.Destination != "" {
		mode = ModeConnect
	}
	return &IntentResult{
		SessionID:    rec.SessionID,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       rec.AmountCents,
		Currency:     rec.Currency,
		Split: Split{
			Total:           rec.AmountCents,
			PlatformFee:     rec.PlatformFeeCents,
			CounselorAmount: rec.CounselorAmountCents,
		},
		Mode:        mode,
		Destination: rec.Destination,
		Status:      intent.Status,
	}, nil
}
