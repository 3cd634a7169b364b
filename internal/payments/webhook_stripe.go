package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/wolfman30/teletherapy-platform/internal/events"
	"github.com/wolfman30/teletherapy-platform/internal/observability/metrics"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

const maxWebhookBody = 1 << 16

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)
}

type statusStore interface {
	UpdateStatusByIntent(ctx context.Context, intentID, status string) (bool, error)
}

// StripeWebhookHandler keeps payment records in sync with
// payment_intent.succeeded and payment_intent.payment_failed events.
type StripeWebhookHandler struct {
	secret    string
	records   statusStore
	processed processedTracker
	notifier  events.Notifier
	metrics   *metrics.BookingMetrics
	logger    *logging.Logger
}

func NewStripeWebhookHandler(secret string, records statusStore, processed processedTracker, notifier events.Notifier, m *metrics.BookingMetrics, logger *logging.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StripeWebhookHandler{
		secret:    secret,
		records:   records,
		processed: processed,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.Component("stripe_webhook"),
	}
}

func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		h.logger.Error("stripe webhook secret not configured")
		http.Error(w, "webhook not configured", http.StatusServiceUnavailable)
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	evt, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		h.logger.Warn("stripe signature rejected", "error", err)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var status, notifyType string
	switch evt.Type {
	case "payment_intent.succeeded":
		status, notifyType = StatusSucceeded, events.TypePaymentSucceeded
	case "payment_intent.payment_failed":
		status, notifyType = StatusFailed, events.TypePaymentFailed
	default:
		h.metrics.ObserveWebhook(string(evt.Type), "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	if seen, err := h.processed.AlreadyProcessed(r.Context(), "stripe", evt.ID); err != nil {
		h.logger.Error("processed lookup failed", "error", err, "event_id", evt.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if seen {
		h.metrics.ObserveWebhook(string(evt.Type), "duplicate")
		w.WriteHeader(http.StatusOK)
		return
	}

	var pi stripe.PaymentIntent
	if err := json.Unmarshal(evt.Data.Raw, &pi); err != nil {
		h.logger.Error("failed to decode payment intent", "error", err, "event_id", evt.ID)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	updated, err := h.records.UpdateStatusByIntent(r.Context(), pi.ID, status)
	if err != nil {
		h.logger.Error("failed to update payment record", "error", err, "intent_id", pi.ID)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if !updated {
		h.logger.Warn("no updatable payment record for intent", "intent_id", pi.ID, "status", status)
	}

	sessionID, err := uuid.Parse(pi.Metadata["session_id"])
	if err != nil {
		// acknowledge so Stripe stops retrying; nothing to correlate
		h.logger.Warn("payment intent missing session_id metadata", "intent_id", pi.ID, "event_id", evt.ID)
	} else if h.notifier != nil {
		if err := h.notifier.Notify(r.Context(), notifyType, sessionID); err != nil {
			h.logger.Error("failed to enqueue payment notification", "error", err, "session_id", sessionID)
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
	}

	if _, err := h.processed.MarkProcessed(r.Context(), "stripe", evt.ID, string(evt.Type)); err != nil {
		h.logger.Error("failed to record processed event", "error", err, "event_id", evt.ID)
	}
	h.metrics.ObserveWebhook(string(evt.Type), "processed")
	h.logger.Info("stripe payment event applied", "event_id", evt.ID, "intent_id", pi.ID, "status", status)
	w.WriteHeader(http.StatusOK)
}
