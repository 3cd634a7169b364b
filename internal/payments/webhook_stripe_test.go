package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/internal/events"
)

const testWebhookSecret = "whsec_test123"

func buildStripePayload(t *testing.T, eventID, eventType, intentID string, metadata map[string]string) []byte {
	t.Helper()
	evt := map[string]any{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"created":     time.Now().Unix(),
		"api_version": "2023-10-16",
		"data": map[string]any{
			"object": map[string]any{
				"id":       intentID,
				"object":   "payment_intent",
				"amount":   10000,
				"currency": "usd",
				"status":   "succeeded",
				"metadata": metadata,
			},
		},
	}
	data, err := json.Marshal(evt)
	require.NoError(t, err)
	return data
}

func stripeSign(payload []byte, secret string) string {
	ts := fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts + "." + string(payload)))
	sig := hex.EncodeToString(mac.Sum(nil))
	return fmt.Sprintf("t=%s,v1=%s", ts, sig)
}

type webhookFixture struct {
	records   *InMemoryRepository
	processed *events.MemoryProcessedStore
	notifier  *events.MemoryNotifier
	handler   *StripeWebhookHandler
}

func newWebhookFixture() *webhookFixture {
	f := &webhookFixture{
		records:   NewInMemoryRepository(),
		processed: events.NewMemoryProcessedStore(),
		notifier:  &events.MemoryNotifier{},
	}
	f.handler = NewStripeWebhookHandler(testWebhookSecret, f.records, f.processed, f.notifier, nil, nil)
	return f
}

func (f *webhookFixture) post(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signature)
	rec := httptest.NewRecorder()
	f.handler.Handle(rec, req)
	return rec
}

func TestStripeWebhookSucceeded(t *testing.T) {
	f := newWebhookFixture()
	sessionID := uuid.New()
	require.NoError(t, f.records.Insert(context.Background(), &Record{SessionID: sessionID, IntentID: "pi_1"}))

	body := buildStripePayload(t, "evt_1", "payment_intent.succeeded", "pi_1", map[string]string{"session_id": sessionID.String()})
	rec := f.post(body, stripeSign(body, testWebhookSecret))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, StatusSucceeded, f.records.Records()[0].Status)
	assert.Equal(t, []events.Notification{{Type: events.TypePaymentSucceeded, SessionID: sessionID}}, f.notifier.Sent())
	seen, _ := f.processed.AlreadyProcessed(context.Background(), "stripe", "evt_1")
	assert.True(t, seen)
}

func TestStripeWebhookDuplicateIsAcknowledgedOnce(t *testing.T) {
	f := newWebhookFixture()
	sessionID := uuid.New()
	require.NoError(t, f.records.Insert(context.Background(), &Record{SessionID: sessionID, IntentID: "pi_1"}))

	body := buildStripePayload(t, "evt_dup", "payment_intent.payment_failed", "pi_1", map[string]string{"session_id": sessionID.String()})
	for i := 0; i < 2; i++ {
		rec := f.post(body, stripeSign(body, testWebhookSecret))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 1, f.notifier.Count(events.TypePaymentFailed))
	assert.Equal(t, StatusFailed, f.records.Records()[0].Status)
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	f := newWebhookFixture()
	body := buildStripePayload(t, "evt_1", "payment_intent.succeeded", "pi_1", nil)
	rec := f.post(body, stripeSign(body, "whsec_wrong"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.notifier.Sent())
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	f := newWebhookFixture()
	body := buildStripePayload(t, "evt_2", "charge.refunded", "ch_1", nil)
	rec := f.post(body, stripeSign(body, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.notifier.Sent())
}

func TestStripeWebhookMissingSessionMetadata(t *testing.T) {
	f := newWebhookFixture()
	body := buildStripePayload(t, "evt_3", "payment_intent.succeeded", "pi_orphan", map[string]string{})
	rec := f.post(body, stripeSign(body, testWebhookSecret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.notifier.Sent())
}

func TestStripeWebhookRequiresSecret(t *testing.T) {
	h := NewStripeWebhookHandler("", NewInMemoryRepository(), events.NewMemoryProcessedStore(), nil, nil, nil)
	rec := httptest.NewRecorder()
	h.Handle(rec, httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader([]byte(`{}`))))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
