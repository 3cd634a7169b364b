package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/internal/auth"
)

func testRouter(f *fixture) http.Handler {
	h := NewHandler(f.orchestrator, f.provisioner, nil)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := auth.Principal{UserID: r.Header.Get("X-Test-User"), Role: auth.Role(r.Header.Get("X-Test-Role"))}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	})
	r.Post("/booking", h.Book)
	r.Post("/payment/intent", h.CreateIntent)
	r.Get("/sessions/{id}", h.GetSession)
	r.Post("/sessions/{id}/meeting", h.ProvisionMeeting)
	r.Put("/sessions/{id}/meeting", h.RescheduleMeeting)
	r.Delete("/meetings/{meetingId}", h.DeleteMeeting)
	return r
}

func do(t *testing.T, h http.Handler, method, path, user string, role auth.Role, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-Test-User", user)
	req.Header.Set("X-Test-Role", string(role))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestBookHandlerFlow(t *testing.T) {
	f := newFixture(t, Config{AutoProvisionVideo: true})
	f.publish(t, "c-1", "2024-06-10", "13:00", "14:00")
	h := testRouter(f)

	rec := do(t, h, http.MethodPost, "/booking", "p-1", auth.RolePatient, BookingRequest{CounselorID: "c-1", Date: "2024-06-10", Time: "13:00"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var booked struct {
		SessionID    string `json:"sessionId"`
		Status       string `json:"status"`
		ClientSecret string `json:"clientSecret"`
		Amount       int64  `json:"amount"`
		Meeting      struct {
			MeetingID    int64  `json:"meetingId"`
			JoinURL      string `json:"joinUrl"`
			HostStartURL string `json:"hostStartUrl"`
		} `json:"meeting"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booked))
	assert.Equal(t, "confirmed", booked.Status)
	assert.NotEmpty(t, booked.ClientSecret)
	assert.Equal(t, int64(10000), booked.Amount)
	assert.NotEmpty(t, booked.Meeting.JoinURL)
	assert.Empty(t, booked.Meeting.HostStartURL, "patients never see the host link")

	rec = do(t, h, http.MethodPost, "/booking", "p-2", auth.RolePatient, BookingRequest{CounselorID: "c-1", Date: "2024-06-10", Time: "13:00"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slot_unavailable"`)

	// counselor sees the host link, strangers see nothing
	rec = do(t, h, http.MethodGet, "/sessions/"+booked.SessionID, "c-1", auth.RoleCounselor, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "zak=host")

	rec = do(t, h, http.MethodGet, "/sessions/"+booked.SessionID, "p-2", auth.RolePatient, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// provisioning again is idempotent
	rec = do(t, h, http.MethodPost, "/sessions/"+booked.SessionID+"/meeting", "p-1", auth.RolePatient, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), fmt.Sprintf(`"meetingId":%d`, booked.Meeting.MeetingID))

	// only the counselor may delete
	path := fmt.Sprintf("/meetings/%d", booked.Meeting.MeetingID)
	rec = do(t, h, http.MethodDelete, path, "p-1", auth.RolePatient, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = do(t, h, http.MethodDelete, path, "c-1", auth.RoleCounselor, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, http.MethodDelete, path, "c-1", auth.RoleCounselor, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBookHandlerReportsPaymentError(t *testing.T) {
	f := newFixture(t, Config{})
	f.publish(t, "c-1", "2024-06-10", "13:00")
	f.processor.CreateErr = fmt.Errorf("api down")
	h := testRouter(f)

	rec := do(t, h, http.MethodPost, "/booking", "p-1", auth.RolePatient, BookingRequest{CounselorID: "c-1", Date: "2024-06-10", Time: "13:00"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		SessionID    string `json:"sessionId"`
		Status       string `json:"status"`
		PaymentError struct {
			Code string `json:"code"`
		} `json:"paymentError"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "booked", body.Status)
	assert.Equal(t, "upstream_provider_error", body.PaymentError.Code)

	rec = do(t, h, http.MethodPost, "/payment/intent", "p-other", auth.RolePatient, IntentRequest{SessionID: body.SessionID})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	f.processor.CreateErr = nil
	rec = do(t, h, http.MethodPost, "/payment/intent", "p-1", auth.RolePatient, IntentRequest{SessionID: body.SessionID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status":"confirmed"`)
	assert.Contains(t, rec.Body.String(), `"clientSecret":"pi_fake_`)
}

func TestRescheduleHandlerRequiresCounselor(t *testing.T) {
	f := newFixture(t, Config{AutoProvisionVideo: true})
	f.publish(t, "c-1", "2024-06-10", "13:00", "15:00")
	h := testRouter(f)

	rec := do(t, h, http.MethodPost, "/booking", "p-1", auth.RolePatient, BookingRequest{CounselorID: "c-1", Date: "2024-06-10", Time: "13:00"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var booked struct {
		SessionID string `json:"sessionId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &booked))

	path := "/sessions/" + booked.SessionID + "/meeting"
	rec = do(t, h, http.MethodPut, path, "p-1", auth.RolePatient, RescheduleBody{Date: "2024-06-10", Time: "15:00"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPut, path, "c-1", auth.RoleCounselor, RescheduleBody{Date: "2024-06-10", Time: "15:00"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"time":"15:00"`)

	rec = do(t, h, http.MethodPut, path, "c-1", auth.RoleCounselor, RescheduleBody{Date: "2024-06-10", Time: "25:00"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlersRejectMalformedIDs(t *testing.T) {
	f := newFixture(t, Config{})
	h := testRouter(f)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/sessions/not-a-uuid", "p-1", auth.RolePatient, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodDelete, "/meetings/abc", "c-1", auth.RoleCounselor, nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/payment/intent", "p-1", auth.RolePatient, IntentRequest{SessionID: "x"}).Code)
}
