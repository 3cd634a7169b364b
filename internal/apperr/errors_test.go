package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfWrappedError(t *testing.T) {
	err := fmt.Errorf("booking: create: %w", SlotUnavailable(""))
	assert.Equal(t, KindSlotUnavailable, KindOf(err))
	assert.True(t, IsKind(err, KindSlotUnavailable))
	assert.True(t, errors.Is(err, SlotUnavailable("other message")))
	assert.False(t, errors.Is(err, Validation("x")))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
}

func TestUpstreamUnwraps(t *testing.T) {
	cause := errors.New("card_declined")
	err := Upstream("stripe", "create payment intent", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "stripe")
}

func TestWriteJSON(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   Kind
	}{
		{Validation("bad date %q", "2024-13-01"), http.StatusBadRequest, KindValidation},
		{SlotUnavailable(""), http.StatusConflict, KindSlotUnavailable},
		{InvalidState("session cancelled"), http.StatusConflict, KindInvalidState},
		{Upstream("zoom", "create meeting", errors.New("503")), http.StatusBadGateway, KindUpstream},
		{Integrity("meeting deleted remotely only", errors.New("db down")), http.StatusInternalServerError, KindIntegrity},
		{NotFound("session"), http.StatusNotFound, KindNotFound},
		{errors.New("raw"), http.StatusInternalServerError, KindInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteJSON(rec, tt.err)
			assert.Equal(t, tt.status, rec.Code)

			var body struct {
				Error struct {
					Code Kind `json:"code"`
				} `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}
