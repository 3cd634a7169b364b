package apperr

import (
	"encoding/json"
	"errors"
	"net/http"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code     Kind   `json:"code"`
	Message  string `json:"message"`
	Provider string `json:"provider,omitempty"`
}

// HTTPStatus maps a Kind to the response status used at the API boundary.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindSlotUnavailable, KindInvalidState, KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Detail renders err as the JSON detail object embedded in responses.
func Detail(err error) any {
	if err == nil {
		return nil
	}
	return detailOf(err)
}

func detailOf(err error) errorDetail {
	var e *Error
	if errors.As(err, &e) {
		// wrapped causes stay in logs, only the message is exposed
		return errorDetail{Code: e.Kind, Message: e.Message, Provider: e.Provider}
	}
	return errorDetail{Code: KindInternal, Message: "internal error"}
}

// WriteJSON writes {"error":{"code","message"}} with the status derived from err.
func WriteJSON(w http.ResponseWriter, err error) {
	detail := detailOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(HTTPStatus(detail.Code))
	_ = json.NewEncoder(w).Encode(errorBody{Error: detail})
}
