// Package apperr defines the typed failures shared by the scheduling core.
// Each failure carries a stable Kind so API clients can branch on
// conflict-vs-fatal without parsing messages.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the stable discriminator exposed to API clients.
type Kind string

const (
	KindValidation      Kind = "validation_error"
	KindSlotUnavailable Kind = "slot_unavailable"
	KindInvalidState    Kind = "invalid_state_transition"
	KindUpstream        Kind = "upstream_provider_error"
	KindIntegrity       Kind = "integrity_error"
	KindNotFound        Kind = "not_found"
	KindForbidden       Kind = "forbidden"
	KindConflict        Kind = "conflict"
	KindInternal        Kind = "internal_error"
)

// Error is a typed failure. Provider is set for upstream failures
// ("stripe", "zoom").
type Error struct {
	Kind     Kind
	Message  string
	Provider string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Kind, so errors.Is(err, apperr.SlotUnavailable("")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func SlotUnavailable(msg string) error {
	if msg == "" {
		msg = "slot is no longer available"
	}
	return &Error{Kind: KindSlotUnavailable, Message: msg}
}

func InvalidState(format string, args ...any) error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Upstream wraps a failure returned by an external provider.
func Upstream(provider, msg string, err error) error {
	return &Error{Kind: KindUpstream, Provider: provider, Message: msg, Err: err}
}

// Integrity reports a partial failure across two systems that needs manual reconciliation.
func Integrity(msg string, err error) error {
	return &Error{Kind: KindIntegrity, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
