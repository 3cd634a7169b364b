// Package slots computes bookable slots: a counselor's declared availability
// for a day minus the times already held by non-cancelled sessions.
package slots

import (
	"context"
	"strings"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/internal/availability"
	"github.com/wolfman30/teletherapy-platform/internal/sessions"
)

// AvailabilityReader loads one day of declared availability. It returns nil
// when the counselor has not published that day.
type AvailabilityReader interface {
	Day(ctx context.Context, counselorID, date string) (*availability.Day, error)
}

// SessionFinder lists non-cancelled sessions for a counselor's day.
type SessionFinder interface {
	FindByCounselorAndDate(ctx context.Context, counselorID, date string) ([]sessions.Session, error)
}

// Resolver reads the stores fresh on every call; results are never cached.
type Resolver struct {
	availability AvailabilityReader
	sessions     SessionFinder
}

func NewResolver(av AvailabilityReader, sf SessionFinder) *Resolver {
	return &Resolver{availability: av, sessions: sf}
}

// Resolve returns the free slots for (counselorID, date) in declared order.
// An unpublished day has no slots.
func (r *Resolver) Resolve(ctx context.Context, counselorID, date string) ([]string, error) {
	if strings.TrimSpace(counselorID) == "" {
		return nil, apperr.Validation("counselorId is required")
	}
	if _, err := availability.ParseDate(date); err != nil {
		return nil, err
	}
	day, err := r.availability.Day(ctx, counselorID, date)
	if err != nil {
		return nil, err
	}
	if day == nil || len(day.AvailableSlots) == 0 {
		return []string{}, nil
	}
	booked, err := r.sessions.FindByCounselorAndDate(ctx, counselorID, date)
	if err != nil {
		return nil, err
	}
	return Subtract(day.AvailableSlots, booked), nil
}

// IsFree reports whether clock is in the resolved set.
func (r *Resolver) IsFree(ctx context.Context, counselorID, date, clock string) (bool, error) {
	free, err := r.Resolve(ctx, counselorID, date)
	if err != nil {
		return false, err
	}
	for _, s := range free {
		if s == clock {
			return true, nil
		}
	}
	return false, nil
}

// Subtract removes the times of holding sessions from declared, de-duplicating
// declared and keeping its order. Comparison is exact string equality.
func Subtract(declared []string, booked []sessions.Session) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, s := range booked {
		if s.Status.Holds() {
			taken[s.Time] = struct{}{}
		}
	}
	out := make([]string, 0, len(declared))
	for _, slot := range availability.Dedupe(declared) {
		if _, ok := taken[slot]; ok {
			continue
		}
		out = append(out, slot)
	}
	return out
}
