package availability

import (
	"context"
	"errors"
	"strings"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
	"github.com/wolfman30/teletherapy-platform/pkg/logging"
)

// Store applies validation on top of a Repository. Callers are responsible
// for checking that the principal owns counselorID.
type Store struct {
	repo   Repository
	logger *logging.Logger
}

func NewStore(repo Repository, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{repo: repo, logger: logger.Component("availability")}
}

// SetAvailability replaces the whole slot set for one day. Writing the same
// slots twice leaves the same stored state.
func (s *Store) SetAvailability(ctx context.Context, counselorID, date string, slots []string) (*Day, error) {
	counselorID = strings.TrimSpace(counselorID)
	if counselorID == "" {
		return nil, apperr.Validation("counselorId is required")
	}
	if _, err := ParseDate(date); err != nil {
		return nil, err
	}
	normalized, err := NormalizeSlots(slots)
	if err != nil {
		return nil, err
	}
	day, err := s.repo.Upsert(ctx, Day{CounselorID: counselorID, Date: date, AvailableSlots: normalized})
	if err != nil {
		return nil, err
	}
	s.logger.Info("availability updated", "counselor_id", counselorID, "date", date, "slots", len(normalized))
	return day, nil
}

// GetAvailability returns the days in [from, to] that have a record, oldest first.
func (s *Store) GetAvailability(ctx context.Context, counselorID, from, to string) ([]Day, error) {
	start, err := ParseDate(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate(to)
	if err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, apperr.Validation("range end %s is before start %s", to, from)
	}
	days, err := s.repo.ListRange(ctx, counselorID, from, to)
	if err != nil {
		return nil, err
	}
	if days == nil {
		days = []Day{}
	}
	return days, nil
}

// Day returns the record for one date, or nil when none was published.
func (s *Store) Day(ctx context.Context, counselorID, date string) (*Day, error) {
	day, err := s.repo.Get(ctx, counselorID, date)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return day, err
}
