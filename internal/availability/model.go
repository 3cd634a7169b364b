package availability

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

// DateLayout is the canonical calendar-day form used on the wire and in keys.
const DateLayout = "2006-01-02"

// ErrNotFound is returned when a counselor has no record for a day.
var ErrNotFound = errors.New("availability: not found")

var slotPattern = regexp.MustCompile(`^\d{2}:\d{2}$`)

// Day is a counselor's declared slot set for one calendar date. Slots are
// wall-clock "HH:MM" strings in the counselor's own timezone.
type Day struct {
	CounselorID    string    `json:"counselorId"`
	Date           string    `json:"date"`
	AvailableSlots []string  `json:"availableSlots"`
	UpdatedAt      time.Time `json:"updatedAt,omitempty"`
}

// ParseDate parses a "YYYY-MM-DD" calendar date.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, apperr.Validation("date %q must be a calendar date in YYYY-MM-DD form", value)
	}
	return d, nil
}

// ValidateSlot checks a single "HH:MM" 24-hour slot string.
func ValidateSlot(slot string) error {
	if !slotPattern.MatchString(slot) {
		return apperr.Validation("slot %q must match HH:MM", slot)
	}
	hour, _ := strconv.Atoi(slot[:2])
	minute, _ := strconv.Atoi(slot[3:])
	if hour > 23 || minute > 59 {
		return apperr.Validation("slot %q is not a valid time of day", slot)
	}
	return nil
}

// NormalizeSlots validates every slot and drops repeats, keeping the first
// occurrence of each.
func NormalizeSlots(slots []string) ([]string, error) {
	out := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if err := ValidateSlot(slot); err != nil {
			return nil, err
		}
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out, nil
}

// Dedupe drops repeated slots without validating them.
func Dedupe(slots []string) []string {
	out := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out
}
