package payments

import "github.com/wolfman30/teletherapy-platform/internal/apperr"

// DefaultPlatformFeeBPS is the platform commission in basis points (20%).
const DefaultPlatformFeeBPS int64 = 2000

// Split divides a consultation fee between the platform and the counselor.
// PlatformFee + CounselorAmount == Total always holds.
type Split struct {
	Total           int64 `json:"total"`
	PlatformFee     int64 `json:"platformFee"`
	CounselorAmount int64 `json:"counselorAmount"`
}

// ComputeSplit applies the default 20% commission.
func ComputeSplit(feeMinor int64) (Split, error) {
	return ComputeSplitBPS(feeMinor, DefaultPlatformFeeBPS)
}

// ComputeSplitBPS floors fee*bps/10000 for the platform and gives the
// remainder to the counselor.
func ComputeSplitBPS(feeMinor, bps int64) (Split, error) {
	if feeMinor < 0 {
		return Split{}, apperr.Validation("fee %d must not be negative", feeMinor)
	}
	if bps < 0 || bps > 10_000 {
		return Split{}, apperr.Validation("platform fee %d bps out of range", bps)
	}
	// split the multiplication so large fees cannot overflow
	platform := (feeMinor/10_000)*bps + (feeMinor%10_000)*bps/10_000
	return Split{
		Total:           feeMinor,
		PlatformFee:     platform,
		CounselorAmount: feeMinor - platform,
	}, nil
}
