package payments

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/teletherapy-platform/internal/apperr"
)

func TestComputeSplitExample(t *testing.T) {
	s, err := ComputeSplit(10000)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), s.PlatformFee)
	assert.Equal(t, int64(8000), s.CounselorAmount)
}

func TestComputeSplitFloors(t *testing.T) {
	tests := []struct {
		fee      int64
		platform int64
	}{
		{0, 0},
		{1, 0},
		{4, 0},
		{5, 1},
		{9999, 1999},
		{12345, 2469},
	}
	for _, tt := range tests {
		s, err := ComputeSplit(tt.fee)
		require.NoError(t, err)
		assert.Equal(t, tt.platform, s.PlatformFee, "fee %d", tt.fee)
	}
}

func TestComputeSplitConservesTotal(t *testing.T) {
	fees := []int64{0, 1, 2, 3, 7, 99, 101, 4999, 5001, 10000, 123457, 999_999_999, math.MaxInt64}
	for f := int64(0); f < 2000; f++ {
		fees = append(fees, f)
	}
	for _, bps := range []int64{0, 1, 1500, DefaultPlatformFeeBPS, 3333, 10_000} {
		for _, fee := range fees {
			s, err := ComputeSplitBPS(fee, bps)
			require.NoError(t, err)
			if s.PlatformFee+s.CounselorAmount != fee {
				t.Fatalf("fee %d bps %d leaked: %+v", fee, bps, s)
			}
			if s.PlatformFee < 0 || s.CounselorAmount < 0 {
				t.Fatalf("negative share for fee %d bps %d: %+v", fee, bps, s)
			}
		}
	}
}

func TestComputeSplitRejectsBadInput(t *testing.T) {
	_, err := ComputeSplit(-1)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
	_, err = ComputeSplitBPS(100, 10_001)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}
