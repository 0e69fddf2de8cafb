package normalize

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/creator-rank-crawler/internal/channel"
)

func TestCount(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"1.54K", 1540},
		{"110.07B", 110070000000},
		{"942", 942},
		{"465M", 465000000},
		{"465m", 465000000},
		{" 12,345 ", 12345},
		{"1 234 567", 1234567},
		{"1\u00a0234", 1234},
		{"1\u202f234\u202f567", 1234567},
		{"1 234", 1234},
		{"0", 0},
		{"1.999K", 1999},
		{"1.9999K", 1999},
		// Exact decimal: float64 would give 1.005*1000 = 1004.999...
		{"1.005K", 1005},
		{"2.675M", 2675000},
		{".5K", 500},
		{"2.K", 2000},
		{"0.1", 0},
		{"9.2B", 9200000000},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := Count(tt.in)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCountUnparsable(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"abc", "", "   ", "K", "1.2.3M", "-5", "1KM", "NaN", "inf", "0x10", "1e3", "."} {
		in := in
		t.Run(in, func(t *testing.T) {
			t.Parallel()
			_, err := Count(in)
			require.ErrorIs(t, err, channel.ErrUnparsableNumber)
		})
	}
}

func TestCountOverflow(t *testing.T) {
	t.Parallel()

	_, err := Count("99999999999999B")
	require.ErrorIs(t, err, channel.ErrUnparsableNumber)
}

func TestCountOrNilKeepsZeroDistinct(t *testing.T) {
	t.Parallel()

	require.Nil(t, CountOrNil("n/a"))
	zero := CountOrNil("0")
	require.NotNil(t, zero)
	require.Equal(t, int64(0), *zero)
}
