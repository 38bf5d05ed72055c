package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestScaleToNanos_RoundsHalfUp(t *testing.T) {
	v, err := ScaleToNanos(decimal.NewFromFloat(1.0000000005), "src")
	require.NoError(t, err)
	require.Equal(t, uint64(1_000_000_001), v)
}

func TestScaleToNanos_RejectsNegative(t *testing.T) {
	_, err := ScaleToNanos(decimal.NewFromFloat(-1.5), "src")
	require.Error(t, err)
}

func TestScaleToNanos_WholeNumber(t *testing.T) {
	v, err := ScaleToNanos(decimal.NewFromInt(42), "src")
	require.NoError(t, err)
	require.Equal(t, uint64(42_000_000_000), v)
}
