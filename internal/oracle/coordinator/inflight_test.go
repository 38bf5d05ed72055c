package coordinator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInflightTable_SecondAcquireFailsWhileFirstHeld(t *testing.T) {
	tbl := NewInflightTable()
	pair := testPair()

	release, ok := tbl.TryAcquire(pair, 60)
	require.True(t, ok)

	_, ok = tbl.TryAcquire(pair, 60)
	require.False(t, ok)

	release()

	_, ok = tbl.TryAcquire(pair, 60)
	require.True(t, ok)
}

func TestInflightTable_DifferentMinutesDoNotCollide(t *testing.T) {
	tbl := NewInflightTable()
	pair := testPair()

	_, ok1 := tbl.TryAcquire(pair, 60)
	_, ok2 := tbl.TryAcquire(pair, 120)
	require.True(t, ok1)
	require.True(t, ok2)
}

func TestGuard_ReleasesOnNormalReturn(t *testing.T) {
	tbl := NewInflightTable()
	pair := testPair()
	release, ok := tbl.TryAcquire(pair, 60)
	require.True(t, ok)

	err := Guard(release, func() error { return nil })
	require.NoError(t, err)

	_, ok = tbl.TryAcquire(pair, 60)
	require.True(t, ok, "release should have freed the slot")
}

func TestGuard_ReleasesOnError(t *testing.T) {
	tbl := NewInflightTable()
	pair := testPair()
	release, ok := tbl.TryAcquire(pair, 60)
	require.True(t, ok)

	sentinel := errors.New("boom")
	err := Guard(release, func() error { return sentinel })
	require.Equal(t, sentinel, err)

	_, ok = tbl.TryAcquire(pair, 60)
	require.True(t, ok)
}

func TestGuard_RecoversPanicAndReleases(t *testing.T) {
	tbl := NewInflightTable()
	pair := testPair()
	release, ok := tbl.TryAcquire(pair, 60)
	require.True(t, ok)

	err := Guard(release, func() error {
		panic("unexpected")
	})
	require.Error(t, err)

	_, ok = tbl.TryAcquire(pair, 60)
	require.True(t, ok, "release should run even when fn panics")
}
