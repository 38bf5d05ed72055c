package types

import "testing"

func TestNewAsset_NormalizesCase(t *testing.T) {
	a, err := NewAsset("  btc ", Crypto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Symbol != "BTC" {
		t.Fatalf("expected normalized symbol BTC, got %q", a.Symbol)
	}
}

func TestNewAsset_RejectsEmpty(t *testing.T) {
	if _, err := NewAsset("   ", Crypto); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestNewAsset_RejectsTooLong(t *testing.T) {
	long := make([]byte, 33)
	for i := range long {
		long[i] = 'A'
	}
	if _, err := NewAsset(string(long), Crypto); err == nil {
		t.Fatal("expected error for symbol over 32 characters")
	}
}

func TestMinuteAlign(t *testing.T) {
	cases := map[uint64]uint64{
		0:   0,
		59:  0,
		60:  60,
		119: 60,
		125: 120,
	}
	for in, want := range cases {
		if got := MinuteAlign(in); got != want {
			t.Errorf("MinuteAlign(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDayAlign_TruncatesToUTCMidnight(t *testing.T) {
	// 2024-01-02T15:04:05Z
	const ts = 1704207845
	got := DayAlign(ts)
	// 2024-01-02T00:00:00Z
	const want = 1704153600
	if got != want {
		t.Fatalf("DayAlign(%d) = %d, want %d", ts, got, want)
	}
}

func TestOracleError_IsMatchesByCodeOnly(t *testing.T) {
	a := NewError(Pending)
	b := NewOtherError("unrelated description but same code path")
	b.Code = Pending

	if !a.Is(b) {
		t.Fatal("expected errors with the same code to match via Is")
	}

	c := NewError(RateLimited)
	if a.Is(c) {
		t.Fatal("expected errors with different codes not to match")
	}
}
