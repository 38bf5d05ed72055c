package extract

import (
	"fmt"

	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/oracle/types"
)

// ErrExtractionFailed is returned (wrapped with a reason) for any of the
// documented failure modes: empty or oversized body, malformed payload,
// missing fields, numeric overflow, or no sample at or before the requested
// minute. Non-2xx statuses never reach an extractor; the outcall driver
// rejects them.
type ErrExtractionFailed struct {
	SourceID string
	Reason   string
}

func (e *ErrExtractionFailed) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.SourceID, e.Reason)
}

func failed(sourceID, reason string) error {
	return &ErrExtractionFailed{SourceID: sourceID, Reason: reason}
}

// ScaleToNanos converts a fractional decimal price into the system's fixed
// 10^9-scaled integer representation, half-up rounding any residual
// fraction. Returns an error on overflow past uint64.
func ScaleToNanos(price decimal.Decimal, sourceID string) (uint64, error) {
	if price.IsNegative() {
		return 0, failed(sourceID, "negative price")
	}
	scaled := price.Mul(decimal.New(1, int32(types.Decimals)))
	rounded := scaled.RoundHalfUp(0)
	if !rounded.IsInteger() {
		return 0, failed(sourceID, "scaling produced a non-integer value")
	}
	if rounded.Cmp(decimal.NewFromInt(0).Add(decimal.New(1, 19))) >= 0 {
		return 0, failed(sourceID, "numeric overflow during scaling")
	}
	big := rounded.BigInt()
	if !big.IsUint64() {
		return 0, failed(sourceID, "numeric overflow during scaling")
	}
	return big.Uint64(), nil
}
