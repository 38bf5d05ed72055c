package runtime

import "fmt"

// CycleLedger tracks one request's cycle accounting: what was attached, what
// has been spent on outcalls, and what remains to refund. Mirrors the IC's
// accept/refund cycle protocol explicitly instead of hiding it behind a
// framework call.
type CycleLedger struct {
	attached uint64
	accepted uint64
	spent    uint64
}

func NewCycleLedger(attached uint64) *CycleLedger {
	return &CycleLedger{attached: attached}
}

// Accept debits `amount` from the attached balance into the accepted
// balance. Fails if the request didn't attach enough.
func (l *CycleLedger) Accept(amount uint64) error {
	if l.accepted+amount > l.attached {
		return fmt.Errorf("runtime: cannot accept %d cycles, only %d available", amount, l.attached-l.accepted)
	}
	l.accepted += amount
	return nil
}

// SpendOutcall debits the per-outcall fee from the accepted balance. Safe to
// call even if accept has not reserved enough headroom; worst-case outcall
// budget must be accepted up front by the caller.
func (l *CycleLedger) SpendOutcall(fee uint64) {
	l.spent += fee
}

// Refund returns whatever was attached but neither accepted-and-spent nor
// held back as the retained base fee.
func (l *CycleLedger) Refund(baseFee uint64) uint64 {
	retained := baseFee + l.spent
	if retained >= l.attached {
		return 0
	}
	return l.attached - retained
}

// Attached, Spent expose the ledger for conservation-invariant tests
// (attached == retained + refunded + spent).
func (l *CycleLedger) Attached() uint64 { return l.attached }
func (l *CycleLedger) Spent() uint64    { return l.spent }
