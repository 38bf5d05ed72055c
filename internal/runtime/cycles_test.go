package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCycleLedger_AcceptFailsWhenOverAttached(t *testing.T) {
	l := NewCycleLedger(100)
	require.NoError(t, l.Accept(60))
	require.Error(t, l.Accept(60))
}

func TestCycleLedger_RefundConservesAttached(t *testing.T) {
	l := NewCycleLedger(1000)
	require.NoError(t, l.Accept(100))
	l.SpendOutcall(200)
	l.SpendOutcall(150)

	refunded := l.Refund(100)
	require.Equal(t, l.Attached(), 100+l.Spent()+refunded)
}

func TestCycleLedger_RefundNeverNegative(t *testing.T) {
	l := NewCycleLedger(100)
	require.NoError(t, l.Accept(100))
	l.SpendOutcall(500)

	require.Equal(t, uint64(0), l.Refund(100))
}
