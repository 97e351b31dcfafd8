package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CreateAccount(t *testing.T) {
	l := New(nil)

	require.NoError(t, l.CreateAccount("agent-1", 10.0))
	assert.Equal(t, 10.0, l.Balance("agent-1"))

	err := l.CreateAccount("agent-1", 5.0)
	assert.ErrorIs(t, err, ErrDuplicateAccount)

	err = l.CreateAccount("agent-2", -1.0)
	assert.ErrorIs(t, err, ErrNegativeBalance)
}

func TestLedger_BalanceMissingAccountReadsAsZero(t *testing.T) {
	l := New(nil)
	assert.Equal(t, 0.0, l.Balance("does-not-exist"))
}

func TestLedger_ChargeAndCredit(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.CreateAccount("A", 10.0))

	ok, err := l.Charge("A", 3.5, TransactionAPICall, "x")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6.5, l.Balance("A"))
	assert.Equal(t, 3.5, l.TotalExpenditure())

	require.NoError(t, l.Credit("A", 1.0, TransactionRefund, "y"))
	assert.Equal(t, 7.5, l.Balance("A"))
}

func TestLedger_ChargeExactBalanceLeavesZero(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.CreateAccount("A", 5.0))

	ok, err := l.Charge("A", 5.0, TransactionToolUsage, "all of it")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0.0, l.Balance("A"))
}

func TestLedger_ChargeInsufficientFundsFailsWithoutError(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.CreateAccount("A", 1.0))

	ok, err := l.Charge("A", 5.0, TransactionAPICall, "too much")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1.0, l.Balance("A"), "balance must be unchanged on a failed charge")

	history := l.AgentTransactionHistory("A")
	require.Len(t, history, 1)
	assert.Equal(t, TransactionAgentDeath, history[0].TransactionType)
	assert.Equal(t, 0.0, history[0].Amount)
}

func TestLedger_ChargeUnknownAccount(t *testing.T) {
	l := New(nil)
	_, err := l.Charge("ghost", 1.0, TransactionAPICall, "x")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLedger_ChargeNonPositiveAmount(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.CreateAccount("A", 5.0))
	_, err := l.Charge("A", 0, TransactionAPICall, "x")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = l.Charge("A", -1, TransactionAPICall, "x")
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestLedger_Transfer(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.CreateAccount("parent", 100.0))
	require.NoError(t, l.CreateAccount("child", 0.0))

	require.NoError(t, l.Transfer("parent", "child", 40.0, "delegation"))
	assert.Equal(t, 60.0, l.Balance("parent"))
	assert.Equal(t, 40.0, l.Balance("child"))

	err := l.Transfer("parent", "child", 1000.0, "too much")
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	err = l.Transfer("ghost", "child", 1.0, "bad source")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestLedger_SaveAndLoadRoundTrip(t *testing.T) {
	l := New(nil)
	require.NoError(t, l.CreateAccount("A", 10.0))
	require.NoError(t, l.CreateAccount("B", 0.0))
	_, err := l.Charge("A", 3.0, TransactionAPICall, "call")
	require.NoError(t, err)
	require.NoError(t, l.Credit("B", 3.0, TransactionRefund, "refund"))

	path := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, l.SaveToFile(path))

	reloaded := New(nil)
	require.NoError(t, reloaded.LoadFromFile(path))

	assert.Equal(t, l.Balance("A"), reloaded.Balance("A"))
	assert.Equal(t, l.Balance("B"), reloaded.Balance("B"))
	assert.Equal(t, l.AgentTransactionHistory("A"), reloaded.AgentTransactionHistory("A"))
}

func TestLedger_LoadFromMissingFileStartsEmpty(t *testing.T) {
	l := New(nil)
	err := l.LoadFromFile(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, l.Balance("anything"))
}

func TestLedger_LoadFromFile_ErrorOnBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	l := New(nil)
	err := l.LoadFromFile(path)
	assert.Error(t, err)
}
