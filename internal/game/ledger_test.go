package game

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerDebitCredit(t *testing.T) {
	l := NewLedger()
	l.Credit("alice", 100)
	assert.Equal(t, int64(100), l.Balance("alice"))

	require.NoError(t, l.Debit("alice", 60))
	assert.Equal(t, int64(40), l.Balance("alice"))

	err := l.Debit("alice", 41)
	require.Error(t, err)
	assert.Equal(t, KindInsufficientResources, KindOf(err))
	assert.Equal(t, int64(40), l.Balance("alice"), "failed debit must not mutate")
}

func TestLedgerGenerate(t *testing.T) {
	l := NewLedger()
	generated, balance := l.Generate("country-1", 7.9)
	assert.Equal(t, int64(7), generated, "generate adds floor(rate)")
	assert.Equal(t, int64(7), balance)

	generated, balance = l.Generate("country-1", 0.4)
	assert.Equal(t, int64(0), generated)
	assert.Equal(t, int64(7), balance)
}

func TestLedgerUnknownAccountStartsAtZero(t *testing.T) {
	l := NewLedger()
	assert.Equal(t, int64(0), l.Balance("nobody"))
	err := l.Debit("nobody", 1)
	assert.Equal(t, KindInsufficientResources, KindOf(err))
}

// Exactly the prefix of concurrent debits that fits the balance succeeds;
// the balance never goes negative under any interleaving.
func TestLedgerConcurrentDebits(t *testing.T) {
	const (
		balance = 100
		workers = 32
		amount  = 7 // 14 debits fit, 18 must fail
	)
	l := NewLedger()
	l.Credit("contested", balance)

	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- l.Debit("contested", amount)
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, KindInsufficientResources, KindOf(err))
		}
	}
	assert.Equal(t, balance/amount, succeeded)
	assert.Equal(t, int64(balance-balance/amount*amount), l.Balance("contested"))
	assert.GreaterOrEqual(t, l.Balance("contested"), int64(0))
}

func TestLedgerDifferentAccountsIndependent(t *testing.T) {
	l := NewLedger()
	l.Credit("a", 10)
	l.Credit("b", 10)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() { defer wg.Done(); _ = l.Debit("a", 1) }()
		go func() { defer wg.Done(); _ = l.Debit("b", 1) }()
	}
	wg.Wait()
	assert.Equal(t, int64(0), l.Balance("a"))
	assert.Equal(t, int64(0), l.Balance("b"))
}

func TestLedgerRestoreNegativeHaltsAccount(t *testing.T) {
	l := NewLedger()
	l.Restore("broken", -5)
	assert.True(t, l.Halted("broken"))
	assert.Equal(t, int64(0), l.Balance("broken"))

	err := l.Debit("broken", 0)
	assert.Equal(t, KindInvalidState, KindOf(err))

	generated, _ := l.Generate("broken", 10)
	assert.Equal(t, int64(0), generated, "halted account refuses generation")
}
