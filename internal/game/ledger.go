package game

import (
	"math"
	"sync"
)

// Ledger holds per-entity resource balances with atomic mutation semantics.
// Each account carries its own mutex so debits against different entities
// never contend; the outer mutex guards only the account map itself and is
// released before any balance is touched.
type Ledger struct {
	mu       sync.Mutex
	accounts map[string]*account
}

type account struct {
	mu      sync.Mutex
	balance int64
	halted  bool
}

func NewLedger() *Ledger {
	return &Ledger{accounts: make(map[string]*account)}
}

// account returns the entity's account, creating it with a zero balance on
// first use.
func (l *Ledger) account(entityID string) *account {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.accounts[entityID]
	if !ok {
		a = &account{}
		l.accounts[entityID] = a
	}
	return a
}

// Debit atomically checks and decrements the balance. It fails without
// mutation when the balance is below amount; the balance never goes negative.
func (l *Ledger) Debit(entityID string, amount int64) error {
	a := l.account(entityID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.halted {
		return invalidStatef("ledger account %s is halted", entityID)
	}
	if a.balance < amount {
		return insufficientErr("balance "+entityID+" too low", amount)
	}
	a.balance -= amount
	return nil
}

// Credit adds amount to the balance.
func (l *Ledger) Credit(entityID string, amount int64) {
	a := l.account(entityID)
	a.mu.Lock()
	a.balance += amount
	a.mu.Unlock()
}

// Generate adds floor(rate) to the balance and returns the amount generated
// together with the resulting balance. Cadence is the caller's concern.
func (l *Ledger) Generate(entityID string, rate float64) (generated, balance int64) {
	amount := int64(math.Floor(rate))
	if amount < 0 {
		amount = 0
	}
	a := l.account(entityID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.halted {
		return 0, a.balance
	}
	a.balance += amount
	return amount, a.balance
}

// Balance returns the current balance.
func (l *Ledger) Balance(entityID string) int64 {
	a := l.account(entityID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balance
}

// Restore sets the balance directly. A negative balance is an invariant
// violation: the account is halted at zero and every further debit fails.
func (l *Ledger) Restore(entityID string, balance int64) {
	a := l.account(entityID)
	a.mu.Lock()
	defer a.mu.Unlock()
	if balance < 0 {
		a.balance = 0
		a.halted = true
		return
	}
	a.balance = balance
	a.halted = false
}

// Halted reports whether the account was halted by an invariant violation.
func (l *Ledger) Halted(entityID string) bool {
	a := l.account(entityID)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.halted
}
