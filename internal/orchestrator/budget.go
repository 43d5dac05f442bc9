package orchestrator

import (
	"sync"
	"time"
)

// Budget tracks upstream spend against a daily ceiling. When the ceiling is
// reached, or a quota error forces exhaustion, the orchestrator degrades to
// the cache-only path instead of failing every call.
type Budget struct {
	mu         sync.Mutex
	dailyLimit float64
	spent      float64
	day        time.Time
	forced     bool
}

// NewBudget creates a budget with a daily USD limit. A limit of zero
// disables the gate.
func NewBudget(dailyLimitUSD float64) *Budget {
	return &Budget{dailyLimit: dailyLimitUSD, day: today()}
}

// Spend records cost against today's budget.
func (b *Budget) Spend(costUSD float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	b.spent += costUSD
}

// Exhausted reports whether new upstream calls should be gated off.
func (b *Budget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	if b.forced {
		return true
	}
	return b.dailyLimit > 0 && b.spent >= b.dailyLimit
}

// ForceExhausted flips the gate immediately, used when the upstream reports
// quota exhaustion regardless of our own accounting. Clears on day rollover.
func (b *Budget) ForceExhausted() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
}

// SpentToday returns today's recorded spend.
func (b *Budget) SpentToday() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollover()
	return b.spent
}

func (b *Budget) rollover() {
	if d := today(); !d.Equal(b.day) {
		b.day = d
		b.spent = 0
		b.forced = false
	}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
