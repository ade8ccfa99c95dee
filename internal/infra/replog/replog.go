// Package replog is the in-process reputation-mining log. The claim engine
// appends a delta per earned skill; miners (out of scope here) would consume
// the ordered update stream.
package replog

import (
	"sync"
	"time"

	"github.com/escrowd-network/escrowd/internal/domain"
)

// Update is one appended reputation delta.
type Update struct {
	Seq     uint64         `json:"seq"`
	Account domain.Account `json:"account"`
	SkillID uint64         `json:"skill_id"`
	Amount  int64          `json:"amount"`
	At      time.Time      `json:"at"`
}

type totalKey struct {
	account domain.Account
	skillID uint64
}

// Log is an append-only, mutex-guarded reputation update stream with
// per-(account, skill) running totals.
type Log struct {
	mu      sync.Mutex
	now     func() time.Time
	updates []Update
	totals  map[totalKey]int64
}

// New returns an empty log.
func New() *Log {
	return &Log{
		now:    time.Now,
		totals: make(map[totalKey]int64),
	}
}

// SetClock injects a clock for tests.
func (l *Log) SetClock(now func() time.Time) { l.now = now }

// AppendUpdate implements domain.ReputationLog.
func (l *Log) AppendUpdate(account domain.Account, skillID uint64, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, Update{
		Seq:     uint64(len(l.updates) + 1),
		Account: account,
		SkillID: skillID,
		Amount:  amount,
		At:      l.now(),
	})
	l.totals[totalKey{account, skillID}] += amount
}

// Updates returns a copy of the ordered update stream.
func (l *Log) Updates() []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Update, len(l.updates))
	copy(out, l.updates)
	return out
}

// Total returns the accumulated delta for (account, skill).
func (l *Log) Total(account domain.Account, skillID uint64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totals[totalKey{account, skillID}]
}

// Len returns the number of appended updates.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.updates)
}
