package engine

import (
	"sync"
	"time"

	"txguard/internal/model"
)

// userHistory is the append-ordered transaction sequence of one user. Reads
// for risk computation and the append that follows happen under mu.
type userHistory struct {
	mu      sync.Mutex
	entries []model.Transaction
}

// Retention decides which history entries survive after an append. latest is
// the timestamp of the transaction just appended.
type Retention interface {
	Retain(entries []model.Transaction, latest time.Time) []model.Transaction
}

// KeepAll never evicts.
type KeepAll struct{}

func (KeepAll) Retain(entries []model.Transaction, _ time.Time) []model.Transaction {
	return entries
}

// MaxAge drops entries whose timestamp is at or before latest minus the age.
type MaxAge time.Duration

func (m MaxAge) Retain(entries []model.Transaction, latest time.Time) []model.Transaction {
	if m <= 0 || len(entries) == 0 {
		return entries
	}
	cutoff := latest.Add(-time.Duration(m))
	kept := entries[:0]
	for _, tx := range entries {
		if tx.Timestamp.After(cutoff) {
			kept = append(kept, tx)
		}
	}
	// Release the tail so dropped transactions can be collected.
	clear(entries[len(kept):])
	return kept
}

func retentionFor(age time.Duration) Retention {
	if age > 0 {
		return MaxAge(age)
	}
	return KeepAll{}
}
