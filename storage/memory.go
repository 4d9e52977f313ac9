package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"cataloro/escrow"
)

// MemoryLedger is an in-memory escrow.Ledger for tests and embedding. It
// honours the same version compare-and-swap semantics as the SQL ledger.
type MemoryLedger struct {
	mu  sync.RWMutex
	txs map[string]*escrow.Transaction
}

// NewMemoryLedger constructs an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{txs: make(map[string]*escrow.Transaction)}
}

// Get implements escrow.Ledger.
func (l *MemoryLedger) Get(ctx context.Context, id string) (*escrow.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	t, ok := l.txs[id]
	if !ok {
		return nil, escrow.ErrNotFound
	}
	return t.Clone(), nil
}

// Append implements escrow.Ledger.
func (l *MemoryLedger) Append(ctx context.Context, id string, expectedVersion int64, t *escrow.Transaction) (*escrow.Transaction, error) {
	sanitized, err := escrow.Sanitize(t)
	if err != nil {
		return nil, err
	}
	if sanitized.Version != expectedVersion+1 {
		return nil, fmt.Errorf("escrow: append version %d does not extend expected version %d", sanitized.Version, expectedVersion)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	current, ok := l.txs[id]
	if expectedVersion == 0 {
		if ok {
			return nil, escrow.ErrConcurrentModification
		}
	} else {
		if !ok {
			return nil, escrow.ErrNotFound
		}
		if current.Version != expectedVersion {
			return nil, escrow.ErrConcurrentModification
		}
	}
	l.txs[id] = sanitized
	return sanitized.Clone(), nil
}

// ListByActor implements escrow.Ledger, returning newest-first records.
func (l *MemoryLedger) ListByActor(ctx context.Context, actorID string, statuses ...escrow.Status) ([]*escrow.Transaction, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var list []*escrow.Transaction
	for _, t := range l.txs {
		if t.BuyerID != actorID && t.SellerID != actorID {
			continue
		}
		if len(statuses) > 0 && !statusMatch(t.Status, statuses) {
			continue
		}
		list = append(list, t.Clone())
	}
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

func statusMatch(status escrow.Status, filter []escrow.Status) bool {
	for _, s := range filter {
		if s == status {
			return true
		}
	}
	return false
}
