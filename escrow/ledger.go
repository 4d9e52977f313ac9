package escrow

import "context"

// Ledger is the durable store of escrow transactions. Append is the only
// mutation path: either the new status, the new history entry and the
// incremented version are all persisted, or none are.
type Ledger interface {
	// Get returns the transaction for the id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Transaction, error)

	// Append persists the transition result atomically. expectedVersion is the
	// version the caller observed before applying the transition; a mismatch
	// returns ErrConcurrentModification. expectedVersion zero inserts a new
	// record. Exhausted storage retries surface as ErrUnavailable.
	Append(ctx context.Context, id string, expectedVersion int64, t *Transaction) (*Transaction, error)

	// ListByActor returns the transactions in which the actor participates as
	// buyer or seller, newest-first by creation time, optionally filtered by
	// status.
	ListByActor(ctx context.Context, actorID string, statuses ...Status) ([]*Transaction, error)
}
