package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"cataloro/escrow"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// Open opens (or creates) the ledger database at path and runs migrations.
// Use ":memory:" for an ephemeral database in tests.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate ledger database: %w", err)
	}
	return db, nil
}

// SQLLedger is the durable escrow.Ledger backed by SQLite. Append is atomic:
// the escrow row update is guarded by a version compare-and-swap and the
// history insert happens in the same transaction, so readers never observe a
// partially-applied transition. Transient I/O failures are retried with
// bounded backoff before surfacing as ErrUnavailable.
type SQLLedger struct {
	db       *gorm.DB
	attempts int
	backoff  time.Duration
}

// SQLLedgerOption customises ledger behaviour.
type SQLLedgerOption func(*SQLLedger)

// WithRetry overrides the bounded retry policy for transient storage errors.
func WithRetry(attempts int, backoff time.Duration) SQLLedgerOption {
	return func(l *SQLLedger) {
		if attempts > 0 {
			l.attempts = attempts
		}
		if backoff > 0 {
			l.backoff = backoff
		}
	}
}

// NewSQLLedger constructs a ledger over an opened gorm database.
func NewSQLLedger(db *gorm.DB, opts ...SQLLedgerOption) *SQLLedger {
	l := &SQLLedger{db: db, attempts: defaultRetryAttempts, backoff: defaultRetryBackoff}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get implements escrow.Ledger.
func (l *SQLLedger) Get(ctx context.Context, id string) (*escrow.Transaction, error) {
	var rec EscrowRecord
	err := l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).
			Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
			First(&rec, "id = ?", id).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, escrow.ErrNotFound
		}
		return nil, err
	}
	return fromRecord(rec), nil
}

// Append implements escrow.Ledger. expectedVersion zero inserts a new record;
// otherwise the stored row must still carry expectedVersion or the append is
// rejected with ErrConcurrentModification.
func (l *SQLLedger) Append(ctx context.Context, id string, expectedVersion int64, t *escrow.Transaction) (*escrow.Transaction, error) {
	sanitized, err := escrow.Sanitize(t)
	if err != nil {
		return nil, err
	}
	if sanitized.Version != expectedVersion+1 {
		return nil, fmt.Errorf("escrow: append version %d does not extend expected version %d", sanitized.Version, expectedVersion)
	}
	err = l.withRetry(ctx, func() error {
		return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if expectedVersion == 0 {
				rec := toRecord(sanitized)
				if err := tx.Create(&rec).Error; err != nil {
					if isUniqueViolation(err) {
						return escrow.ErrConcurrentModification
					}
					return err
				}
				return nil
			}
			res := tx.Model(&EscrowRecord{}).
				Where("id = ? AND version = ?", id, expectedVersion).
				Updates(updateColumns(sanitized))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				var count int64
				if err := tx.Model(&EscrowRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
					return err
				}
				if count == 0 {
					return escrow.ErrNotFound
				}
				return escrow.ErrConcurrentModification
			}
			entry := sanitized.History[len(sanitized.History)-1]
			hr := historyRecord(id, sanitized.Version, entry)
			if err := tx.Create(&hr).Error; err != nil {
				if isUniqueViolation(err) {
					return escrow.ErrConcurrentModification
				}
				return err
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return l.Get(ctx, id)
}

// ListByActor implements escrow.Ledger, returning newest-first records.
func (l *SQLLedger) ListByActor(ctx context.Context, actorID string, statuses ...escrow.Status) ([]*escrow.Transaction, error) {
	var recs []EscrowRecord
	err := l.withRetry(ctx, func() error {
		query := l.db.WithContext(ctx).
			Preload("History", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
			Where("buyer_id = ? OR seller_id = ?", actorID, actorID)
		if len(statuses) > 0 {
			filter := make([]string, 0, len(statuses))
			for _, status := range statuses {
				filter = append(filter, string(status))
			}
			query = query.Where("status IN ?", filter)
		}
		return query.Order("created_at DESC").Find(&recs).Error
	})
	if err != nil {
		return nil, err
	}
	list := make([]*escrow.Transaction, 0, len(recs))
	for _, rec := range recs {
		list = append(list, fromRecord(rec))
	}
	return list, nil
}

func updateColumns(t *escrow.Transaction) map[string]any {
	cols := map[string]any{
		"status":               string(t.Status),
		"release_requested_by": t.ReleaseRequestedBy,
		"version":              t.Version,
		"updated_at":           t.UpdatedAt,
	}
	if t.FundingProof != nil {
		cols["funding_method"] = t.FundingProof.Method
		cols["funding_reference"] = t.FundingProof.Reference
	}
	if t.Dispute != nil {
		cols["dispute_raised_by"] = t.Dispute.RaisedBy
		cols["dispute_reason"] = t.Dispute.Reason
		cols["dispute_evidence"] = encodeEvidence(t.Dispute.Evidence)
		cols["dispute_raised_at"] = t.Dispute.RaisedAt
	}
	return cols
}

func (l *SQLLedger) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", escrow.ErrUnavailable, ctx.Err())
			case <-time.After(l.backoff * time.Duration(attempt)):
			}
		}
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", escrow.ErrUnavailable, err)
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, escrow.ErrNotFound),
		errors.Is(err, escrow.ErrConcurrentModification),
		errors.Is(err, escrow.ErrInvalidInput),
		errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
