package storage

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"cataloro/escrow"
)

// EscrowRecord is the persisted form of an escrow transaction.
type EscrowRecord struct {
	ID                 string `gorm:"primaryKey;size:36"`
	ListingID          string `gorm:"size:64;index"`
	BuyerID            string `gorm:"size:64;index"`
	SellerID           string `gorm:"size:64;index"`
	Amount             int64  `gorm:"not null"`
	Currency           string `gorm:"size:8"`
	Status             string `gorm:"size:32;index"`
	FundingMethod      string `gorm:"size:64"`
	FundingReference   string `gorm:"size:128"`
	ReleaseRequestedBy string `gorm:"size:64"`
	DisputeRaisedBy    string `gorm:"size:64"`
	DisputeReason      string `gorm:"size:512"`
	DisputeEvidence    string `gorm:"type:text"`
	DisputeRaisedAt    *time.Time
	Version            int64     `gorm:"not null"`
	CreatedAt          time.Time `gorm:"index"`
	UpdatedAt          time.Time
	History            []HistoryRecord `gorm:"foreignKey:EscrowID;references:ID"`
}

// HistoryRecord is one append-only transition entry. The unique (escrow_id,
// seq) index guarantees at most one entry per version.
type HistoryRecord struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	EscrowID      string `gorm:"size:36;uniqueIndex:idx_history_escrow_seq,priority:1"`
	Seq           int64  `gorm:"uniqueIndex:idx_history_escrow_seq,priority:2"`
	Action        string `gorm:"size:32"`
	Actor         string `gorm:"size:64"`
	FromStatus    string `gorm:"size:32"`
	ToStatus      string `gorm:"size:32"`
	Timestamp     time.Time
	PayloadDigest string `gorm:"size:64"`
}

// AutoMigrate performs all schema migrations for the ledger store.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EscrowRecord{}, &HistoryRecord{})
}

func toRecord(t *escrow.Transaction) EscrowRecord {
	rec := EscrowRecord{
		ID:                 t.ID,
		ListingID:          t.ListingID,
		BuyerID:            t.BuyerID,
		SellerID:           t.SellerID,
		Amount:             t.Amount,
		Currency:           t.Currency,
		Status:             string(t.Status),
		ReleaseRequestedBy: t.ReleaseRequestedBy,
		Version:            t.Version,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
	if t.FundingProof != nil {
		rec.FundingMethod = t.FundingProof.Method
		rec.FundingReference = t.FundingProof.Reference
	}
	if t.Dispute != nil {
		rec.DisputeRaisedBy = t.Dispute.RaisedBy
		rec.DisputeReason = t.Dispute.Reason
		rec.DisputeEvidence = encodeEvidence(t.Dispute.Evidence)
		raisedAt := t.Dispute.RaisedAt
		rec.DisputeRaisedAt = &raisedAt
	}
	for i, entry := range t.History {
		rec.History = append(rec.History, historyRecord(t.ID, int64(i+1), entry))
	}
	return rec
}

func historyRecord(escrowID string, seq int64, entry escrow.HistoryEntry) HistoryRecord {
	return HistoryRecord{
		EscrowID:      escrowID,
		Seq:           seq,
		Action:        string(entry.Action),
		Actor:         entry.Actor,
		FromStatus:    string(entry.FromStatus),
		ToStatus:      string(entry.ToStatus),
		Timestamp:     entry.Timestamp,
		PayloadDigest: entry.PayloadDigest,
	}
}

func fromRecord(rec EscrowRecord) *escrow.Transaction {
	t := &escrow.Transaction{
		ID:                 rec.ID,
		ListingID:          rec.ListingID,
		BuyerID:            rec.BuyerID,
		SellerID:           rec.SellerID,
		Amount:             rec.Amount,
		Currency:           rec.Currency,
		Status:             escrow.Status(rec.Status),
		ReleaseRequestedBy: rec.ReleaseRequestedBy,
		Version:            rec.Version,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if rec.FundingReference != "" || rec.FundingMethod != "" {
		t.FundingProof = &escrow.FundingProof{Method: rec.FundingMethod, Reference: rec.FundingReference}
	}
	if rec.DisputeRaisedBy != "" {
		dispute := &escrow.Dispute{
			RaisedBy: rec.DisputeRaisedBy,
			Reason:   rec.DisputeReason,
			Evidence: decodeEvidence(rec.DisputeEvidence),
		}
		if rec.DisputeRaisedAt != nil {
			dispute.RaisedAt = *rec.DisputeRaisedAt
		}
		t.Dispute = dispute
	}
	for _, hr := range rec.History {
		t.History = append(t.History, escrow.HistoryEntry{
			Action:        escrow.Action(hr.Action),
			Actor:         hr.Actor,
			FromStatus:    escrow.Status(hr.FromStatus),
			ToStatus:      escrow.Status(hr.ToStatus),
			Timestamp:     hr.Timestamp,
			PayloadDigest: hr.PayloadDigest,
		})
	}
	return t
}

func encodeEvidence(evidence []string) string {
	if evidence == nil {
		evidence = []string{}
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeEvidence(raw string) []string {
	if raw == "" {
		return []string{}
	}
	var evidence []string
	if err := json.Unmarshal([]byte(raw), &evidence); err != nil {
		return []string{}
	}
	return evidence
}
