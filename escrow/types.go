package escrow

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle states supported by the escrow engine.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusFunded           Status = "FUNDED"
	StatusReleaseRequested Status = "RELEASE_REQUESTED"
	StatusReleased         Status = "RELEASED"
	StatusInDispute        Status = "IN_DISPUTE"
	StatusResolved         Status = "RESOLVED"
	StatusRefunded         Status = "REFUNDED"
	StatusCancelled        Status = "CANCELLED"
)

// Valid reports whether the status value is within the supported range.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusFunded, StatusReleaseRequested, StatusReleased,
		StatusInDispute, StatusResolved, StatusRefunded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status accepts no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusReleased, StatusResolved, StatusRefunded, StatusCancelled:
		return true
	default:
		return false
	}
}

// Action identifies a lifecycle transition requested by a caller.
type Action string

const (
	ActionCreate         Action = "create"
	ActionFund           Action = "fund"
	ActionRequestRelease Action = "request_release"
	ActionApproveRelease Action = "approve_release"
	ActionDispute        Action = "dispute"
	ActionResolve        Action = "resolve"
	ActionCancel         Action = "cancel"
)

// Role describes how an actor relates to a transaction.
type Role string

const (
	RoleBuyer      Role = "buyer"
	RoleSeller     Role = "seller"
	RoleArbitrator Role = "arbitrator"
)

// FundingProof records the opaque payment reference supplied when an escrow is
// funded. The engine never validates it against a payment network.
type FundingProof struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// Dispute captures the details of a raised dispute. The structure is preserved
// through RESOLVED and REFUNDED for audit purposes.
type Dispute struct {
	RaisedBy string    `json:"raisedBy"`
	Reason   string    `json:"reason"`
	Evidence []string  `json:"evidence"`
	RaisedAt time.Time `json:"raisedAt"`
}

// HistoryEntry describes a single accepted transition. History is append-only
// and its length always equals the transaction version.
type HistoryEntry struct {
	Action        Action    `json:"action"`
	Actor         string    `json:"actor"`
	FromStatus    Status    `json:"fromStatus"`
	ToStatus      Status    `json:"toStatus"`
	Timestamp     time.Time `json:"timestamp"`
	PayloadDigest string    `json:"payloadDigest"`
}

// Transaction is the escrow aggregate root. Buyer, seller, amount and currency
// are immutable after creation; status changes only through the engine.
type Transaction struct {
	ID                 string         `json:"id"`
	ListingID          string         `json:"listingId"`
	BuyerID            string         `json:"buyerId"`
	SellerID           string         `json:"sellerId"`
	Amount             int64          `json:"amount"`
	Currency           string         `json:"currency"`
	Status             Status         `json:"status"`
	FundingProof       *FundingProof  `json:"fundingProof,omitempty"`
	ReleaseRequestedBy string         `json:"releaseRequestedBy,omitempty"`
	Dispute            *Dispute       `json:"dispute,omitempty"`
	Version            int64          `json:"version"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
	History            []HistoryEntry `json:"history"`
}

// Clone returns a deep copy of the transaction so callers can safely mutate the
// copy without affecting the stored instance.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	if t.FundingProof != nil {
		proof := *t.FundingProof
		clone.FundingProof = &proof
	}
	if t.Dispute != nil {
		dispute := *t.Dispute
		dispute.Evidence = append([]string(nil), t.Dispute.Evidence...)
		clone.Dispute = &dispute
	}
	clone.History = append([]HistoryEntry(nil), t.History...)
	return &clone
}

// Party reports whether the actor is the buyer or seller of the transaction.
func (t *Transaction) Party(actor string) bool {
	if t == nil {
		return false
	}
	return actor != "" && (actor == t.BuyerID || actor == t.SellerID)
}

// Counterparty returns the other side of the trade for a buyer or seller actor.
func (t *Transaction) Counterparty(actor string) string {
	switch actor {
	case t.BuyerID:
		return t.SellerID
	case t.SellerID:
		return t.BuyerID
	default:
		return ""
	}
}

// NormalizeCurrency ensures the provided currency is a plausible ISO code and
// returns the canonical uppercase form.
func NormalizeCurrency(code string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if len(trimmed) != 3 {
		return "", fmt.Errorf("escrow: invalid currency code %q", code)
	}
	for _, r := range trimmed {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("escrow: invalid currency code %q", code)
		}
	}
	return trimmed, nil
}

// Sanitize validates the structural invariants of a stored transaction and
// returns a cloned instance. The function does not mutate the original value.
func Sanitize(t *Transaction) (*Transaction, error) {
	if t == nil {
		return nil, fmt.Errorf("escrow: nil transaction")
	}
	clone := t.Clone()
	if strings.TrimSpace(clone.ID) == "" {
		return nil, fmt.Errorf("escrow: missing identifier")
	}
	if clone.Amount <= 0 {
		return nil, fmt.Errorf("escrow: amount must be positive")
	}
	if clone.BuyerID == "" || clone.SellerID == "" || clone.BuyerID == clone.SellerID {
		return nil, fmt.Errorf("escrow: buyer and seller must be distinct")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("escrow: invalid status %q", clone.Status)
	}
	if int64(len(clone.History)) != clone.Version {
		return nil, fmt.Errorf("escrow: history length %d diverges from version %d", len(clone.History), clone.Version)
	}
	if len(clone.History) > 0 && clone.History[len(clone.History)-1].ToStatus != clone.Status {
		return nil, fmt.Errorf("escrow: status %q diverges from last history entry", clone.Status)
	}
	return clone, nil
}

// CreateInput is the payload accepted by the create action.
type CreateInput struct {
	ListingID string `json:"listingId"`
	BuyerID   string `json:"buyerId"`
	SellerID  string `json:"sellerId"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
}

// FundInput carries the proof-of-payment reference for the fund action.
type FundInput struct {
	Method    string `json:"method"`
	Reference string `json:"reference"`
}

// ReleaseRequestInput carries the optional reason for a release request.
type ReleaseRequestInput struct {
	Reason string `json:"reason,omitempty"`
}

// DisputeInput carries the dispute reason and supporting evidence references.
type DisputeInput struct {
	Reason   string   `json:"reason"`
	Evidence []string `json:"evidence"`
}

// ResolveInput carries the arbitrator-determined outcome for a dispute.
type ResolveInput struct {
	Outcome   Status `json:"outcome"`
	Rationale string `json:"rationale"`
}

// CancelInput carries the optional reason for cancelling a pending escrow.
type CancelInput struct {
	Reason string `json:"reason,omitempty"`
}
