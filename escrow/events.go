package escrow

import (
	"strconv"
)

const (
	EventTypeCreated          = "escrow.created"
	EventTypeFunded           = "escrow.funded"
	EventTypeReleaseRequested = "escrow.release_requested"
	EventTypeReleased         = "escrow.released"
	EventTypeDisputed         = "escrow.disputed"
	EventTypeResolved         = "escrow.resolved"
	EventTypeRefunded         = "escrow.refunded"
	EventTypeCancelled        = "escrow.cancelled"
)

// Event is the canonical notification payload emitted after an accepted
// transition. Delivery is the concern of the configured emitter.
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives lifecycle events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// NewCreatedEvent returns the canonical event payload for a newly created
// escrow transaction.
func NewCreatedEvent(t *Transaction) Event { return newEvent(EventTypeCreated, t) }

// NewFundedEvent returns the canonical event payload emitted when an escrow is
// funded by the buyer.
func NewFundedEvent(t *Transaction) Event { return newEvent(EventTypeFunded, t) }

// NewReleaseRequestedEvent returns the event payload emitted when a party
// requests release of held funds.
func NewReleaseRequestedEvent(t *Transaction) Event { return newEvent(EventTypeReleaseRequested, t) }

// NewReleasedEvent returns the event payload for an approved release.
func NewReleasedEvent(t *Transaction) Event { return newEvent(EventTypeReleased, t) }

// NewDisputedEvent returns the event payload emitted when a dispute is raised.
func NewDisputedEvent(t *Transaction) Event { return newEvent(EventTypeDisputed, t) }

// NewResolvedEvent returns the event payload emitted when an arbitrator settles
// a dispute, regardless of outcome.
func NewResolvedEvent(t *Transaction) Event { return newEvent(EventTypeResolved, t) }

// NewRefundedEvent returns the event payload for a refund resolution.
func NewRefundedEvent(t *Transaction) Event { return newEvent(EventTypeRefunded, t) }

// NewCancelledEvent returns the event payload for a cancelled escrow.
func NewCancelledEvent(t *Transaction) Event { return newEvent(EventTypeCancelled, t) }

func newEvent(eventType string, t *Transaction) Event {
	attrs := make(map[string]string)
	if t == nil {
		return Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = t.ID
	attrs["listingId"] = t.ListingID
	attrs["buyer"] = t.BuyerID
	attrs["seller"] = t.SellerID
	attrs["amount"] = strconv.FormatInt(t.Amount, 10)
	attrs["currency"] = t.Currency
	attrs["status"] = string(t.Status)
	attrs["version"] = strconv.FormatInt(t.Version, 10)
	if t.Dispute != nil {
		attrs["disputeRaisedBy"] = t.Dispute.RaisedBy
	}
	return Event{Type: eventType, Attributes: attrs}
}

func eventForTransition(t *Transaction, entry HistoryEntry) Event {
	switch entry.Action {
	case ActionCreate:
		return NewCreatedEvent(t)
	case ActionFund:
		return NewFundedEvent(t)
	case ActionRequestRelease:
		return NewReleaseRequestedEvent(t)
	case ActionApproveRelease:
		return NewReleasedEvent(t)
	case ActionDispute:
		return NewDisputedEvent(t)
	case ActionResolve:
		if t.Status == StatusRefunded {
			return NewRefundedEvent(t)
		}
		return NewResolvedEvent(t)
	case ActionCancel:
		return NewCancelledEvent(t)
	default:
		return newEvent("escrow."+string(entry.Action), t)
	}
}
