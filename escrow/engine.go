package escrow

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// transitions is the single authoritative table of legal actions per source
// status. Any action not listed for the current status is rejected with
// ErrInvalidTransition; callers never encode transition legality themselves.
var transitions = map[Action][]Status{
	ActionFund:           {StatusPending},
	ActionRequestRelease: {StatusFunded},
	ActionApproveRelease: {StatusReleaseRequested},
	ActionDispute:        {StatusFunded, StatusReleaseRequested},
	ActionResolve:        {StatusInDispute},
	ActionCancel:         {StatusPending},
}

func transitionAllowed(action Action, from Status) bool {
	for _, status := range transitions[action] {
		if status == from {
			return true
		}
	}
	return false
}

// AvailableActions returns the actions legal from the given status. UIs derive
// their offered buttons from this, never from their own switch.
func AvailableActions(from Status) []Action {
	var actions []Action
	for _, action := range []Action{ActionFund, ActionRequestRelease, ActionApproveRelease, ActionDispute, ActionResolve, ActionCancel} {
		if transitionAllowed(action, from) {
			actions = append(actions, action)
		}
	}
	return actions
}

// Engine is the sole authority translating (status, action, actor, payload)
// into an accepted transition or a typed rejection. All mutations flow through
// the ledger's atomic append; the coordinator serializes per-id access and
// replays retried idempotency tokens.
type Engine struct {
	ledger  Ledger
	guard   *Guard
	coord   *Coordinator
	emitter Emitter
	nowFn   func() time.Time
	idFn    func() string
}

// NewEngine creates an engine with a no-op emitter. Callers can override the
// emitter via SetEmitter.
func NewEngine(ledger Ledger, guard *Guard, coord *Coordinator) *Engine {
	if coord == nil {
		coord = NewCoordinator()
	}
	if guard == nil {
		guard = NewGuard(nil)
	}
	return &Engine{
		ledger:  ledger,
		guard:   guard,
		coord:   coord,
		emitter: NoopEmitter{},
		nowFn:   time.Now,
		idFn:    uuid.NewString,
	}
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter Emitter) {
	if emitter == nil {
		e.emitter = NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

// SetIDFunc overrides identifier generation, primarily used in tests.
func (e *Engine) SetIDFunc(id func() string) {
	if id == nil {
		e.idFn = uuid.NewString
		return
	}
	e.idFn = id
}

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now()
	}
	return e.nowFn().UTC()
}

func (e *Engine) emit(evt Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Create initialises and persists a new escrow transaction in PENDING. The
// actor must be the buyer; buyer and seller must differ and the amount must be
// positive.
func (e *Engine) Create(ctx context.Context, actor, token string, in CreateInput) (*Transaction, error) {
	if in.Amount <= 0 {
		return nil, invalidInput("amount must be positive")
	}
	buyer := strings.TrimSpace(in.BuyerID)
	seller := strings.TrimSpace(in.SellerID)
	if buyer == "" || seller == "" {
		return nil, invalidInput("buyer and seller are required")
	}
	if buyer == seller {
		return nil, invalidInput("buyer and seller must be distinct")
	}
	currency, err := NormalizeCurrency(in.Currency)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if actor != buyer {
		return nil, unauthorized(ActionCreate, "")
	}
	digest := payloadDigest(ActionCreate, "", in)
	if cached, ok, cachedErr := e.coord.LookupOutcome(token, digest); ok {
		return cached, cachedErr
	}
	if token != "" {
		// No escrow id exists yet, so retried creates serialize on the token.
		release, err := e.coord.Acquire(ctx, "create:"+token)
		if err != nil {
			return nil, err
		}
		defer release()
		if cached, ok, cachedErr := e.coord.LookupOutcome(token, digest); ok {
			return cached, cachedErr
		}
	}
	now := e.now()
	t := &Transaction{
		ID:        e.idFn(),
		ListingID: strings.TrimSpace(in.ListingID),
		BuyerID:   buyer,
		SellerID:  seller,
		Amount:    in.Amount,
		Currency:  currency,
		Status:    StatusPending,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		History: []HistoryEntry{{
			Action:        ActionCreate,
			Actor:         actor,
			ToStatus:      StatusPending,
			Timestamp:     now,
			PayloadDigest: digest,
		}},
	}
	stored, err := e.ledger.Append(ctx, t.ID, 0, t)
	if err != nil {
		return nil, err
	}
	e.coord.StoreOutcome(token, digest, stored, nil)
	e.emit(NewCreatedEvent(stored))
	return stored, nil
}

// Fund records the buyer's proof of payment and moves the escrow to FUNDED.
func (e *Engine) Fund(ctx context.Context, id, actor, token string, in FundInput) (*Transaction, error) {
	if strings.TrimSpace(in.Method) == "" || strings.TrimSpace(in.Reference) == "" {
		return nil, invalidInput("funding proof method and reference are required")
	}
	return e.apply(ctx, id, actor, token, ActionFund, in, func(t *Transaction, now time.Time) error {
		t.Status = StatusFunded
		t.FundingProof = &FundingProof{Method: strings.TrimSpace(in.Method), Reference: strings.TrimSpace(in.Reference)}
		return nil
	})
}

// RequestRelease asks the counterparty to approve release of the held funds.
// Either party may request; approval must come from the other side.
func (e *Engine) RequestRelease(ctx context.Context, id, actor, token string, in ReleaseRequestInput) (*Transaction, error) {
	return e.apply(ctx, id, actor, token, ActionRequestRelease, in, func(t *Transaction, now time.Time) error {
		t.Status = StatusReleaseRequested
		t.ReleaseRequestedBy = actor
		return nil
	})
}

// ApproveRelease settles the escrow in favour of the seller. Only the
// counterparty of the pending release request may approve.
func (e *Engine) ApproveRelease(ctx context.Context, id, actor, token string) (*Transaction, error) {
	return e.apply(ctx, id, actor, token, ActionApproveRelease, struct{}{}, func(t *Transaction, now time.Time) error {
		t.Status = StatusReleased
		t.ReleaseRequestedBy = ""
		return nil
	})
}

// Dispute freezes the escrow pending arbitration. A dispute raised while a
// release request is pending supersedes the request.
func (e *Engine) Dispute(ctx context.Context, id, actor, token string, in DisputeInput) (*Transaction, error) {
	if strings.TrimSpace(in.Reason) == "" {
		return nil, invalidInput("dispute reason is required")
	}
	return e.apply(ctx, id, actor, token, ActionDispute, in, func(t *Transaction, now time.Time) error {
		evidence := in.Evidence
		if evidence == nil {
			evidence = []string{}
		}
		t.Status = StatusInDispute
		t.ReleaseRequestedBy = ""
		t.Dispute = &Dispute{
			RaisedBy: actor,
			Reason:   strings.TrimSpace(in.Reason),
			Evidence: append([]string(nil), evidence...),
			RaisedAt: now,
		}
		return nil
	})
}

// Resolve settles a disputed escrow according to the arbitrator-determined
// outcome. Valid outcomes are RESOLVED (funds to seller) and REFUNDED (funds
// back to buyer). The dispute record is preserved for audit.
func (e *Engine) Resolve(ctx context.Context, id, actor, token string, in ResolveInput) (*Transaction, error) {
	if in.Outcome != StatusResolved && in.Outcome != StatusRefunded {
		return nil, invalidInput("resolution outcome must be RESOLVED or REFUNDED")
	}
	if strings.TrimSpace(in.Rationale) == "" {
		return nil, invalidInput("resolution rationale is required")
	}
	return e.apply(ctx, id, actor, token, ActionResolve, in, func(t *Transaction, now time.Time) error {
		t.Status = in.Outcome
		return nil
	})
}

// Cancel abandons a PENDING escrow before funding. Either party may cancel.
func (e *Engine) Cancel(ctx context.Context, id, actor, token string, in CancelInput) (*Transaction, error) {
	return e.apply(ctx, id, actor, token, ActionCancel, in, func(t *Transaction, now time.Time) error {
		t.Status = StatusCancelled
		return nil
	})
}

// Get returns the full transaction record. The audit history is visible to
// both parties and any arbitrator; everyone else is rejected.
func (e *Engine) Get(ctx context.Context, id, actor string) (*Transaction, error) {
	t, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !e.guard.CanRead(ctx, t, actor) {
		return nil, unauthorized("read", t.Status)
	}
	return t, nil
}

// ListByActor returns the actor's transactions newest-first together with the
// derived summary. The summary is recomputed from the ledger on every read, so
// it is always consistent with the returned records.
func (e *Engine) ListByActor(ctx context.Context, actor string, statuses ...Status) ([]*Transaction, Summary, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, Summary{}, invalidInput("invalid status filter %q", status)
		}
	}
	list, err := e.ledger.ListByActor(ctx, actor, statuses...)
	if err != nil {
		return nil, Summary{}, err
	}
	return list, Summarize(list), nil
}

func (e *Engine) apply(ctx context.Context, id, actor, token string, action Action, payload any, mutate func(*Transaction, time.Time) error) (*Transaction, error) {
	if strings.TrimSpace(id) == "" {
		return nil, invalidInput("escrow id is required")
	}
	digest := payloadDigest(action, id, payload)
	if cached, ok, cachedErr := e.coord.LookupOutcome(token, digest); ok {
		return cached, cachedErr
	}
	release, err := e.coord.Acquire(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	// A retried request may have been applied by the holder of the lease we
	// just waited on.
	if cached, ok, cachedErr := e.coord.LookupOutcome(token, digest); ok {
		return cached, cachedErr
	}

	current, err := e.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := e.guard.CanPerform(ctx, current, actor, action); err != nil {
		e.coord.StoreOutcome(token, digest, nil, err)
		return nil, err
	}
	if !transitionAllowed(action, current.Status) {
		err := invalidTransition(action, current.Status)
		e.coord.StoreOutcome(token, digest, nil, err)
		return nil, err
	}

	next := current.Clone()
	now := e.now()
	if err := mutate(next, now); err != nil {
		return nil, err
	}
	next.Version = current.Version + 1
	next.UpdatedAt = now
	next.History = append(next.History, HistoryEntry{
		Action:        action,
		Actor:         actor,
		FromStatus:    current.Status,
		ToStatus:      next.Status,
		Timestamp:     now,
		PayloadDigest: digest,
	})

	stored, err := e.ledger.Append(ctx, id, current.Version, next)
	if err != nil {
		return nil, err
	}
	e.coord.StoreOutcome(token, digest, stored, nil)
	e.emit(eventForTransition(stored, stored.History[len(stored.History)-1]))
	return stored, nil
}

// payloadDigest produces the audit digest recorded in history entries and used
// for idempotency token matching. Tokens reused with a different digest are
// rejected as a conflict.
func payloadDigest(action Action, id string, payload any) string {
	encoded, err := json.Marshal(payload)
	if err != nil {
		encoded = []byte(fmt.Sprintf("%v", payload))
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{string(action), id, string(encoded)}, "\n")))
	return fmt.Sprintf("%x", sum[:])
}
