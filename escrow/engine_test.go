package escrow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type mockLedger struct {
	mu      sync.Mutex
	records map[string]*Transaction
	appends int
	failErr error
	latency time.Duration
}

func newMockLedger() *mockLedger {
	return &mockLedger{records: make(map[string]*Transaction)}
}

func (m *mockLedger) failNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *mockLedger) appendCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func (m *mockLedger) setLatency(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency = d
}

func (m *mockLedger) Get(_ context.Context, id string) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: escrow %s", ErrNotFound, id)
	}
	return t.Clone(), nil
}

func (m *mockLedger) Append(_ context.Context, id string, expectedVersion int64, t *Transaction) (*Transaction, error) {
	m.mu.Lock()
	latency := m.latency
	m.mu.Unlock()
	if latency > 0 {
		time.Sleep(latency)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		err := m.failErr
		m.failErr = nil
		return nil, err
	}
	sanitized, err := Sanitize(t)
	if err != nil {
		return nil, err
	}
	current, ok := m.records[id]
	if expectedVersion == 0 {
		if ok {
			return nil, fmt.Errorf("%w: escrow %s already exists", ErrConcurrentModification, id)
		}
	} else {
		if !ok {
			return nil, fmt.Errorf("%w: escrow %s", ErrNotFound, id)
		}
		if current.Version != expectedVersion {
			return nil, fmt.Errorf("%w: escrow %s at version %d", ErrConcurrentModification, id, current.Version)
		}
	}
	m.appends++
	m.records[id] = sanitized
	return sanitized.Clone(), nil
}

func (m *mockLedger) ListByActor(_ context.Context, actorID string, statuses ...Status) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var list []*Transaction
	for _, t := range m.records {
		if t.BuyerID != actorID && t.SellerID != actorID {
			continue
		}
		if len(statuses) > 0 {
			matched := false
			for _, status := range statuses {
				if t.Status == status {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		list = append(list, t.Clone())
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
	return list, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []Event
}

func (r *recordingEmitter) Emit(evt Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
}

func (r *recordingEmitter) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, evt := range r.events {
		out = append(out, evt.Type)
	}
	return out
}

const (
	testBuyer      = "buyer-1"
	testSeller     = "seller-1"
	testArbitrator = "arb-1"
	testStranger   = "stranger-9"
)

func newTestEngine(t *testing.T) (*Engine, *mockLedger, *recordingEmitter) {
	t.Helper()
	ledger := newMockLedger()
	guard := NewGuard(RoleCheckerFunc(func(_ context.Context, actorID string, role Role) bool {
		return role == RoleArbitrator && actorID == testArbitrator
	}))
	engine := NewEngine(ledger, guard, NewCoordinator(WithWaitBudget(250*time.Millisecond)))
	emitter := &recordingEmitter{}
	engine.SetEmitter(emitter)

	var idSeq int
	engine.SetIDFunc(func() string {
		idSeq++
		return fmt.Sprintf("esc-%03d", idSeq)
	})
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	var tick int64
	engine.SetNowFunc(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	})
	return engine, ledger, emitter
}

var tokenSeq int

func nextToken() string {
	tokenSeq++
	return fmt.Sprintf("token-%04d", tokenSeq)
}

func mustCreate(t *testing.T, engine *Engine) *Transaction {
	t.Helper()
	created, err := engine.Create(context.Background(), testBuyer, nextToken(), CreateInput{
		ListingID: "listing-1",
		BuyerID:   testBuyer,
		SellerID:  testSeller,
		Amount:    100,
		Currency:  "eur",
	})
	if err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	return created
}

func mustFund(t *testing.T, engine *Engine, id string) *Transaction {
	t.Helper()
	funded, err := engine.Fund(context.Background(), id, testBuyer, nextToken(), FundInput{Method: "bank_transfer", Reference: "tx-777"})
	if err != nil {
		t.Fatalf("fund escrow: %v", err)
	}
	return funded
}

func checkInvariants(t *testing.T, tx *Transaction) {
	t.Helper()
	if int64(len(tx.History)) != tx.Version {
		t.Fatalf("history length %d diverges from version %d", len(tx.History), tx.Version)
	}
	if len(tx.History) > 0 && tx.History[len(tx.History)-1].ToStatus != tx.Status {
		t.Fatalf("status %s diverges from last history entry %s", tx.Status, tx.History[len(tx.History)-1].ToStatus)
	}
}

func TestCreateInitialState(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	created := mustCreate(t, engine)

	if created.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", created.Status)
	}
	if created.Version != 1 || len(created.History) != 1 {
		t.Fatalf("expected version 1 with one history entry, got version %d and %d entries", created.Version, len(created.History))
	}
	if created.Currency != "EUR" {
		t.Fatalf("expected canonical currency EUR, got %q", created.Currency)
	}
	entry := created.History[0]
	if entry.Action != ActionCreate || entry.Actor != testBuyer || entry.ToStatus != StatusPending || entry.FromStatus != "" {
		t.Fatalf("unexpected create history entry: %+v", entry)
	}
	if got := emitter.types(); len(got) != 1 || got[0] != EventTypeCreated {
		t.Fatalf("expected a single %s event, got %v", EventTypeCreated, got)
	}
	checkInvariants(t, created)
}

func TestCreateValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor string
		in    CreateInput
	}{
		{"zero amount", testBuyer, CreateInput{BuyerID: testBuyer, SellerID: testSeller, Amount: 0, Currency: "EUR"}},
		{"negative amount", testBuyer, CreateInput{BuyerID: testBuyer, SellerID: testSeller, Amount: -5, Currency: "EUR"}},
		{"same parties", testBuyer, CreateInput{BuyerID: testBuyer, SellerID: testBuyer, Amount: 10, Currency: "EUR"}},
		{"missing seller", testBuyer, CreateInput{BuyerID: testBuyer, Amount: 10, Currency: "EUR"}},
		{"bad currency", testBuyer, CreateInput{BuyerID: testBuyer, SellerID: testSeller, Amount: 10, Currency: "EURO"}},
	}
	for _, tc := range cases {
		if _, err := engine.Create(ctx, tc.actor, nextToken(), tc.in); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}

	if _, err := engine.Create(ctx, testSeller, nextToken(), CreateInput{BuyerID: testBuyer, SellerID: testSeller, Amount: 10, Currency: "EUR"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-buyer creator, got %v", err)
	}
}

func TestHappyPathRelease(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)

	funded := mustFund(t, engine, created.ID)
	if funded.Status != StatusFunded || funded.Version != 2 {
		t.Fatalf("expected FUNDED at version 2, got %s at %d", funded.Status, funded.Version)
	}
	if funded.FundingProof == nil || funded.FundingProof.Reference != "tx-777" {
		t.Fatalf("funding proof not recorded: %+v", funded.FundingProof)
	}

	requested, err := engine.RequestRelease(ctx, created.ID, testSeller, nextToken(), ReleaseRequestInput{Reason: "order shipped"})
	if err != nil {
		t.Fatalf("request release: %v", err)
	}
	if requested.Status != StatusReleaseRequested || requested.ReleaseRequestedBy != testSeller {
		t.Fatalf("unexpected release request state: %s requested by %q", requested.Status, requested.ReleaseRequestedBy)
	}

	// The requester cannot approve their own release request.
	_, selfErr := engine.ApproveRelease(ctx, created.ID, testSeller, nextToken())
	if !errors.Is(selfErr, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for self-approval, got %v", selfErr)
	}
	if status, ok := CurrentStatus(selfErr); !ok || status != StatusReleaseRequested {
		t.Fatalf("expected echoed status RELEASE_REQUESTED, got %s (ok=%v)", status, ok)
	}

	released, err := engine.ApproveRelease(ctx, created.ID, testBuyer, nextToken())
	if err != nil {
		t.Fatalf("approve release: %v", err)
	}
	if released.Status != StatusReleased || released.Version != 4 {
		t.Fatalf("expected RELEASED at version 4, got %s at %d", released.Status, released.Version)
	}
	if released.ReleaseRequestedBy != "" {
		t.Fatalf("release request marker should clear on settlement")
	}
	checkInvariants(t, released)

	// Terminal states accept no further transitions.
	_, err = engine.Fund(ctx, created.ID, testBuyer, nextToken(), FundInput{Method: "bank_transfer", Reference: "tx-778"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition on terminal state, got %v", err)
	}
	if status, ok := CurrentStatus(err); !ok || status != StatusReleased {
		t.Fatalf("expected echoed status RELEASED, got %s (ok=%v)", status, ok)
	}

	want := []string{EventTypeCreated, EventTypeFunded, EventTypeReleaseRequested, EventTypeReleased}
	got := emitter.types()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}
}

func TestDisputeSupersedesReleaseRequest(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)
	mustFund(t, engine, created.ID)

	if _, err := engine.RequestRelease(ctx, created.ID, testBuyer, nextToken(), ReleaseRequestInput{}); err != nil {
		t.Fatalf("request release: %v", err)
	}

	disputed, err := engine.Dispute(ctx, created.ID, testSeller, nextToken(), DisputeInput{
		Reason:   "item not as described",
		Evidence: []string{"photo-1", "photo-2"},
	})
	if err != nil {
		t.Fatalf("dispute: %v", err)
	}
	if disputed.Status != StatusInDispute {
		t.Fatalf("expected IN_DISPUTE, got %s", disputed.Status)
	}
	if disputed.ReleaseRequestedBy != "" {
		t.Fatalf("dispute must supersede the pending release request")
	}
	if disputed.Dispute == nil || disputed.Dispute.RaisedBy != testSeller || len(disputed.Dispute.Evidence) != 2 {
		t.Fatalf("dispute record incomplete: %+v", disputed.Dispute)
	}

	// The superseded release request can no longer be approved.
	if _, err := engine.ApproveRelease(ctx, created.ID, testBuyer, nextToken()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition after dispute, got %v", err)
	}
	checkInvariants(t, disputed)
}

func TestResolveOutcomes(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)
	mustFund(t, engine, created.ID)
	if _, err := engine.Dispute(ctx, created.ID, testBuyer, nextToken(), DisputeInput{Reason: "never delivered"}); err != nil {
		t.Fatalf("dispute: %v", err)
	}

	// Parties cannot arbitrate their own dispute.
	if _, err := engine.Resolve(ctx, created.ID, testBuyer, nextToken(), ResolveInput{Outcome: StatusRefunded, Rationale: "x"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-arbitrator, got %v", err)
	}
	if _, err := engine.Resolve(ctx, created.ID, testArbitrator, nextToken(), ResolveInput{Outcome: StatusFunded, Rationale: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad outcome, got %v", err)
	}
	if _, err := engine.Resolve(ctx, created.ID, testArbitrator, nextToken(), ResolveInput{Outcome: StatusRefunded}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for missing rationale, got %v", err)
	}

	resolved, err := engine.Resolve(ctx, created.ID, testArbitrator, nextToken(), ResolveInput{Outcome: StatusRefunded, Rationale: "seller unresponsive"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusRefunded {
		t.Fatalf("expected REFUNDED, got %s", resolved.Status)
	}
	if resolved.Dispute == nil {
		t.Fatalf("dispute record must survive resolution for audit")
	}
	checkInvariants(t, resolved)

	got := emitter.types()
	if got[len(got)-1] != EventTypeRefunded {
		t.Fatalf("expected trailing %s event, got %v", EventTypeRefunded, got)
	}
}

func TestCancelOnlyBeforeFunding(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	created := mustCreate(t, engine)
	cancelled, err := engine.Cancel(ctx, created.ID, testSeller, nextToken(), CancelInput{Reason: "listing withdrawn"})
	if err != nil {
		t.Fatalf("cancel pending escrow: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", cancelled.Status)
	}

	second := mustCreate(t, engine)
	mustFund(t, engine, second.ID)
	if _, err := engine.Cancel(ctx, second.ID, testBuyer, nextToken(), CancelInput{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition cancelling a funded escrow, got %v", err)
	}
}

func TestUnknownEscrowAndStrangers(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	if _, err := engine.Fund(ctx, "esc-missing", testBuyer, nextToken(), FundInput{Method: "m", Reference: "r"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	created := mustCreate(t, engine)
	if _, err := engine.Fund(ctx, created.ID, testStranger, nextToken(), FundInput{Method: "m", Reference: "r"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger fund, got %v", err)
	}
	if _, err := engine.Get(ctx, created.ID, testStranger); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for stranger read, got %v", err)
	}
	if _, err := engine.Get(ctx, created.ID, testArbitrator); err != nil {
		t.Fatalf("arbitrator read: %v", err)
	}
}

func TestIdempotentTokenReplay(t *testing.T) {
	engine, ledger, _ := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)

	token := nextToken()
	in := FundInput{Method: "bank_transfer", Reference: "tx-1"}
	first, err := engine.Fund(ctx, created.ID, testBuyer, token, in)
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	appends := ledger.appendCount()

	replayed, err := engine.Fund(ctx, created.ID, testBuyer, token, in)
	if err != nil {
		t.Fatalf("replay fund: %v", err)
	}
	if replayed.Version != first.Version || replayed.Status != first.Status {
		t.Fatalf("replay must return the original outcome, got version %d status %s", replayed.Version, replayed.Status)
	}
	if got := ledger.appendCount(); got != appends {
		t.Fatalf("replay must not touch the ledger, appends went from %d to %d", appends, got)
	}

	// Reusing the token with a different payload is a conflict.
	if _, err := engine.Fund(ctx, created.ID, testBuyer, token, FundInput{Method: "bank_transfer", Reference: "tx-2"}); !errors.Is(err, ErrIdempotencyMismatch) {
		t.Fatalf("expected ErrIdempotencyMismatch, got %v", err)
	}
}

func TestRejectionsAreReplayedByToken(t *testing.T) {
	engine, ledger, _ := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)
	mustFund(t, engine, created.ID)
	if _, err := engine.RequestRelease(ctx, created.ID, testSeller, nextToken(), ReleaseRequestInput{}); err != nil {
		t.Fatalf("request release: %v", err)
	}

	token := nextToken()
	_, firstErr := engine.ApproveRelease(ctx, created.ID, testSeller, token)
	if !errors.Is(firstErr, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", firstErr)
	}
	appends := ledger.appendCount()
	_, replayErr := engine.ApproveRelease(ctx, created.ID, testSeller, token)
	if !errors.Is(replayErr, ErrUnauthorized) {
		t.Fatalf("expected replayed ErrUnauthorized, got %v", replayErr)
	}
	if got := ledger.appendCount(); got != appends {
		t.Fatalf("rejection replay must not touch the ledger")
	}
}

func TestRetryableFailuresAreNotCached(t *testing.T) {
	engine, ledger, _ := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)

	token := nextToken()
	in := FundInput{Method: "bank_transfer", Reference: "tx-1"}
	ledger.failNext(fmt.Errorf("%w: disk offline", ErrUnavailable))
	if _, err := engine.Fund(ctx, created.ID, testBuyer, token, in); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	funded, err := engine.Fund(ctx, created.ID, testBuyer, token, in)
	if err != nil {
		t.Fatalf("retry with same token after outage: %v", err)
	}
	if funded.Status != StatusFunded || funded.Version != 2 {
		t.Fatalf("expected FUNDED at version 2, got %s at %d", funded.Status, funded.Version)
	}
}

func TestConcurrentCreateSameTokenAppliedOnce(t *testing.T) {
	engine, ledger, _ := newTestEngine(t)
	ctx := context.Background()
	ledger.setLatency(20 * time.Millisecond)

	token := nextToken()
	in := CreateInput{
		ListingID: "listing-1",
		BuyerID:   testBuyer,
		SellerID:  testSeller,
		Amount:    100,
		Currency:  "EUR",
	}

	type outcome struct {
		tx  *Transaction
		err error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := engine.Create(ctx, testBuyer, token, in)
			results <- outcome{tx: tx, err: err}
		}()
	}
	wg.Wait()
	close(results)

	ids := make(map[string]bool)
	for res := range results {
		if res.err != nil {
			t.Fatalf("retried create must replay, not fail: %v", res.err)
		}
		ids[res.tx.ID] = true
	}
	if len(ids) != 1 {
		t.Fatalf("token applied %d times, expected exactly one escrow", len(ids))
	}
	if got := ledger.appendCount(); got != 1 {
		t.Fatalf("expected a single ledger append, got %d", got)
	}
}

func TestConcurrentFundSingleWinner(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	created := mustCreate(t, engine)

	type outcome struct {
		tx  *Transaction
		err error
	}
	results := make(chan outcome, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(ref string) {
			defer wg.Done()
			tx, err := engine.Fund(ctx, created.ID, testBuyer, nextToken(), FundInput{Method: "bank_transfer", Reference: ref})
			results <- outcome{tx: tx, err: err}
		}(fmt.Sprintf("tx-%d", i))
	}
	wg.Wait()
	close(results)

	var successes, rejections int
	for res := range results {
		if res.err == nil {
			successes++
			continue
		}
		if errors.Is(res.err, ErrInvalidTransition) || errors.Is(res.err, ErrConcurrentModification) {
			rejections++
			continue
		}
		t.Fatalf("unexpected error from concurrent fund: %v", res.err)
	}
	if successes != 1 || rejections != 1 {
		t.Fatalf("expected exactly one winner, got %d successes and %d rejections", successes, rejections)
	}

	final, err := engine.Get(ctx, created.ID, testBuyer)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if final.Status != StatusFunded || final.Version != 2 || len(final.History) != 2 {
		t.Fatalf("expected a single accepted fund, got %s version %d with %d entries", final.Status, final.Version, len(final.History))
	}
}

func TestListByActorWithSummary(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	first := mustCreate(t, engine)
	mustFund(t, engine, first.ID)

	second := mustCreate(t, engine)

	third := mustCreate(t, engine)
	mustFund(t, engine, third.ID)
	if _, err := engine.RequestRelease(ctx, third.ID, testSeller, nextToken(), ReleaseRequestInput{}); err != nil {
		t.Fatalf("request release: %v", err)
	}
	if _, err := engine.ApproveRelease(ctx, third.ID, testBuyer, nextToken()); err != nil {
		t.Fatalf("approve release: %v", err)
	}

	list, summary, err := engine.ListByActor(ctx, testBuyer)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 escrows, got %d", len(list))
	}
	for i := 1; i < len(list); i++ {
		if list[i-1].CreatedAt.Before(list[i].CreatedAt) {
			t.Fatalf("list must be newest-first")
		}
	}
	if summary.Total != 3 || summary.Active != 2 || summary.Completed != 1 || summary.Disputed != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.TotalValue != 300 {
		t.Fatalf("expected total value 300, got %d", summary.TotalValue)
	}

	filtered, _, err := engine.ListByActor(ctx, testBuyer, StatusPending)
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(filtered) != 1 || filtered[0].ID != second.ID {
		t.Fatalf("expected only the pending escrow, got %d entries", len(filtered))
	}

	if _, _, err := engine.ListByActor(ctx, testBuyer, Status("NOPE")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad filter, got %v", err)
	}
}

func TestAvailableActions(t *testing.T) {
	cases := []struct {
		from Status
		want []Action
	}{
		{StatusPending, []Action{ActionFund, ActionCancel}},
		{StatusFunded, []Action{ActionRequestRelease, ActionDispute}},
		{StatusReleaseRequested, []Action{ActionApproveRelease, ActionDispute}},
		{StatusInDispute, []Action{ActionResolve}},
		{StatusReleased, nil},
		{StatusResolved, nil},
		{StatusRefunded, nil},
		{StatusCancelled, nil},
	}
	for _, tc := range cases {
		got := AvailableActions(tc.from)
		if len(got) != len(tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.from, tc.want, got)
		}
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Fatalf("%s: expected %v, got %v", tc.from, tc.want, got)
			}
		}
	}
}
