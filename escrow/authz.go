package escrow

import "context"

// RoleChecker reports whether an actor holds a platform role. Buyer and seller
// eligibility is derived from the transaction itself; only arbitrator checks
// are delegated here, so implementations are an opaque capability lookup
// against the platform's user system.
type RoleChecker interface {
	HasRole(ctx context.Context, actorID string, role Role) bool
}

// RoleCheckerFunc adapts a function to the RoleChecker interface.
type RoleCheckerFunc func(ctx context.Context, actorID string, role Role) bool

func (f RoleCheckerFunc) HasRole(ctx context.Context, actorID string, role Role) bool {
	return f(ctx, actorID, role)
}

// Guard decides whether an actor may invoke an action on a transaction. It
// holds no persistent state.
type Guard struct {
	roles RoleChecker
}

// NewGuard constructs a guard. A nil checker denies all arbitrator actions.
func NewGuard(roles RoleChecker) *Guard {
	return &Guard{roles: roles}
}

// CanPerform returns nil when the actor is entitled to the action, or an error
// wrapping ErrUnauthorized otherwise. It assumes the action has not yet been
// validated against the transition table.
func (g *Guard) CanPerform(ctx context.Context, t *Transaction, actor string, action Action) error {
	if t == nil || actor == "" {
		return unauthorized(action, "")
	}
	switch action {
	case ActionCreate, ActionFund:
		if actor != t.BuyerID {
			return unauthorized(action, t.Status)
		}
	case ActionRequestRelease, ActionDispute, ActionCancel:
		if !t.Party(actor) {
			return unauthorized(action, t.Status)
		}
	case ActionApproveRelease:
		if !t.Party(actor) {
			return unauthorized(action, t.Status)
		}
		// Self-approval of one's own release request is forbidden. This is a
		// hard invariant, not a UI convention. A missing release request is a
		// transition problem, not an authorization one.
		if t.ReleaseRequestedBy != "" && actor == t.ReleaseRequestedBy {
			return unauthorized(action, t.Status)
		}
	case ActionResolve:
		if g == nil || g.roles == nil || !g.roles.HasRole(ctx, actor, RoleArbitrator) {
			return unauthorized(action, t.Status)
		}
	default:
		return unauthorized(action, t.Status)
	}
	return nil
}

// CanRead reports whether the actor may view the full transaction record. The
// audit history is visible to both parties and any arbitrator.
func (g *Guard) CanRead(ctx context.Context, t *Transaction, actor string) bool {
	if t == nil || actor == "" {
		return false
	}
	if t.Party(actor) {
		return true
	}
	return g != nil && g.roles != nil && g.roles.HasRole(ctx, actor, RoleArbitrator)
}
