package escrow

// Summary is the per-actor aggregation view derived from the ledger. It is
// recomputed from listByActor on demand and carries no counter state of its
// own, so it can never drift from the source of truth.
type Summary struct {
	Total      int   `json:"total"`
	Active     int   `json:"active"`
	Completed  int   `json:"completed"`
	Disputed   int   `json:"disputed"`
	TotalValue int64 `json:"totalValue"`
}

// Summarize folds a list of transactions into the aggregation view. Active
// covers PENDING, FUNDED and RELEASE_REQUESTED; completed covers RELEASED;
// disputed covers IN_DISPUTE. TotalValue sums amounts over all non-CANCELLED
// transactions.
func Summarize(list []*Transaction) Summary {
	var s Summary
	for _, t := range list {
		if t == nil {
			continue
		}
		s.Total++
		switch t.Status {
		case StatusPending, StatusFunded, StatusReleaseRequested:
			s.Active++
		case StatusReleased:
			s.Completed++
		case StatusInDispute:
			s.Disputed++
		}
		if t.Status != StatusCancelled {
			s.TotalValue += t.Amount
		}
	}
	return s
}
