package types

// Attribute names read and written by the router.
const (
	AttrAmount   = "transaction.amount"
	AttrCategory = "transaction.category"
	AttrStatus   = "transaction.status"
)

// Outcome values reported in Result.Outcome.
const (
	OutcomeRouted  = "routed"
	OutcomeDropped = "dropped"
)

// Record is one transaction as submitted to the router.
// ID is optional; the router assigns a UUID when it is empty.
type Record struct {
	ID         string            `json:"id,omitempty"`
	Attributes map[string]string `json:"attributes"`
}

// Result is the routing decision for one submitted record.
type Result struct {
	ID      string `json:"id"`
	Outcome string `json:"outcome"`           // "routed" | "dropped"
	Channel string `json:"channel,omitempty"` // "fraud" | "non-fraud" when routed
	Reason  string `json:"reason,omitempty"`  // drop reason when dropped
	Status  string `json:"status,omitempty"`  // value written to transaction.status
}

// Routed reports whether the record was forwarded to an output channel.
func (r Result) Routed() bool { return r.Outcome == OutcomeRouted }
