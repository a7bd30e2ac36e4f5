package domain

// TransactionRef identifies a broadcast transaction
type TransactionRef string

func (r TransactionRef) String() string {
	return string(r)
}

// FinalityStatus is the result of a transaction status query.
type FinalityStatus string

const (
	FinalityPending      FinalityStatus = "PENDING"
	FinalityIrreversible FinalityStatus = "IRREVERSIBLE"
)

// ParseFinalityStatus maps the node's state token to a FinalityStatus.
// Only the literal "IRREVERSIBLE" counts as final; anything else is pending.
func ParseFinalityStatus(state string) FinalityStatus {
	if state == string(FinalityIrreversible) {
		return FinalityIrreversible
	}
	return FinalityPending
}

// TransactionStatus is the decoded body of a get_transaction_status response.
type TransactionStatus struct {
	State              string `json:"state"`
	BlockNumber        uint64 `json:"block_number,omitempty"`
	BlockID            string `json:"block_id,omitempty"`
	HeadNumber         uint64 `json:"head_number,omitempty"`
	IrreversibleNumber uint64 `json:"irreversible_number,omitempty"`
}

// Finality returns the status the waiter acts on.
func (s TransactionStatus) Finality() FinalityStatus {
	return ParseFinalityStatus(s.State)
}
