package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// captureRequest asks the rail to confirm that reference moved at least
// MinAmount into the escrow account and to hold it.
type captureRequest struct {
	Reference string          `json:"reference"`
	MinAmount decimal.Decimal `json:"min_amount"`
	Currency  string          `json:"currency"`
	Account   string          `json:"account,omitempty"`
}

type captureResponse struct {
	Reference string          `json:"reference"`
	Status    string          `json:"status"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason,omitempty"`
}

const (
	captureCaptured = "captured"
	capturePending  = "pending"
)

type releaseRequest struct {
	ListingID string          `json:"listing_id"`
	Reference string          `json:"reference"`
	Payee     string          `json:"payee"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Account   string          `json:"account,omitempty"`
}

// VerificationError is returned when the rail refuses a reference.
// A pending reference may still settle, so it is retryable.
type VerificationError struct {
	Reference string
	Reason    string
	Pending   bool
}

func (e *VerificationError) Error() string {
	if e.Pending {
		return fmt.Sprintf("payment %s is still pending", e.Reference)
	}
	return fmt.Sprintf("payment %s rejected: %s", e.Reference, e.Reason)
}

func (e *VerificationError) Retryable() bool { return e.Pending }

// UnavailableError wraps transport failures and 5xx answers.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string   { return fmt.Sprintf("wallet.%s: %v", e.Op, e.Err) }
func (e *UnavailableError) Unwrap() error   { return e.Err }
func (e *UnavailableError) Retryable() bool { return true }
