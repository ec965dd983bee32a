// Package domain holds the core types shared by the sync engine and the
// source/destination adapters.
package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the destination-side transaction type enum.
// Use ValidateTransactionType to ensure validity before use.
type TransactionType string

const (
	TypeDeposit    TransactionType = "deposit"
	TypeWithdrawal TransactionType = "withdrawal"
	TypeTransfer   TransactionType = "transfer"
)

var validTransactionTypes = map[TransactionType]struct{}{
	TypeDeposit: {}, TypeWithdrawal: {}, TypeTransfer: {},
}

// ValidateTransactionType checks if the transaction type is valid.
func ValidateTransactionType(t TransactionType) bool {
	_, ok := validTransactionTypes[t]
	return ok
}

// SourceAccount is an immutable snapshot of an account in a source ledger,
// taken at the start of a sync pass.
type SourceAccount struct {
	ID        string
	Reference string // external identity used as the reconciliation key (IBAN or equivalent)
	Name      string
	Currency  string
	Balance   decimal.Decimal // current balance at snapshot time
}

// SourceTransaction is a transaction fetched read-only from a source ledger.
// Amount is signed: positive = inflow, negative = outflow.
type SourceTransaction struct {
	ID                   string
	AccountID            string
	Amount               decimal.Decimal
	ValueDate            time.Time
	ExecutionDate        time.Time
	Description          string
	CounterpartName      string
	CounterpartReference string
}

// ClassifiedTransaction is a SourceTransaction rewritten into destination
// vocabulary. Amount is always a non-negative magnitude; sign information is
// fully captured by Type and the leg assignment.
//
// Exactly one of the source/destination legs is a free-text name (unknown
// external party) and the other an account id, unless Type is TypeTransfer,
// in which case both legs are account ids.
type ClassifiedTransaction struct {
	Type            TransactionType
	Amount          decimal.Decimal
	Date            time.Time
	Description     string
	SourceID        string
	SourceName      string
	DestinationID   string
	DestinationName string
	ExternalID      string // SourceTransaction.ID, used for duplicate detection downstream
}

// Validate checks the leg invariant described above.
func (c *ClassifiedTransaction) Validate() error {
	if !ValidateTransactionType(c.Type) {
		return fmt.Errorf("invalid transaction type: %s", c.Type)
	}
	if c.Amount.IsNegative() {
		return fmt.Errorf("amount must be a non-negative magnitude, got %s", c.Amount)
	}
	if c.ExternalID == "" {
		return fmt.Errorf("external id is required")
	}
	switch c.Type {
	case TypeTransfer:
		if c.SourceID == "" || c.DestinationID == "" {
			return fmt.Errorf("transfer requires both legs as account ids")
		}
		if c.SourceName != "" || c.DestinationName != "" {
			return fmt.Errorf("transfer must not carry free-text legs")
		}
	case TypeDeposit:
		if c.DestinationID == "" || c.SourceName == "" {
			return fmt.Errorf("deposit requires a destination account id and a source name")
		}
	case TypeWithdrawal:
		if c.SourceID == "" || c.DestinationName == "" {
			return fmt.Errorf("withdrawal requires a source account id and a destination name")
		}
	}
	return nil
}

// NewSourceTransaction creates a validated source transaction.
func NewSourceTransaction(id, accountID string, amount decimal.Decimal, valueDate time.Time, description string) (*SourceTransaction, error) {
	if id == "" {
		return nil, fmt.Errorf("transaction ID cannot be empty")
	}
	if accountID == "" {
		return nil, fmt.Errorf("account ID cannot be empty")
	}
	if valueDate.IsZero() {
		return nil, fmt.Errorf("value date cannot be zero")
	}
	return &SourceTransaction{
		ID:            id,
		AccountID:     accountID,
		Amount:        amount,
		ValueDate:     valueDate,
		ExecutionDate: valueDate,
		Description:   description,
	}, nil
}
