// Package ledger defines the destination ledger contract: the
// personal-finance manager the sync engine writes into.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
)

var (
	// ErrDuplicateTransaction is reported by a destination that was asked to
	// reject exact duplicates. The engine treats it as successful sync
	// progress, not as a failure.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrNotFound is returned when an account id does not exist.
	ErrNotFound = errors.New("account not found")
)

// AccountType represents the destination account type enum.
type AccountType string

const (
	AccountTypeAsset   AccountType = "asset"
	AccountTypeExpense AccountType = "expense"
	AccountTypeRevenue AccountType = "revenue"
)

// RoleDefaultAsset is the account role assigned to accounts the engine creates.
const RoleDefaultAsset = "defaultAsset"

// Account is a destination-side account. AccountNumber carries the external
// reference used as the reconciliation key; Notes doubles as the persisted
// watermark when the notes-field store is in use.
type Account struct {
	ID                 string
	Name               string
	Type               AccountType
	Role               string
	AccountNumber      string
	Currency           string
	Notes              string
	CurrentBalance     decimal.Decimal
	OpeningBalance     decimal.Decimal
	OpeningBalanceDate time.Time
}

// AccountAttrs are the attributes for creating an account.
type AccountAttrs struct {
	Name          string
	Type          AccountType
	Role          string
	AccountNumber string
	Currency      string
}

// AccountUpdate is a partial update. Nil fields are left untouched.
type AccountUpdate struct {
	Notes              *string
	OpeningBalance     *decimal.Decimal
	OpeningBalanceDate *time.Time
}

// Ledger is the destination collaborator consumed by the engine. All calls
// block; the engine performs no internal parallelism around them.
type Ledger interface {
	// Accounts lists all accounts of the given type.
	Accounts(ctx context.Context, typ AccountType) ([]Account, error)

	// CreateAccount creates an account and returns it with its new id.
	CreateAccount(ctx context.Context, attrs AccountAttrs) (Account, error)

	// UpdateAccount applies a partial update and returns the updated account.
	UpdateAccount(ctx context.Context, id string, update AccountUpdate) (Account, error)

	// CreateTransaction submits a classified transaction, instructing the
	// destination to reject exact duplicates. A destination-reported
	// duplicate surfaces as ErrDuplicateTransaction.
	CreateTransaction(ctx context.Context, tx domain.ClassifiedTransaction) error
}
