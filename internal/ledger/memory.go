package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
)

// Memory is an in-memory Ledger used by tests and dry runs. It mimics the
// destination's duplicate detection: a transaction whose external id was
// already accepted is rejected with ErrDuplicateTransaction.
type Memory struct {
	mu           sync.Mutex
	accounts     map[string]*Account
	transactions []domain.ClassifiedTransaction
	seen         map[string]struct{} // external ids already accepted
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		accounts: make(map[string]*Account),
		seen:     make(map[string]struct{}),
	}
}

func (m *Memory) Accounts(_ context.Context, typ AccountType) ([]Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Account
	for _, a := range m.accounts {
		if a.Type == typ {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *Memory) CreateAccount(_ context.Context, attrs AccountAttrs) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := &Account{
		ID:            uuid.NewString(),
		Name:          attrs.Name,
		Type:          attrs.Type,
		Role:          attrs.Role,
		AccountNumber: attrs.AccountNumber,
		Currency:      attrs.Currency,
	}
	m.accounts[a.ID] = a
	return *a, nil
}

func (m *Memory) UpdateAccount(_ context.Context, id string, update AccountUpdate) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return Account{}, fmt.Errorf("updating account %s: %w", id, ErrNotFound)
	}
	if update.Notes != nil {
		a.Notes = *update.Notes
	}
	if update.OpeningBalance != nil {
		a.OpeningBalance = *update.OpeningBalance
	}
	if update.OpeningBalanceDate != nil {
		a.OpeningBalanceDate = *update.OpeningBalanceDate
	}
	return *a, nil
}

func (m *Memory) CreateTransaction(_ context.Context, tx domain.ClassifiedTransaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.seen[tx.ExternalID]; dup {
		return fmt.Errorf("transaction %s: %w", tx.ExternalID, ErrDuplicateTransaction)
	}
	m.seen[tx.ExternalID] = struct{}{}
	m.transactions = append(m.transactions, tx)
	return nil
}

// Transactions returns a defensive copy of all accepted transactions.
func (m *Memory) Transactions() []domain.ClassifiedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ClassifiedTransaction(nil), m.transactions...)
}

// Account returns a single account by id, for test assertions.
func (m *Memory) Account(id string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return Account{}, false
	}
	return *a, true
}
