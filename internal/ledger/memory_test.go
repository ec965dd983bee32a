package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
)

func classified(externalID string) domain.ClassifiedTransaction {
	return domain.ClassifiedTransaction{
		Type:            domain.TypeWithdrawal,
		Amount:          decimal.NewFromInt(10),
		Date:            time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Description:     "test",
		SourceID:        "1",
		DestinationName: "ACME",
		ExternalID:      externalID,
	}
}

func TestMemory_CreateAccountAndList(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.CreateAccount(ctx, AccountAttrs{
		Name:          "checking",
		Type:          AccountTypeAsset,
		Role:          RoleDefaultAsset,
		AccountNumber: "BE123",
		Currency:      "EUR",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	assets, err := m.Accounts(ctx, AccountTypeAsset)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "BE123", assets[0].AccountNumber)

	expenses, err := m.Accounts(ctx, AccountTypeExpense)
	require.NoError(t, err)
	assert.Empty(t, expenses)
}

func TestMemory_UpdateAccountPartial(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	created, err := m.CreateAccount(ctx, AccountAttrs{Name: "a", Type: AccountTypeAsset})
	require.NoError(t, err)

	notes := "Last synced transaction id: tx-9"
	updated, err := m.UpdateAccount(ctx, created.ID, AccountUpdate{Notes: &notes})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)

	// Fields not present in the update stay untouched.
	opening := decimal.NewFromInt(140)
	date := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	updated, err = m.UpdateAccount(ctx, created.ID, AccountUpdate{
		OpeningBalance:     &opening,
		OpeningBalanceDate: &date,
	})
	require.NoError(t, err)
	assert.Equal(t, notes, updated.Notes)
	assert.True(t, updated.OpeningBalance.Equal(opening))

	_, err = m.UpdateAccount(ctx, "missing", AccountUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_DuplicateDetection(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.CreateTransaction(ctx, classified("tx-1")))
	err := m.CreateTransaction(ctx, classified("tx-1"))
	require.ErrorIs(t, err, ErrDuplicateTransaction)

	assert.Len(t, m.Transactions(), 1)
}

func TestMemory_RejectsInvalidTransaction(t *testing.T) {
	m := NewMemory()
	tx := classified("tx-1")
	tx.Type = domain.TypeTransfer // transfer with a free-text leg is invalid
	err := m.CreateTransaction(context.Background(), tx)
	assert.Error(t, err)
}
