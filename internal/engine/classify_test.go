package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
)

func pairs() (own AccountPair, all []AccountPair) {
	own = AccountPair{
		Source:      domain.SourceAccount{ID: "src-a", Reference: "BE111"},
		Destination: ledger.Account{ID: "10", AccountNumber: "BE111"},
	}
	other := AccountPair{
		Source:      domain.SourceAccount{ID: "src-b", Reference: "BE222"},
		Destination: ledger.Account{ID: "20", AccountNumber: "BE222"},
	}
	return own, []AccountPair{own, other}
}

func srcTx(amount float64, counterpartName, counterpartRef string) domain.SourceTransaction {
	return domain.SourceTransaction{
		ID:                   "tx-1",
		AccountID:            "src-a",
		Amount:               decimal.NewFromFloat(amount),
		ValueDate:            time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		Description:          "desc",
		CounterpartName:      counterpartName,
		CounterpartReference: counterpartRef,
	}
}

func TestClassify_ZeroAmountSkipped(t *testing.T) {
	own, all := pairs()
	_, ok := Classify(srcTx(0, "x", ""), own, all)
	assert.False(t, ok)
}

func TestClassify_Deposit(t *testing.T) {
	own, all := pairs()

	got, ok := Classify(srcTx(50, "Employer", "BE999"), own, all)
	require.True(t, ok)
	assert.Equal(t, domain.TypeDeposit, got.Type)
	assert.Equal(t, "10", got.DestinationID)
	assert.Equal(t, "Employer (BE999)", got.SourceName)
	assert.True(t, got.Amount.Equal(decimal.NewFromInt(50)))
	require.NoError(t, got.Validate())
}

func TestClassify_DepositWithoutReference(t *testing.T) {
	own, all := pairs()

	got, ok := Classify(srcTx(50, "Employer", ""), own, all)
	require.True(t, ok)
	assert.Equal(t, "Employer (unknown reference)", got.SourceName)
}

func TestClassify_Withdrawal(t *testing.T) {
	own, all := pairs()

	got, ok := Classify(srcTx(-12.50, "Grocer", "BE999"), own, all)
	require.True(t, ok)
	assert.Equal(t, domain.TypeWithdrawal, got.Type)
	assert.Equal(t, "10", got.SourceID)
	assert.Equal(t, "Grocer", got.DestinationName)
	assert.True(t, got.Amount.Equal(decimal.RequireFromString("12.5")), "magnitude, got %s", got.Amount)
	require.NoError(t, got.Validate())
}

func TestClassify_WithdrawalWithoutName(t *testing.T) {
	own, all := pairs()

	got, ok := Classify(srcTx(-12.50, "", "BE999"), own, all)
	require.True(t, ok)
	assert.Equal(t, "BE999", got.DestinationName)

	got, ok = Classify(srcTx(-12.50, "", ""), own, all)
	require.True(t, ok)
	assert.Equal(t, "unknown reference", got.DestinationName)
}

func TestClassify_TransferOutgoing(t *testing.T) {
	own, all := pairs()

	got, ok := Classify(srcTx(-25, "my savings", "BE222"), own, all)
	require.True(t, ok)
	assert.Equal(t, domain.TypeTransfer, got.Type)
	assert.Equal(t, "10", got.SourceID)
	assert.Equal(t, "20", got.DestinationID)
	assert.Empty(t, got.SourceName)
	assert.Empty(t, got.DestinationName)
	require.NoError(t, got.Validate())
}

func TestClassify_TransferIncoming(t *testing.T) {
	own, all := pairs()

	got, ok := Classify(srcTx(25, "my checking", "BE222"), own, all)
	require.True(t, ok)
	assert.Equal(t, domain.TypeTransfer, got.Type)
	assert.Equal(t, "20", got.SourceID)
	assert.Equal(t, "10", got.DestinationID)
}

func TestClassify_IsDeterministic(t *testing.T) {
	own, all := pairs()
	in := srcTx(-25, "my savings", "BE222")

	first, ok := Classify(in, own, all)
	require.True(t, ok)
	second, ok := Classify(in, own, all)
	require.True(t, ok)
	assert.Equal(t, first, second)
}

func TestClassify_ExternalIDCarriesSourceID(t *testing.T) {
	own, all := pairs()
	got, ok := Classify(srcTx(-5, "x", ""), own, all)
	require.True(t, ok)
	assert.Equal(t, "tx-1", got.ExternalID)
}
