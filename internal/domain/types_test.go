package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidateTransactionType(t *testing.T) {
	tests := []struct {
		name  string
		typ   TransactionType
		valid bool
	}{
		{"deposit", TypeDeposit, true},
		{"withdrawal", TypeWithdrawal, true},
		{"transfer", TypeTransfer, true},
		{"empty", TransactionType(""), false},
		{"unknown", TransactionType("reconciliation"), false},
		{"case sensitive", TransactionType("Deposit"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateTransactionType(tt.typ); got != tt.valid {
				t.Errorf("ValidateTransactionType(%q) = %v, want %v", tt.typ, got, tt.valid)
			}
		})
	}
}

func TestClassifiedTransaction_Validate(t *testing.T) {
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		tx      ClassifiedTransaction
		wantErr bool
	}{
		{
			name: "valid withdrawal",
			tx: ClassifiedTransaction{
				Type: TypeWithdrawal, Amount: decimal.NewFromInt(40), Date: date,
				SourceID: "1", DestinationName: "ACME", ExternalID: "tx-1",
			},
		},
		{
			name: "valid deposit",
			tx: ClassifiedTransaction{
				Type: TypeDeposit, Amount: decimal.NewFromInt(40), Date: date,
				DestinationID: "1", SourceName: "Employer (BE99)", ExternalID: "tx-2",
			},
		},
		{
			name: "valid transfer",
			tx: ClassifiedTransaction{
				Type: TypeTransfer, Amount: decimal.NewFromInt(25), Date: date,
				SourceID: "1", DestinationID: "2", ExternalID: "tx-3",
			},
		},
		{
			name: "transfer with free-text leg",
			tx: ClassifiedTransaction{
				Type: TypeTransfer, Amount: decimal.NewFromInt(25), Date: date,
				SourceID: "1", DestinationID: "2", DestinationName: "oops", ExternalID: "tx-4",
			},
			wantErr: true,
		},
		{
			name: "negative magnitude",
			tx: ClassifiedTransaction{
				Type: TypeWithdrawal, Amount: decimal.NewFromInt(-40), Date: date,
				SourceID: "1", DestinationName: "ACME", ExternalID: "tx-5",
			},
			wantErr: true,
		},
		{
			name: "missing external id",
			tx: ClassifiedTransaction{
				Type: TypeWithdrawal, Amount: decimal.NewFromInt(40), Date: date,
				SourceID: "1", DestinationName: "ACME",
			},
			wantErr: true,
		},
		{
			name: "deposit without source name",
			tx: ClassifiedTransaction{
				Type: TypeDeposit, Amount: decimal.NewFromInt(40), Date: date,
				DestinationID: "1", ExternalID: "tx-6",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tx.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewSourceTransaction(t *testing.T) {
	date := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

	if _, err := NewSourceTransaction("", "acc", decimal.Zero, date, "x"); err == nil {
		t.Error("expected error for empty id")
	}
	if _, err := NewSourceTransaction("tx", "", decimal.Zero, date, "x"); err == nil {
		t.Error("expected error for empty account id")
	}
	if _, err := NewSourceTransaction("tx", "acc", decimal.Zero, time.Time{}, "x"); err == nil {
		t.Error("expected error for zero value date")
	}

	tx, err := NewSourceTransaction("tx", "acc", decimal.NewFromFloat(-40.0), date, "groceries")
	if err != nil {
		t.Fatalf("NewSourceTransaction() error = %v", err)
	}
	if !tx.ExecutionDate.Equal(date) {
		t.Errorf("execution date should default to value date, got %v", tx.ExecutionDate)
	}
}
