package engine

import (
	"fmt"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
)

// Classify rewrites a source transaction into destination vocabulary.
//
// A transaction whose counterpart reference resolves to another reconciled
// account is a transfer between two known accounts (both legs account ids);
// otherwise the sign decides between deposit and withdrawal, with the
// unknown external party carried as a free-text leg. The returned bool is
// false for zero-amount transactions, which are skipped entirely.
//
// Classify is a pure function of its inputs. The full pair set must be
// resolved before classification so transfers are detected regardless of
// which leg is processed first.
func Classify(tx domain.SourceTransaction, own AccountPair, all []AccountPair) (domain.ClassifiedTransaction, bool) {
	if tx.Amount.IsZero() {
		return domain.ClassifiedTransaction{}, false
	}

	classified := domain.ClassifiedTransaction{
		Amount:      tx.Amount.Abs(),
		Date:        tx.ValueDate,
		Description: tx.Description,
		ExternalID:  tx.ID,
	}

	if counterpart, ok := findCounterpart(tx.CounterpartReference, all); ok {
		classified.Type = domain.TypeTransfer
		if tx.Amount.IsNegative() {
			classified.SourceID = own.Destination.ID
			classified.DestinationID = counterpart.Destination.ID
		} else {
			classified.SourceID = counterpart.Destination.ID
			classified.DestinationID = own.Destination.ID
		}
		return classified, true
	}

	if tx.Amount.IsPositive() {
		classified.Type = domain.TypeDeposit
		classified.DestinationID = own.Destination.ID
		classified.SourceName = counterpartLabel(tx)
	} else {
		classified.Type = domain.TypeWithdrawal
		classified.SourceID = own.Destination.ID
		if tx.CounterpartName != "" {
			classified.DestinationName = tx.CounterpartName
		} else {
			classified.DestinationName = counterpartLabel(tx)
		}
	}
	return classified, true
}

// findCounterpart looks up the reconciled pair whose destination account
// carries the given external reference.
func findCounterpart(reference string, all []AccountPair) (AccountPair, bool) {
	if reference == "" {
		return AccountPair{}, false
	}
	for _, pair := range all {
		if pair.Destination.AccountNumber == reference {
			return pair, true
		}
	}
	return AccountPair{}, false
}

// counterpartLabel builds the free-text name of an unknown external party.
func counterpartLabel(tx domain.SourceTransaction) string {
	reference := tx.CounterpartReference
	if reference == "" {
		reference = "unknown reference"
	}
	if tx.CounterpartName == "" {
		return reference
	}
	return fmt.Sprintf("%s (%s)", tx.CounterpartName, reference)
}
