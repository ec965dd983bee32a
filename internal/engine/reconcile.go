package engine

import (
	"context"
	"fmt"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
)

// reconcile pairs each source account with the destination account whose
// external-reference field matches its reference, creating missing
// destination accounts as default assets. Get-or-create: safe to run every
// pass without producing duplicates. No transactions are touched here.
func (e *Engine) reconcile(ctx context.Context, accounts []domain.SourceAccount, report *Report) ([]AccountPair, error) {
	existing, err := e.dest.Accounts(ctx, ledger.AccountTypeAsset)
	if err != nil {
		return nil, fmt.Errorf("listing destination asset accounts: %w", err)
	}

	byReference := make(map[string]ledger.Account, len(existing))
	for _, a := range existing {
		if a.AccountNumber != "" {
			byReference[a.AccountNumber] = a
		}
	}

	var pairs []AccountPair
	for _, src := range accounts {
		dest, ok := byReference[src.Reference]
		if !ok {
			e.logger.Printf("new account %s, creating in destination", src.Reference)
			dest, err = e.dest.CreateAccount(ctx, ledger.AccountAttrs{
				Name:          src.Name,
				Type:          ledger.AccountTypeAsset,
				Role:          ledger.RoleDefaultAsset,
				AccountNumber: src.Reference,
				Currency:      src.Currency,
			})
			if err != nil {
				// Skip this account for the pass; the others still proceed.
				e.logger.Printf("ERROR: creating destination account for %s: %v", src.Reference, err)
				report.AccountsSkipped++
				continue
			}
			byReference[src.Reference] = dest
			report.AccountsCreated++
		}

		if tracker, ok := e.marks.(accountTracker); ok {
			tracker.Track(dest)
		}
		pairs = append(pairs, AccountPair{Source: src, Destination: dest})
	}

	return pairs, nil
}
