package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
)

// backfillOpeningBalance runs once per account, on its first-ever sync.
// The opening balance is chosen so that opening + sum(signed imported
// amounts) reconstructs the balance snapshot taken at pass start, and it is
// dated strictly before the earliest imported transaction to avoid same-day
// ordering conflicts in the destination's balance ledger.
//
// This assumes the full history back to account opening was fetched in this
// pass. A source that caps its retrieval window would make the computed
// opening balance silently wrong; no source in use does.
func (e *Engine) backfillOpeningBalance(ctx context.Context, pair AccountPair, txs []domain.SourceTransaction) error {
	sum := decimal.Zero
	earliest := time.Now()
	for _, tx := range txs {
		sum = sum.Add(tx.Amount)
		if tx.ValueDate.Before(earliest) {
			earliest = tx.ValueDate
		}
	}

	opening := pair.Source.Balance.Sub(sum)
	openingDate := earliest.AddDate(0, 0, -1)

	e.logger.Printf("setting opening balance for account %s to %s (%s)",
		pair.Source.Reference, opening, openingDate.Format("2006-01-02"))

	_, err := e.dest.UpdateAccount(ctx, pair.Destination.ID, ledger.AccountUpdate{
		OpeningBalance:     &opening,
		OpeningBalanceDate: &openingDate,
	})
	if err != nil {
		return fmt.Errorf("updating account %s: %w", pair.Destination.ID, err)
	}
	return nil
}
