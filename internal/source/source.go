// Package source defines the strategy interface implemented by every
// external source ledger adapter (bank aggregator API, scraped card portal,
// statement files on disk).
package source

import (
	"context"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

// Reader is the source collaborator consumed by the sync engine.
//
// Implementations own their pagination semantics: a source with an
// "after this id" cursor passes the resume position straight to its API,
// while a page-numbered source fetches forward and truncates at the
// watermark itself. Either way, Transactions returns only transactions the
// engine has not applied yet, in whatever order the source produces them;
// the engine re-sorts oldest-first before processing.
type Reader interface {
	// Name returns the source identifier (e.g. "ponto", "pluxee", "ofxfile").
	Name() string

	// Accounts lists all source accounts as immutable snapshots.
	Accounts(ctx context.Context) ([]domain.SourceAccount, error)

	// Transactions lists the transactions of one account since the given
	// resume position. A runaway pagination chain surfaces as an error
	// wrapping paginate.ErrRunaway.
	Transactions(ctx context.Context, accountID string, pos watermark.Position) ([]domain.SourceTransaction, error)
}
