// Package watermark persists, per destination account, the id of the most
// recently applied source transaction. The watermark is the engine's only
// durable sync state: its absence means the account has never been synced,
// and its value is where the next pass resumes.
package watermark

import "context"

// Position is the resume state for one account. The zero value is
// NeverSynced; a first sync is an explicit state, not a missing string.
type Position struct {
	lastID string
	synced bool
}

// NeverSynced returns the position of an account with no prior sync.
func NeverSynced() Position {
	return Position{}
}

// Resuming returns the position of an account that last applied txID.
func Resuming(txID string) Position {
	return Position{lastID: txID, synced: true}
}

// FirstSync reports whether no watermark existed for the account.
func (p Position) FirstSync() bool {
	return !p.synced
}

// LastID returns the last applied transaction id, and false on first sync.
func (p Position) LastID() (string, bool) {
	return p.lastID, p.synced
}

// Store persists watermarks keyed by destination account id.
//
// Advance must replace, never append: at most one watermark exists per
// account. Callers advance only after a transaction was durably applied (or
// recognized as already applied), never before.
type Store interface {
	// Position reads the resume state for the account.
	Position(ctx context.Context, accountID string) (Position, error)

	// Advance records txID as the most recently applied transaction.
	Advance(ctx context.Context, accountID, txID string) error
}
