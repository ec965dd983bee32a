package watermark

import (
	"context"
	"fmt"
	"regexp"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
)

// notePattern is the stable on-the-wire encoding of the watermark inside an
// account's notes field. It predates this implementation and must never
// change: it is the sole resume mechanism for accounts synced by older
// versions.
var notePattern = regexp.MustCompile(`Last synced transaction id: ([\w-]+)`)

// FormatNote encodes a transaction id into the notes-field pattern.
func FormatNote(txID string) string {
	return fmt.Sprintf("Last synced transaction id: %s", txID)
}

// ParseNote extracts the watermark from a notes field. The second return is
// false when the notes carry no watermark.
func ParseNote(notes string) (string, bool) {
	m := notePattern.FindStringSubmatch(notes)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// NotesStore keeps the watermark inside the destination account's free-text
// notes field. The destination ledger is the only durable store available to
// the engine, so sync state rides along on the entity being synced.
type NotesStore struct {
	ledger   ledger.Ledger
	accounts map[string]ledger.Account // reconciled accounts for this pass, by id
}

// NewNotesStore creates a notes-field store backed by the given ledger.
func NewNotesStore(l ledger.Ledger) *NotesStore {
	return &NotesStore{
		ledger:   l,
		accounts: make(map[string]ledger.Account),
	}
}

// Track registers a freshly reconciled account so Position can read its
// notes without another ledger round-trip. Called once per account per pass.
func (s *NotesStore) Track(account ledger.Account) {
	s.accounts[account.ID] = account
}

func (s *NotesStore) Position(_ context.Context, accountID string) (Position, error) {
	account, ok := s.accounts[accountID]
	if !ok {
		return Position{}, fmt.Errorf("reading watermark for %s: %w", accountID, ledger.ErrNotFound)
	}
	id, found := ParseNote(account.Notes)
	if !found {
		return NeverSynced(), nil
	}
	return Resuming(id), nil
}

func (s *NotesStore) Advance(ctx context.Context, accountID, txID string) error {
	notes := FormatNote(txID)
	updated, err := s.ledger.UpdateAccount(ctx, accountID, ledger.AccountUpdate{Notes: &notes})
	if err != nil {
		return fmt.Errorf("writing watermark for %s: %w", accountID, err)
	}
	s.accounts[accountID] = updated
	return nil
}
