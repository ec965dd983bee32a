// Package engine implements the incremental reconciliation pass: matching
// source accounts to destination accounts, resuming transaction retrieval
// from the persisted watermark, classifying and idempotently applying each
// transaction, and backfilling an opening balance on first sync.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/paginate"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/source"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

// ErrHalted is returned by Run once the runaway halt latch has tripped.
// The latch never resets within a process: a runaway pagination chain means
// either a source bug or a misconfiguration, and retrying on a schedule
// would hammer the external API until someone notices.
var ErrHalted = errors.New("sync halted: pagination runaway requires manual intervention")

// Halt is a process-wide latch tripped on pagination runaway. A single latch
// is shared by all engines so that no source makes further progress after a
// trip.
type Halt struct {
	tripped atomic.Bool
	reason  atomic.Value // error
}

// Trip latches the halt with its cause. The first cause wins.
func (h *Halt) Trip(cause error) {
	if h.tripped.CompareAndSwap(false, true) {
		h.reason.Store(cause)
	}
}

// Halted reports whether the latch has tripped, and the original cause.
func (h *Halt) Halted() (error, bool) {
	if !h.tripped.Load() {
		return nil, false
	}
	cause, _ := h.reason.Load().(error)
	return cause, true
}

// AccountPair associates a source account with its destination counterpart
// for the duration of one pass. Pairs are rebuilt every run and never
// persisted; the full pair set is what lets the classifier detect transfers.
type AccountPair struct {
	Source      domain.SourceAccount
	Destination ledger.Account
}

// Report summarizes one sync pass for logging and the status endpoint.
type Report struct {
	Source          string    `json:"source"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
	AccountsSynced  int       `json:"accountsSynced"`
	AccountsCreated int       `json:"accountsCreated"`
	AccountsSkipped int       `json:"accountsSkipped"`
	Applied         int       `json:"applied"`
	Duplicates      int       `json:"duplicates"`
	Failures        int       `json:"failures"`
	ZeroSkipped     int       `json:"zeroSkipped"`
	Backfilled      int       `json:"backfilled"`
}

// Engine runs sync passes for one source against one destination.
// Execution is strictly sequential: accounts one at a time, and each
// account's transactions oldest-first, because watermark correctness
// depends on never advancing past an uncommitted earlier transaction.
type Engine struct {
	source source.Reader
	dest   ledger.Ledger
	marks  watermark.Store
	halt   *Halt
	logger *log.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an engine. The halt latch is shared across engines; pass the
// same one to every engine in the process. Pagination ceilings live on the
// source clients themselves; the engine only maps their runaway error to the
// halt latch.
func New(src source.Reader, dest ledger.Ledger, marks watermark.Store, halt *Halt, opts ...Option) *Engine {
	e := &Engine{
		source: src,
		dest:   dest,
		marks:  marks,
		halt:   halt,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// accountTracker is implemented by watermark stores that read sync state off
// the reconciled account itself (the notes-field store) and therefore need
// to see each account once per pass.
type accountTracker interface {
	Track(ledger.Account)
}

// Run executes one sync pass. It returns ErrHalted immediately if the halt
// latch has tripped, and trips the latch itself when a source reports
// pagination runaway. All other failures are contained to a single account
// or a single transaction.
func (e *Engine) Run(ctx context.Context) (*Report, error) {
	if cause, halted := e.halt.Halted(); halted {
		return nil, fmt.Errorf("%w (cause: %v)", ErrHalted, cause)
	}

	report := &Report{Source: e.source.Name(), StartedAt: time.Now()}
	defer func() { report.FinishedAt = time.Now() }()

	accounts, err := e.source.Accounts(ctx)
	if err != nil {
		if errors.Is(err, paginate.ErrRunaway) {
			e.halt.Trip(err)
			return report, fmt.Errorf("%w: %v", ErrHalted, err)
		}
		return report, fmt.Errorf("listing %s accounts: %w", e.source.Name(), err)
	}

	pairs, err := e.reconcile(ctx, accounts, report)
	if err != nil {
		return report, err
	}

	for _, pair := range pairs {
		if err := e.syncAccount(ctx, pair, pairs, report); err != nil {
			if errors.Is(err, paginate.ErrRunaway) {
				e.halt.Trip(err)
				return report, fmt.Errorf("%w: %v", ErrHalted, err)
			}
			// One account's failure never blocks the others.
			e.logger.Printf("ERROR: syncing account %s: %v", pair.Source.Reference, err)
			report.AccountsSkipped++
			continue
		}
		report.AccountsSynced++
	}

	return report, nil
}

// syncAccount processes all new transactions of one reconciled pair.
func (e *Engine) syncAccount(ctx context.Context, pair AccountPair, all []AccountPair, report *Report) error {
	pos, err := e.marks.Position(ctx, pair.Destination.ID)
	if err != nil {
		return fmt.Errorf("reading watermark: %w", err)
	}

	txs, err := e.source.Transactions(ctx, pair.Source.ID, pos)
	if err != nil {
		return fmt.Errorf("fetching transactions: %w", err)
	}

	// Oldest first: the watermark may only ever move forward in time, so a
	// crash mid-batch leaves it pointing at a transaction all of whose
	// predecessors are committed.
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].ValueDate.Equal(txs[j].ValueDate) {
			return txs[i].ValueDate.Before(txs[j].ValueDate)
		}
		if !txs[i].ExecutionDate.Equal(txs[j].ExecutionDate) {
			return txs[i].ExecutionDate.Before(txs[j].ExecutionDate)
		}
		return txs[i].ID < txs[j].ID
	})

	for _, tx := range txs {
		classified, ok := Classify(tx, pair, all)
		if !ok {
			// Zero amounts carry no ledger meaning: no apply call, and the
			// watermark is not advanced for them.
			report.ZeroSkipped++
			continue
		}

		switch err := e.dest.CreateTransaction(ctx, classified); {
		case err == nil:
			report.Applied++
		case errors.Is(err, ledger.ErrDuplicateTransaction):
			// The destination's own duplicate detection is the source of
			// truth for "already applied": progress, not failure.
			e.logger.Printf("transaction %s already exists in destination, skipping", tx.ID)
			report.Duplicates++
		default:
			// Recoverable per item: the watermark stays put and the next
			// pass retries naturally.
			e.logger.Printf("ERROR: applying transaction %s: %v", tx.ID, err)
			report.Failures++
			continue
		}

		if err := e.marks.Advance(ctx, pair.Destination.ID, tx.ID); err != nil {
			// Applying succeeded but recording didn't: the next pass may
			// resubmit and hit the duplicate guard. Log and carry on.
			e.logger.Printf("ERROR: advancing watermark for %s to %s: %v", pair.Source.Reference, tx.ID, err)
		}
	}

	if pos.FirstSync() {
		if err := e.backfillOpeningBalance(ctx, pair, txs); err != nil {
			return fmt.Errorf("backfilling opening balance: %w", err)
		}
		report.Backfilled++
	}

	return nil
}
