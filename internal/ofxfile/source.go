// Package ofxfile implements the source reader contract over a drop
// directory of OFX/QFX statement exports. Banks without an aggregator
// connection are synced by downloading statements into the directory;
// every file is parsed on each pass and the FITID carried by each OFX
// transaction serves as the stable transaction id.
package ofxfile

import (
	"context"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

// Reader scans a directory tree for statement files. It implements
// source.Reader. Files are loaded once per Reader, so a fresh Reader is
// built for every sync pass. It is not safe for concurrent use.
type Reader struct {
	dir    string
	loaded bool

	accounts []domain.SourceAccount
	// Transactions per account id, deduplicated by FITID. Statements
	// overlap (a new export re-states recent history), so the same FITID
	// routinely shows up in more than one file.
	txs  map[string][]domain.SourceTransaction
	asOf map[string]time.Time
}

// New creates a reader over the given statement directory.
func New(dir string) *Reader {
	return &Reader{
		dir:  expandHome(dir),
		txs:  map[string][]domain.SourceTransaction{},
		asOf: map[string]time.Time{},
	}
}

// Name returns the source identifier.
func (r *Reader) Name() string { return "ofxfile" }

// Accounts lists the accounts found across all statement files. The balance
// is the ledger balance of the most recent statement for the account.
func (r *Reader) Accounts(ctx context.Context) ([]domain.SourceAccount, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r.accounts, nil
}

// Transactions lists an account's transactions oldest-first. When resuming,
// everything up to and including the watermarked FITID is cut off; a
// watermark that no statement on disk contains anymore yields the full
// listing and the destination's duplicate guard absorbs the overlap.
func (r *Reader) Transactions(ctx context.Context, accountID string, pos watermark.Position) ([]domain.SourceTransaction, error) {
	if err := r.load(ctx); err != nil {
		return nil, err
	}

	txs := append([]domain.SourceTransaction(nil), r.txs[accountID]...)
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].ValueDate.Equal(txs[j].ValueDate) {
			return txs[i].ValueDate.Before(txs[j].ValueDate)
		}
		return txs[i].ID < txs[j].ID
	})

	if lastID, ok := pos.LastID(); ok {
		for i := len(txs) - 1; i >= 0; i-- {
			if txs[i].ID == lastID {
				return txs[i+1:], nil
			}
		}
	}
	return txs, nil
}

func (r *Reader) load(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	var files []string
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if ext := strings.ToLower(filepath.Ext(path)); ext == ".ofx" || ext == ".qfx" {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", r.dir, err)
	}
	sort.Strings(files)

	seen := map[string]map[string]bool{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.loadFile(path, seen); err != nil {
			return err
		}
	}

	r.loaded = true
	return nil
}

// statement is the slice of an OFX response the sync cares about, common to
// bank and credit-card statement types.
type statement struct {
	accountID string
	currency  string
	balance   decimal.Decimal
	asOf      time.Time
	tranList  *ofxgo.TransactionList
}

func (r *Reader) loadFile(path string, seen map[string]map[string]bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	resp, err := ofxgo.ParseResponse(f)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	stmts, err := extractStatements(resp)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	org := resp.Signon.Org.String()

	for _, stmt := range stmts {
		r.mergeAccount(stmt, org)

		if stmt.tranList == nil {
			continue
		}
		if seen[stmt.accountID] == nil {
			seen[stmt.accountID] = map[string]bool{}
		}
		for _, txn := range stmt.tranList.Transactions {
			tx, err := extractTransaction(stmt.accountID, txn)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if seen[stmt.accountID][tx.ID] {
				continue
			}
			seen[stmt.accountID][tx.ID] = true
			r.txs[stmt.accountID] = append(r.txs[stmt.accountID], tx)
		}
	}
	return nil
}

// mergeAccount records the account, keeping the balance of the most recent
// statement when files overlap.
func (r *Reader) mergeAccount(stmt statement, org string) {
	name := stmt.accountID
	if org != "" {
		name = fmt.Sprintf("%s %s", org, stmt.accountID)
	}

	prev, known := r.asOf[stmt.accountID]
	if known && !stmt.asOf.After(prev) {
		return
	}
	r.asOf[stmt.accountID] = stmt.asOf

	account := domain.SourceAccount{
		ID:        stmt.accountID,
		Reference: stmt.accountID,
		Name:      name,
		Currency:  stmt.currency,
		Balance:   stmt.balance,
	}
	for i := range r.accounts {
		if r.accounts[i].ID == stmt.accountID {
			r.accounts[i] = account
			return
		}
	}
	r.accounts = append(r.accounts, account)
}

// extractStatements routes the response's bank and credit-card statements
// into the common shape. Investment statements are not supported.
func extractStatements(resp *ofxgo.Response) ([]statement, error) {
	var stmts []statement

	for _, msg := range resp.Bank {
		bank, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected bank statement type %T", msg)
		}
		accountID := bank.BankAcctFrom.AcctID.String()
		if accountID == "" {
			return nil, fmt.Errorf("bank statement missing account id")
		}
		stmts = append(stmts, statement{
			accountID: accountID,
			currency:  bank.CurDef.String(),
			balance:   fromAmount(bank.BalAmt),
			asOf:      bank.DtAsOf.Time,
			tranList:  bank.BankTranList,
		})
	}

	for _, msg := range resp.CreditCard {
		cc, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			return nil, fmt.Errorf("unexpected credit-card statement type %T", msg)
		}
		accountID := cc.CCAcctFrom.AcctID.String()
		if accountID == "" {
			return nil, fmt.Errorf("credit-card statement missing account id")
		}
		stmts = append(stmts, statement{
			accountID: accountID,
			currency:  cc.CurDef.String(),
			balance:   fromAmount(cc.BalAmt),
			asOf:      cc.DtAsOf.Time,
			tranList:  cc.BankTranList,
		})
	}

	if len(stmts) == 0 {
		return nil, fmt.Errorf("no bank or credit-card statement in file (bank: %d, creditcard: %d, investment: %d)",
			len(resp.Bank), len(resp.CreditCard), len(resp.InvStmt))
	}
	return stmts, nil
}

func extractTransaction(accountID string, txn ofxgo.Transaction) (domain.SourceTransaction, error) {
	id := txn.FiTID.String()
	if id == "" {
		return domain.SourceTransaction{}, fmt.Errorf("transaction missing FITID")
	}

	date := txn.DtPosted.Time
	if date.IsZero() {
		date = txn.DtUser.Time
	}
	if date.IsZero() {
		return domain.SourceTransaction{}, fmt.Errorf("transaction %s missing posted and user dates", id)
	}

	description := strings.TrimSpace(txn.Name.String())
	if description == "" {
		description = strings.TrimSpace(txn.Memo.String())
	}

	tx, err := domain.NewSourceTransaction(id, accountID, fromAmount(txn.TrnAmt), date, description)
	if err != nil {
		return domain.SourceTransaction{}, err
	}
	return *tx, nil
}

// fromAmount converts the OFX rational amount exactly.
func fromAmount(a ofxgo.Amount) decimal.Decimal {
	var rat big.Rat
	rat.Set(&a.Rat)
	return decimal.NewFromBigRat(&rat, 8)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
