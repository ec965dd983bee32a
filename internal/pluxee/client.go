// Package pluxee implements the source reader contract against the Pluxee
// benefits-card portal. The portal exposes no API; balances and transactions
// are scraped from the authenticated HTML pages, which the portal serves in
// ISO 8859-1. Transactions carry no identifier of their own, so a stable one
// is derived by fingerprinting the row's content.
package pluxee

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/paginate"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

// CardType identifies one of the benefit wallets attached to a portal login.
type CardType string

const (
	CardEco   CardType = "eco"
	CardLunch CardType = "lunch"
)

var validCardTypes = map[CardType]bool{
	CardEco:   true,
	CardLunch: true,
}

// ValidateCardType checks if the card type is one of the portal's wallets.
func ValidateCardType(t CardType) error {
	if !validCardTypes[t] {
		return fmt.Errorf("invalid card type: %s (must be one of: eco, lunch)", t)
	}
	return nil
}

const dateLayout = "02/01/2006"

// Client scrapes the Pluxee portal. It implements source.Reader.
//
// The portal session is cookie-based, so a Client logs in lazily and retries
// once after a session expiry. It is not safe for concurrent use.
type Client struct {
	baseURL  string
	username string
	password string
	http     *http.Client
	maxPages int
	loggedIn bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default cookie-carrying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxPages overrides the pagination ceiling.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// New creates a client for the portal at baseURL with the given credentials.
func New(baseURL, username, password string, opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		http: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
		maxPages: paginate.DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the source identifier.
func (c *Client) Name() string { return "pluxee" }

// AccountID builds the account key for one of a login's wallets.
// Format: "pluxee:{username}:{cardType}".
func AccountID(username string, card CardType) string {
	return fmt.Sprintf("pluxee:%s:%s", username, card)
}

// cardFromAccountID recovers the wallet from an account key built by AccountID.
func cardFromAccountID(accountID string) (CardType, error) {
	parts := strings.Split(accountID, ":")
	if len(parts) != 3 || parts[0] != "pluxee" {
		return "", fmt.Errorf("malformed pluxee account id: %s", accountID)
	}
	card := CardType(parts[2])
	if err := ValidateCardType(card); err != nil {
		return "", err
	}
	return card, nil
}

// Accounts lists one account per wallet, with the balance scraped from the
// wallet's first transactions page.
func (c *Client) Accounts(ctx context.Context) ([]domain.SourceAccount, error) {
	accounts := make([]domain.SourceAccount, 0, len(validCardTypes))
	for _, card := range []CardType{CardEco, CardLunch} {
		p, err := c.page(ctx, card, "1")
		if err != nil {
			return nil, fmt.Errorf("listing pluxee %s account: %w", card, err)
		}
		if !p.hasBalance {
			return nil, fmt.Errorf("listing pluxee %s account: no balance on page", card)
		}

		id := AccountID(c.username, card)
		accounts = append(accounts, domain.SourceAccount{
			ID:        id,
			Reference: id,
			Name:      fmt.Sprintf("Pluxee %s (%s)", card, c.username),
			Currency:  "EUR",
			Balance:   p.balance,
		})
	}
	return accounts, nil
}

// Transactions scrapes a wallet's transactions newest-first across the
// portal's numbered pages. The rows carry no server-side id, so resuming
// means walking pages until the fingerprint recorded at the resume position
// shows up again and cutting the listing there.
func (c *Client) Transactions(ctx context.Context, accountID string, pos watermark.Position) ([]domain.SourceTransaction, error) {
	card, err := cardFromAccountID(accountID)
	if err != nil {
		return nil, err
	}
	lastID, resuming := pos.LastID()

	fetch := func(ctx context.Context, cursor string) ([]domain.SourceTransaction, string, error) {
		number := cursor
		if number == "" {
			number = "1"
		}
		p, err := c.page(ctx, card, number)
		if err != nil {
			return nil, "", err
		}

		txs := make([]domain.SourceTransaction, 0, len(p.rows))
		for _, r := range p.rows {
			id := transactionID(r.date, r.amount, r.description)
			if resuming && id == lastID {
				// Everything from here down was synced on an earlier pass.
				return txs, "", nil
			}
			txs = append(txs, domain.SourceTransaction{
				ID:            id,
				AccountID:     accountID,
				Amount:        r.amount,
				ValueDate:     r.date,
				ExecutionDate: r.date,
				Description:   r.description,
			})
		}

		next := ""
		if p.hasNext {
			n, err := strconv.Atoi(number)
			if err != nil {
				return nil, "", fmt.Errorf("malformed page cursor %q: %w", number, err)
			}
			next = strconv.Itoa(n + 1)
		}
		return txs, next, nil
	}

	txs, err := paginate.All(ctx, fetch, "", c.maxPages)
	if err != nil {
		return nil, fmt.Errorf("listing pluxee %s transactions: %w", card, err)
	}
	return txs, nil
}

// transactionID fingerprints a row's content with SHA256.
// Format: SHA256("{date}|{amount}|{normalizedDescription}").
// The amount is formatted with 2 decimal places and the description is
// lowercased, trimmed, and stripped of combining marks so that the portal's
// inconsistent accent rendering never changes an id between passes.
func transactionID(date time.Time, amount decimal.Decimal, description string) string {
	normalized := strings.ToLower(strings.TrimSpace(description))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if stripped, _, err := transform.String(t, normalized); err == nil {
		normalized = stripped
	}

	input := fmt.Sprintf("%s|%s|%s", date.Format("2006-01-02"), amount.StringFixed(2), normalized)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}

// page fetches and parses one transactions page of a wallet.
func (c *Client) page(ctx context.Context, card CardType, number string) (walletPage, error) {
	query := url.Values{"page": {number}}
	path := "/cards/" + string(card) + "/transactions"

	for attempt := 0; attempt < 2; attempt++ {
		if !c.loggedIn {
			if err := c.login(ctx); err != nil {
				return walletPage{}, err
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
		if err != nil {
			return walletPage{}, fmt.Errorf("building request: %w", err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return walletPage{}, fmt.Errorf("GET %s: %w", path, err)
		}

		// An expired session bounces to the login page.
		if resp.StatusCode == http.StatusUnauthorized || strings.HasSuffix(resp.Request.URL.Path, "/login") {
			resp.Body.Close()
			c.loggedIn = false
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return walletPage{}, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
		}

		doc, err := html.Parse(transform.NewReader(resp.Body, charmap.ISO8859_1.NewDecoder()))
		resp.Body.Close()
		if err != nil {
			return walletPage{}, fmt.Errorf("parsing %s: %w", path, err)
		}
		return parsePage(doc)
	}
	return walletPage{}, fmt.Errorf("GET %s: session expired and re-login did not stick", path)
}

func (c *Client) login(ctx context.Context) error {
	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/login", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pluxee login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("pluxee login: status %d", resp.StatusCode)
	}
	c.loggedIn = true
	return nil
}
