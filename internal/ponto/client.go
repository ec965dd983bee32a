// Package ponto implements the source reader contract against the Ponto
// bank-account aggregator API (JSON:API, id-cursor pagination, OAuth2
// client-credentials).
package ponto

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/paginate"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/watermark"
)

const pageLimit = 50

// Client talks to the Ponto API. It implements source.Reader.
type Client struct {
	baseURL  string
	http     *http.Client
	maxPages int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the OAuth2-wrapped HTTP client. Intended for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxPages overrides the pagination ceiling.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// New creates a client for the API at baseURL. Token acquisition and refresh
// is handled by the OAuth2 client-credentials flow against the API's own
// token endpoint.
func New(baseURL, clientID, clientSecret string, opts ...Option) *Client {
	conf := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     baseURL + "/oauth2/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	c := &Client{
		baseURL:  baseURL,
		http:     conf.Client(context.Background()),
		maxPages: paginate.DefaultMaxPages,
	}
	c.http.Timeout = 30 * time.Second
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the source identifier.
func (c *Client) Name() string { return "ponto" }

type accountResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Description    string          `json:"description"`
		Reference      string          `json:"reference"`
		Currency       string          `json:"currency"`
		CurrentBalance decimal.Decimal `json:"currentBalance"`
	} `json:"attributes"`
}

type transactionResource struct {
	ID         string `json:"id"`
	Attributes struct {
		Amount                decimal.Decimal `json:"amount"`
		Description           string          `json:"description"`
		CounterpartName       string          `json:"counterpartName"`
		CounterpartReference  string          `json:"counterpartReference"`
		ValueDate             time.Time       `json:"valueDate"`
		ExecutionDate         time.Time       `json:"executionDate"`
		RemittanceInformation string          `json:"remittanceInformation"`
	} `json:"attributes"`
}

// listResponse is the JSON:API envelope shared by all collection endpoints.
type listResponse[T any] struct {
	Data  []T `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
	Meta struct {
		Paging struct {
			After string `json:"after"`
		} `json:"paging"`
	} `json:"meta"`
}

// Accounts lists all accounts as immutable snapshots.
func (c *Client) Accounts(ctx context.Context) ([]domain.SourceAccount, error) {
	fetch := func(ctx context.Context, cursor string) ([]domain.SourceAccount, string, error) {
		var resp listResponse[accountResource]
		if err := c.get(ctx, "/accounts", cursor, &resp); err != nil {
			return nil, "", err
		}

		accounts := make([]domain.SourceAccount, 0, len(resp.Data))
		for _, a := range resp.Data {
			accounts = append(accounts, domain.SourceAccount{
				ID:        a.ID,
				Reference: a.Attributes.Reference,
				Name:      a.Attributes.Description,
				Currency:  a.Attributes.Currency,
				Balance:   a.Attributes.CurrentBalance,
			})
		}
		return accounts, nextCursor(resp.Links.Next, resp.Meta.Paging.After), nil
	}

	accounts, err := paginate.All(ctx, fetch, "", c.maxPages)
	if err != nil {
		return nil, fmt.Errorf("listing ponto accounts: %w", err)
	}
	return accounts, nil
}

// Transactions lists an account's transactions after the resume position.
// The API's "after" cursor is a transaction id, so the watermark itself is
// the initial cursor and only new transactions are ever fetched.
func (c *Client) Transactions(ctx context.Context, accountID string, pos watermark.Position) ([]domain.SourceTransaction, error) {
	fetch := func(ctx context.Context, cursor string) ([]domain.SourceTransaction, string, error) {
		var resp listResponse[transactionResource]
		if err := c.get(ctx, "/accounts/"+accountID+"/transactions", cursor, &resp); err != nil {
			return nil, "", err
		}

		txs := make([]domain.SourceTransaction, 0, len(resp.Data))
		for _, t := range resp.Data {
			description := t.Attributes.Description
			if description == "" {
				description = t.Attributes.RemittanceInformation
			}
			tx, err := domain.NewSourceTransaction(t.ID, accountID, t.Attributes.Amount, t.Attributes.ValueDate, description)
			if err != nil {
				return nil, "", fmt.Errorf("invalid transaction in response: %w", err)
			}
			tx.ExecutionDate = t.Attributes.ExecutionDate
			tx.CounterpartName = t.Attributes.CounterpartName
			tx.CounterpartReference = t.Attributes.CounterpartReference
			txs = append(txs, *tx)
		}
		return txs, nextCursor(resp.Links.Next, resp.Meta.Paging.After), nil
	}

	start := ""
	if lastID, ok := pos.LastID(); ok {
		start = lastID
	}
	txs, err := paginate.All(ctx, fetch, start, c.maxPages)
	if err != nil {
		return nil, fmt.Errorf("listing ponto transactions for %s: %w", accountID, err)
	}
	return txs, nil
}

// nextCursor returns the cursor of the next page, or "" on the last page.
// The API signals a next page via links.next and carries the cursor value
// in meta.paging.after.
func nextCursor(next, after string) string {
	if next == "" {
		return ""
	}
	return after
}

func (c *Client) get(ctx context.Context, path, after string, out any) error {
	query := url.Values{"page[limit]": {fmt.Sprint(pageLimit)}}
	if after != "" {
		query.Set("page[after]", after)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding GET %s response: %w", path, err)
	}
	return nil
}
