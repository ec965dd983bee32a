// Package firefly implements the destination ledger contract against the
// Firefly III REST API.
package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rumor-ml/commons.systems/ledgersync/internal/domain"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/ledger"
	"github.com/rumor-ml/commons.systems/ledgersync/internal/paginate"
)

const dateFormat = "2006-01-02"

// Client talks to a Firefly III instance. It implements ledger.Ledger.
type Client struct {
	baseURL  string
	token    string
	http     *http.Client
	maxPages int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxPages overrides the account-listing pagination ceiling.
func WithMaxPages(n int) Option {
	return func(c *Client) { c.maxPages = n }
}

// New creates a client for the API at baseURL (e.g. "http://firefly/api/v1")
// authenticated with a personal access token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
		maxPages: paginate.DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// account mirrors the API's account resource shape.
type account struct {
	ID         string `json:"id"`
	Attributes struct {
		Name               string `json:"name"`
		Type               string `json:"type"`
		AccountRole        string `json:"account_role"`
		AccountNumber      string `json:"account_number"`
		CurrencyCode       string `json:"currency_code"`
		Notes              string `json:"notes"`
		CurrentBalance     string `json:"current_balance"`
		OpeningBalance     string `json:"opening_balance"`
		OpeningBalanceDate string `json:"opening_balance_date"`
	} `json:"attributes"`
}

type accountList struct {
	Data []account `json:"data"`
	Meta struct {
		Pagination struct {
			CurrentPage int `json:"current_page"`
			TotalPages  int `json:"total_pages"`
		} `json:"pagination"`
	} `json:"meta"`
}

type accountSingle struct {
	Data account `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
}

// Accounts lists all accounts of the given type, following the API's
// page-number pagination to completion.
func (c *Client) Accounts(ctx context.Context, typ ledger.AccountType) ([]ledger.Account, error) {
	fetch := func(ctx context.Context, cursor string) ([]ledger.Account, string, error) {
		page := cursor
		if page == "" {
			page = "1"
		}
		query := url.Values{"type": {string(typ)}, "page": {page}}

		var resp accountList
		if err := c.do(ctx, http.MethodGet, "/accounts?"+query.Encode(), nil, &resp); err != nil {
			return nil, "", err
		}

		accounts := make([]ledger.Account, 0, len(resp.Data))
		for _, a := range resp.Data {
			parsed, err := toAccount(a)
			if err != nil {
				return nil, "", err
			}
			accounts = append(accounts, parsed)
		}

		next := ""
		if resp.Meta.Pagination.CurrentPage < resp.Meta.Pagination.TotalPages {
			next = strconv.Itoa(resp.Meta.Pagination.CurrentPage + 1)
		}
		return accounts, next, nil
	}

	return paginate.All(ctx, fetch, "", c.maxPages)
}

// CreateAccount creates an account and returns it with its assigned id.
func (c *Client) CreateAccount(ctx context.Context, attrs ledger.AccountAttrs) (ledger.Account, error) {
	body := map[string]any{
		"name":           attrs.Name,
		"type":           string(attrs.Type),
		"account_number": attrs.AccountNumber,
		"account_role":   attrs.Role,
	}
	if attrs.Currency != "" {
		body["currency_code"] = attrs.Currency
	}

	var resp accountSingle
	if err := c.do(ctx, http.MethodPost, "/accounts", body, &resp); err != nil {
		return ledger.Account{}, fmt.Errorf("creating account %s: %w", attrs.AccountNumber, err)
	}
	return toAccount(resp.Data)
}

// UpdateAccount applies a partial update; unset fields are not sent.
func (c *Client) UpdateAccount(ctx context.Context, id string, update ledger.AccountUpdate) (ledger.Account, error) {
	body := map[string]any{}
	if update.Notes != nil {
		body["notes"] = *update.Notes
	}
	if update.OpeningBalance != nil {
		body["opening_balance"] = update.OpeningBalance.String()
	}
	if update.OpeningBalanceDate != nil {
		body["opening_balance_date"] = update.OpeningBalanceDate.Format(dateFormat)
	}

	var resp accountSingle
	if err := c.do(ctx, http.MethodPut, "/accounts/"+id, body, &resp); err != nil {
		return ledger.Account{}, fmt.Errorf("updating account %s: %w", id, err)
	}
	return toAccount(resp.Data)
}

// CreateTransaction submits one transaction with the API's duplicate hash
// check enabled, so an exact duplicate is rejected rather than silently
// accepted. The rejection surfaces as ledger.ErrDuplicateTransaction.
func (c *Client) CreateTransaction(ctx context.Context, tx domain.ClassifiedTransaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	split := map[string]any{
		"type":        string(tx.Type),
		"date":        tx.Date.Format(dateFormat),
		"amount":      tx.Amount.String(),
		"description": tx.Description,
		"external_id": tx.ExternalID,
	}
	if tx.SourceID != "" {
		split["source_id"] = tx.SourceID
	}
	if tx.SourceName != "" {
		split["source_name"] = tx.SourceName
	}
	if tx.DestinationID != "" {
		split["destination_id"] = tx.DestinationID
	}
	if tx.DestinationName != "" {
		split["destination_name"] = tx.DestinationName
	}

	body := map[string]any{
		"error_if_duplicate_hash": true,
		"apply_rules":             true,
		"fire_webhooks":           true,
		"transactions":            []any{split},
	}
	if err := c.do(ctx, http.MethodPost, "/transactions", body, nil); err != nil {
		return fmt.Errorf("creating transaction %s: %w", tx.ExternalID, err)
	}
	return nil
}

// do performs one API request and decodes the response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		_ = json.Unmarshal(raw, &apiErr)

		// The API reports a duplicate transaction as a 422 validation
		// failure with "Duplicate" in the message.
		if resp.StatusCode == http.StatusUnprocessableEntity && strings.Contains(apiErr.Message, "Duplicate") {
			return ledger.ErrDuplicateTransaction
		}
		if apiErr.Message != "" {
			return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// toAccount converts an API account resource to the ledger type.
func toAccount(a account) (ledger.Account, error) {
	out := ledger.Account{
		ID:            a.ID,
		Name:          a.Attributes.Name,
		Type:          ledger.AccountType(a.Attributes.Type),
		Role:          a.Attributes.AccountRole,
		AccountNumber: a.Attributes.AccountNumber,
		Currency:      a.Attributes.CurrencyCode,
		Notes:         a.Attributes.Notes,
	}

	var err error
	if out.CurrentBalance, err = parseAmount(a.Attributes.CurrentBalance); err != nil {
		return ledger.Account{}, fmt.Errorf("account %s: current balance: %w", a.ID, err)
	}
	if out.OpeningBalance, err = parseAmount(a.Attributes.OpeningBalance); err != nil {
		return ledger.Account{}, fmt.Errorf("account %s: opening balance: %w", a.ID, err)
	}
	if raw := a.Attributes.OpeningBalanceDate; raw != "" {
		// The API serializes dates as RFC 3339 timestamps.
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			if t, err = time.Parse(dateFormat, raw); err != nil {
				return ledger.Account{}, fmt.Errorf("account %s: opening balance date %q: %w", a.ID, raw, err)
			}
		}
		out.OpeningBalanceDate = t
	}
	return out, nil
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
