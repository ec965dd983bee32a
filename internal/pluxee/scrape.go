package pluxee

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/net/html"
)

// walletPage is the scraped content of one transactions page.
type walletPage struct {
	balance    decimal.Decimal
	hasBalance bool
	rows       []row
	hasNext    bool
}

// row is one transaction line, newest-first as the portal renders them.
type row struct {
	date        time.Time
	amount      decimal.Decimal
	description string
}

// parsePage extracts the balance, the transaction rows, and the presence of a
// next-page link from a parsed document. Pages the portal renders without a
// transactions table (an empty wallet) yield zero rows.
func parsePage(doc *html.Node) (walletPage, error) {
	var p walletPage

	if span := findByID(doc, "span", "balance"); span != nil {
		balance, err := parseAmount(text(span))
		if err != nil {
			return walletPage{}, fmt.Errorf("parsing balance: %w", err)
		}
		p.balance = balance
		p.hasBalance = true
	}

	if table := findByID(doc, "table", "transactions"); table != nil {
		var rowErr error
		each(table, "tr", func(tr *html.Node) {
			if rowErr != nil {
				return
			}
			var cells []string
			each(tr, "td", func(td *html.Node) {
				cells = append(cells, text(td))
			})
			if len(cells) == 0 {
				// Header row, only <th> cells.
				return
			}
			r, err := parseRow(cells)
			if err != nil {
				rowErr = err
				return
			}
			p.rows = append(p.rows, r)
		})
		if rowErr != nil {
			return walletPage{}, rowErr
		}
	}

	each(doc, "a", func(a *html.Node) {
		if attr(a, "rel") == "next" {
			p.hasNext = true
		}
	})
	return p, nil
}

// parseRow converts one table row's cell texts: date, description, amount.
func parseRow(cells []string) (row, error) {
	if len(cells) < 3 {
		return row{}, fmt.Errorf("transaction row has %d cells, want at least 3", len(cells))
	}

	date, err := time.Parse(dateLayout, cells[0])
	if err != nil {
		return row{}, fmt.Errorf("parsing transaction date %q: %w", cells[0], err)
	}
	amount, err := parseAmount(cells[2])
	if err != nil {
		return row{}, fmt.Errorf("parsing transaction amount %q: %w", cells[2], err)
	}
	return row{
		date:        date,
		amount:      amount,
		description: cells[1],
	}, nil
}

// parseAmount reads the portal's euro rendering, e.g. "-1.234,56 €".
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.NewReplacer("€", "", " ", "", " ", "").Replace(raw)
	if strings.Contains(s, ",") {
		// Dots are thousands separators, the comma is the decimal mark.
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("malformed amount %q", raw)
	}
	return amount, nil
}

// findByID returns the first descendant element with the given tag and id.
func findByID(n *html.Node, tag, id string) *html.Node {
	var found *html.Node
	each(n, tag, func(el *html.Node) {
		if found == nil && attr(el, "id") == id {
			found = el
		}
	})
	return found
}

// each calls fn for every descendant element with the given tag.
func each(n *html.Node, tag string, fn func(*html.Node)) {
	if n.Type == html.ElementNode && n.Data == tag {
		fn(n)
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		each(child, tag, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// text returns the trimmed concatenation of all text nodes under n.
func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
