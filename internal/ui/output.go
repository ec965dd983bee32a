// Package ui provides colored terminal output for interactive runs.
package ui

import (
	"fmt"
	"os"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"
)

const headerWidth = 60

// Header prints a centered section header with separator lines.
func Header(text string) {
	line := strings.Repeat("=", headerWidth)
	blue := color.New(color.FgBlue, color.Bold)
	blue.Fprintln(os.Stderr, line)
	blue.Fprintln(os.Stderr, center(text, headerWidth))
	blue.Fprintln(os.Stderr, line)
}

// Step prints a progress step, e.g. "[2/4] Reconciling accounts".
func Step(current, total int, text string) {
	color.New(color.FgCyan).Fprintf(os.Stderr, "[%d/%d] %s\n", current, total, text)
}

// Success prints a green checkmark line.
func Success(text string) {
	color.New(color.FgGreen).Fprintf(os.Stderr, "✓ %s\n", text)
}

// Info prints a neutral informational line.
func Info(text string) {
	fmt.Fprintf(os.Stderr, "  %s\n", text)
}

// Warning prints a yellow warning line.
func Warning(text string) {
	color.New(color.FgYellow).Fprintf(os.Stderr, "⚠ %s\n", text)
}

// Error prints a red error line.
func Error(text string) {
	color.New(color.FgRed).Fprintf(os.Stderr, "✗ %s\n", text)
}

// BlueText prints text in blue without any prefix.
func BlueText(text string) {
	color.New(color.FgBlue).Fprintln(os.Stderr, text)
}

// YellowText prints text in yellow without any prefix.
func YellowText(text string) {
	color.New(color.FgYellow).Fprintln(os.Stderr, text)
}

// FormatMoney renders an amount with its currency's symbol and minor-unit
// convention, e.g. "€1,250.75". Unknown currency codes fall back to a plain
// "amount CODE" rendering.
func FormatMoney(amount decimal.Decimal, code string) string {
	currency := money.GetCurrency(code)
	if currency == nil {
		return fmt.Sprintf("%s %s", amount.String(), code)
	}
	minor := amount.Shift(int32(currency.Fraction)).Round(0).IntPart()
	return money.New(minor, code).Display()
}

// center left-pads text so it appears centered within width. Text wider than
// width is returned unchanged.
func center(text string, width int) string {
	if len(text) >= width {
		return text
	}
	padding := (width - len(text)) / 2
	return strings.Repeat(" ", padding) + text
}
