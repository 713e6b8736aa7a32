// Package register owns the business-day cash drawer lifecycle: one period
// per business date, at most one OPEN system-wide, closed exactly once by
// reconciling counted cash against the cash-channel activity of the day.
package register

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates register period states. The transition is one-way:
// a period is opened once and finalized once.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// Period is the cash drawer record for one business date.
type Period struct {
	ID             int64
	BusinessDate   time.Time
	OpeningBalance decimal.Decimal
	CashCount      decimal.NullDecimal
	ExpectedCash   decimal.NullDecimal
	CashDifference decimal.NullDecimal
	Status         Status
	OpenedBy       int64
	OpenedAt       time.Time
	ClosedBy       *int64
	ClosedAt       *time.Time
	Notes          string
}

// OpenInput bundles parameters for opening a register.
type OpenInput struct {
	Date           time.Time
	OpeningBalance decimal.Decimal
	ActorID        int64
}

// CloseInput bundles parameters for closing the open register.
type CloseInput struct {
	CashCount decimal.Decimal
	ActorID   int64
	Notes     string
}

// CashTotals aggregates the day's cash-channel activity. Only these feed
// expected cash; transfer, card, and credit channels never touch the drawer.
type CashTotals struct {
	SalesCash        decimal.Decimal
	SalesMixedCash   decimal.Decimal
	DebtPaymentsCash decimal.Decimal
	ExpensesCash     decimal.Decimal
}

// ClosingResult reports the reconciliation outcome.
type ClosingResult struct {
	Period         Period          `json:"period"`
	ExpectedCash   decimal.Decimal `json:"expected_cash"`
	CashDifference decimal.Decimal `json:"cash_difference"`
}

// DailySummary buckets the day's totals by payment channel. Voided sales and
// payments contribute to no bucket.
type DailySummary struct {
	BusinessDate          time.Time       `json:"business_date"`
	SalesCash             decimal.Decimal `json:"sales_cash"`
	SalesTransfer         decimal.Decimal `json:"sales_transfer"`
	SalesCredit           decimal.Decimal `json:"sales_credit"`
	SalesMixed            decimal.Decimal `json:"sales_mixed"`
	SalesMixedCash        decimal.Decimal `json:"sales_mixed_cash"`
	SalesMixedTransfer    decimal.Decimal `json:"sales_mixed_transfer"`
	SalesTotal            decimal.Decimal `json:"sales_total"`
	DebtPaymentsCash      decimal.Decimal `json:"debt_payments_cash"`
	DebtPaymentsTransfer  decimal.Decimal `json:"debt_payments_transfer"`
	DebtPaymentsCard      decimal.Decimal `json:"debt_payments_card"`
	ExpensesCash          decimal.Decimal `json:"expenses_cash"`
	ExpensesTotal         decimal.Decimal `json:"expenses_total"`
	RepairsDeliveredCount int64           `json:"repairs_delivered_count"`
	RepairsDeliveredTotal decimal.Decimal `json:"repairs_delivered_total"`
}

var (
	// ErrRegisterClosed gates sales: no OPEN register exists for the
	// current business day.
	ErrRegisterClosed = errors.New("register: no open register for the current business day")
	// ErrAnotherDayOpen is returned when opening while a different date's
	// register is still open.
	ErrAnotherDayOpen = errors.New("register: another business day's register is open, close it first")
	// ErrAlreadyOpen is returned when the requested date is already open.
	ErrAlreadyOpen = errors.New("register: register already open for this date")
	// ErrAlreadyClosedForDate is returned when the requested date was
	// already finalized; closed registers never reopen.
	ErrAlreadyClosedForDate = errors.New("register: register already closed for this date")
	// ErrNoOpenRegister is returned by close when nothing is open.
	ErrNoOpenRegister = errors.New("register: no open register")
	// ErrInvalidAmount rejects negative opening balances or cash counts.
	ErrInvalidAmount = errors.New("register: amount cannot be negative")
)

// ExpectedCash computes the drawer amount a register should hold at close.
func ExpectedCash(opening decimal.Decimal, totals CashTotals) decimal.Decimal {
	return opening.
		Add(totals.SalesCash).
		Add(totals.SalesMixedCash).
		Add(totals.DebtPaymentsCash).
		Sub(totals.ExpensesCash)
}
