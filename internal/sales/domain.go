// Package sales orchestrates sale creation, voiding, and debt payments. A
// sale moves stock, writes the sale rows, and posts the customer ledger in
// one transaction; voiding reverses all three the same way.
package sales

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates how a sale or payment is settled.
type PaymentMethod string

const (
	MethodCash          PaymentMethod = "cash"
	MethodTransfer      PaymentMethod = "transfer"
	MethodCard          PaymentMethod = "card"
	MethodAccountCredit PaymentMethod = "account_credit"
	MethodMixed         PaymentMethod = "mixed"
)

// PaymentStatus tracks how much of a sale has been settled.
type PaymentStatus string

const (
	StatusPending PaymentStatus = "pending"
	StatusPartial PaymentStatus = "partial"
	StatusPaid    PaymentStatus = "paid"
	StatusVoided  PaymentStatus = "voided"
)

// Source tags where a sale originated.
type Source string

const (
	SourcePOS    Source = "pos"
	SourceRepair Source = "repair"
)

// PaymentKind separates checkout payments from standalone debt payments so
// the register close never counts a cash amount twice.
type PaymentKind string

const (
	KindSale PaymentKind = "sale"
	KindDebt PaymentKind = "debt"
)

// Sale is the persisted sale header. It is never hard-deleted; voiding sets
// flags and reverses its effects elsewhere.
type Sale struct {
	ID              int64
	InvoiceNumber   string
	CustomerID      int64
	Source          Source
	BusinessDate    time.Time
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxAmount       decimal.Decimal
	TotalAmount     decimal.Decimal
	PaidAmount      decimal.Decimal
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	CashPortion     decimal.Decimal
	TransferPortion decimal.Decimal
	IsVoided        bool
	VoidReason      string
	VoidedBy        *int64
	VoidedAt        *time.Time
	Notes           string
	CreatedBy       int64
	CreatedAt       time.Time
}

// SaleItem snapshots one cart line, including the product name and service
// flag at sale time so later catalog edits cannot change history.
type SaleItem struct {
	ID              int64
	SaleID          int64
	ProductID       int64
	ProductName     string
	IsService       bool
	Quantity        int64
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	TaxRate         decimal.Decimal
	LineTotal       decimal.Decimal
}

// Payment is one settlement event. Voiding sets the flag and metadata,
// never deletes.
type Payment struct {
	ID            int64
	CustomerID    int64
	SaleID        *int64
	Kind          PaymentKind
	Amount        decimal.Decimal
	Method        PaymentMethod
	ReceiptNumber string
	BusinessDate  time.Time
	Voided        bool
	VoidReason    string
	VoidedBy      *int64
	VoidedAt      *time.Time
	Notes         string
	CreatedBy     int64
	CreatedAt     time.Time
}

// CartLine is one requested line of a sale.
type CartLine struct {
	ProductID       int64
	Quantity        int64
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
}

// CreateSaleInput carries everything needed to create a sale. CustomerID nil
// means the walk-in customer. AmountPaid nil defaults to the full total.
type CreateSaleInput struct {
	CustomerID      *int64
	Lines           []CartLine
	SaleDiscount    decimal.Decimal
	PaymentMethod   PaymentMethod
	AmountPaid      *decimal.Decimal
	CashPortion     decimal.Decimal
	TransferPortion decimal.Decimal
	Source          Source
	Notes           string
	ActorID         int64
	IdempotencyKey  string
}

// RecordPaymentInput records a standalone payment against customer debt.
type RecordPaymentInput struct {
	CustomerID     int64
	SaleID         *int64
	Amount         decimal.Decimal
	Method         PaymentMethod
	Notes          string
	ActorID        int64
	IdempotencyKey string
}

// SaleResult is the orchestrator's return value.
type SaleResult struct {
	Sale      Sale            `json:"sale"`
	Items     []SaleItem      `json:"items"`
	AmountDue decimal.Decimal `json:"amount_due"`
}

var (
	// ErrSaleNotFound indicates no sale exists for the id.
	ErrSaleNotFound = errors.New("sales: sale not found")
	// ErrAlreadyVoided indicates the sale was voided before; void is terminal.
	ErrAlreadyVoided = errors.New("sales: sale already voided")
	// ErrInsufficientStock indicates a physical line exceeds current stock.
	ErrInsufficientStock = errors.New("sales: insufficient stock")
	// ErrIncompleteWalkInPayment rejects walk-in sales paid any amount other
	// than the exact total; walk-ins carry no account to absorb a remainder.
	ErrIncompleteWalkInPayment = errors.New("sales: walk-in sales must be paid in full")
	// ErrInsufficientCredit rejects account-credit sales exceeding the
	// customer's stored credit.
	ErrInsufficientCredit = errors.New("sales: insufficient account credit")
	// ErrInvalidPayment rejects malformed payment parameters.
	ErrInvalidPayment = errors.New("sales: invalid payment")
	// ErrDuplicateDocument surfaces an invoice or receipt number collision
	// after the transaction rolled back.
	ErrDuplicateDocument = errors.New("sales: document number already used")
	// ErrDuplicateRequest means the Idempotency-Key was already processed.
	ErrDuplicateRequest = errors.New("sales: request already processed")
)

// DeriveStatus maps the paid amount onto a payment status.
func DeriveStatus(paid, total decimal.Decimal) PaymentStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusPending
	}
}

func validMethod(m PaymentMethod) bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCard, MethodAccountCredit, MethodMixed:
		return true
	}
	return false
}
