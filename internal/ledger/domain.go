// Package ledger maintains the append-only customer transaction log and the
// running account balance derived from it.
package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType enumerates ledger posting types.
type TransactionType string

const (
	TypeOpeningBalance    TransactionType = "OPENING_BALANCE"
	TypeSale              TransactionType = "SALE"
	TypePayment           TransactionType = "PAYMENT"
	TypeCreditApplication TransactionType = "CREDIT_APPLICATION"
	TypeVoidSale          TransactionType = "VOID_SALE"
	TypeRepairDeposit     TransactionType = "REPAIR_DEPOSIT"
)

// ReferenceType tags the polymorphic reference carried by a transaction.
type ReferenceType string

const (
	RefSale    ReferenceType = "sale"
	RefPayment ReferenceType = "payment"
	RefDeposit ReferenceType = "deposit"
	RefManual  ReferenceType = "manual"
)

// Account is the per-customer balance row. A positive balance is debt owed to
// the store; a negative balance is credit owed to the customer.
type Account struct {
	ID               int64
	CustomerID       int64
	Balance          decimal.Decimal
	CreditLimit      decimal.Decimal
	TotalSales       decimal.Decimal
	TotalPayments    decimal.Decimal
	TransactionCount int64
	IsActive         bool
	BlockedUntil     *time.Time
	BlockReason      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AvailableCredit returns max(0, -balance).
func (a Account) AvailableCredit() decimal.Decimal {
	if a.Balance.IsNegative() {
		return a.Balance.Neg()
	}
	return decimal.Zero
}

// Transaction is an immutable ledger entry. Amount is an unsigned magnitude;
// the signed effect on the balance is derived from Type. EventID identifies
// the business event: deterministic for guarded types so a replayed post maps
// to the same id, random otherwise.
type Transaction struct {
	ID            int64
	EventID       uuid.UUID
	CustomerID    int64
	AccountID     int64
	Type          TransactionType
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   int64
	Notes         string
	CreatedBy     int64
	CreatedAt     time.Time
}

// PostInput carries everything needed to post one ledger transaction.
// DepositRefund applies only to REPAIR_DEPOSIT: false records a deposit
// (credit to the customer), true refunds or voids one.
type PostInput struct {
	CustomerID    int64
	Type          TransactionType
	Amount        decimal.Decimal
	ReferenceType ReferenceType
	ReferenceID   int64
	ActorID       int64
	Notes         string
	DepositRefund bool
}

// BalanceSummary is the customer-facing view of an account.
type BalanceSummary struct {
	CustomerID      int64           `json:"customer_id"`
	CurrentBalance  decimal.Decimal `json:"current_balance"`
	AvailableCredit decimal.Decimal `json:"available_credit"`
	HasDebt         bool            `json:"has_debt"`
	HasCredit       bool            `json:"has_credit"`
	Status          string          `json:"status"`
}

var (
	// ErrDuplicateTransaction signals an idempotency-guarded post repeated
	// for the same reference.
	ErrDuplicateTransaction = errors.New("ledger: transaction already posted for reference")
	// ErrAccountBlocked indicates credit operations are not allowed right now.
	ErrAccountBlocked = errors.New("ledger: account is blocked")
	// ErrAccountNotFound indicates no account exists for the customer.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrInvalidAmount rejects non-positive magnitudes on non-opening types.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrUnknownType rejects unsupported transaction types.
	ErrUnknownType = errors.New("ledger: unknown transaction type")
)

// SignedDelta maps (type, magnitude) to the balance movement. SALE increases
// debt and is also how pre-existing credit is consumed. CREDIT_APPLICATION is
// informational only and never moves the balance.
func SignedDelta(t TransactionType, amount decimal.Decimal, depositRefund bool) (decimal.Decimal, error) {
	switch t {
	case TypeSale:
		return amount, nil
	case TypePayment:
		return amount.Neg(), nil
	case TypeCreditApplication:
		return decimal.Zero, nil
	case TypeVoidSale:
		return amount.Neg(), nil
	case TypeRepairDeposit:
		if depositRefund {
			return amount, nil
		}
		return amount.Neg(), nil
	case TypeOpeningBalance:
		return amount, nil
	default:
		return decimal.Zero, ErrUnknownType
	}
}

// idempotencyGuarded reports whether a (type, reference) pair may be posted
// at most once.
func idempotencyGuarded(t TransactionType) bool {
	switch t {
	case TypePayment, TypeCreditApplication, TypeVoidSale:
		return true
	default:
		return false
	}
}
