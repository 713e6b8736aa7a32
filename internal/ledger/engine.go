package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TxStore exposes the row-locked account and transaction primitives the
// posting engine needs. Implementations run inside a database transaction so
// a post and its balance update commit or roll back together.
type TxStore interface {
	// GetOrCreateAccountForUpdate resolves the customer's account, creating
	// it on first post, and locks the row until the transaction ends.
	GetOrCreateAccountForUpdate(ctx context.Context, customerID int64) (Account, error)
	// TransactionExists reports whether a post with the same type and
	// reference was already recorded.
	TransactionExists(ctx context.Context, t TransactionType, refType ReferenceType, refID int64) (bool, error)
	InsertTransaction(ctx context.Context, tx Transaction) (Transaction, error)
	// UpdateAccountAfterPost persists the new balance and rolling counters.
	UpdateAccountAfterPost(ctx context.Context, account Account) error
}

// Engine applies posting rules against a TxStore. It holds no state beyond a
// clock, so one instance serves every caller.
type Engine struct {
	now func() time.Time
}

// NewEngine constructs an Engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (e *Engine) WithNow(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// Post validates the input, enforces the idempotency guard, and appends one
// transaction while moving the account balance by the signed delta. The
// caller's store decides the transactional boundary.
func (e *Engine) Post(ctx context.Context, store TxStore, in PostInput) (Transaction, error) {
	if in.CustomerID == 0 {
		return Transaction{}, fmt.Errorf("ledger: customer id required")
	}
	if in.Type != TypeOpeningBalance && !in.Amount.IsPositive() {
		return Transaction{}, ErrInvalidAmount
	}
	delta, err := SignedDelta(in.Type, in.Amount, in.DepositRefund)
	if err != nil {
		return Transaction{}, err
	}

	account, err := store.GetOrCreateAccountForUpdate(ctx, in.CustomerID)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: resolve account: %w", err)
	}

	if idempotencyGuarded(in.Type) {
		exists, err := store.TransactionExists(ctx, in.Type, in.ReferenceType, in.ReferenceID)
		if err != nil {
			return Transaction{}, fmt.Errorf("ledger: duplicate check: %w", err)
		}
		if exists {
			return Transaction{}, ErrDuplicateTransaction
		}
	}

	before := account.Balance
	after := before.Add(delta)
	tx := Transaction{
		EventID:       eventID(in.Type, in.ReferenceType, in.ReferenceID),
		CustomerID:    in.CustomerID,
		AccountID:     account.ID,
		Type:          in.Type,
		Amount:        in.Amount.Abs(),
		BalanceBefore: before,
		BalanceAfter:  after,
		ReferenceType: in.ReferenceType,
		ReferenceID:   in.ReferenceID,
		Notes:         in.Notes,
		CreatedBy:     in.ActorID,
		CreatedAt:     e.now(),
	}
	if in.Type == TypeOpeningBalance {
		// Opening balances keep the caller's signed amount as magnitude.
		tx.Amount = in.Amount
	}
	tx, err = store.InsertTransaction(ctx, tx)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: insert transaction: %w", err)
	}

	account.Balance = after
	account.TransactionCount++
	switch in.Type {
	case TypeSale:
		account.TotalSales = account.TotalSales.Add(in.Amount)
	case TypePayment:
		account.TotalPayments = account.TotalPayments.Add(in.Amount)
	}
	if err := store.UpdateAccountAfterPost(ctx, account); err != nil {
		return Transaction{}, fmt.Errorf("ledger: update account: %w", err)
	}
	return tx, nil
}

// eventID derives the transaction's event identity. Guarded types hash their
// reference so the same business event always yields the same id.
func eventID(t TransactionType, refType ReferenceType, refID int64) uuid.UUID {
	if idempotencyGuarded(t) {
		return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("%s:%s:%d", t, refType, refID)))
	}
	return uuid.New()
}

// CreditDecision explains the outcome of a credit availability check.
type CreditDecision struct {
	HasCredit bool
	Available decimal.Decimal
	Reason    string
}

// EvaluateCredit decides whether stored credit may be applied for the
// account at the given instant. Blocked or inactive accounts may still pay
// by cash or card; those paths never consult this check.
func EvaluateCredit(account Account, at time.Time) CreditDecision {
	if !account.IsActive {
		return CreditDecision{Reason: "account inactive"}
	}
	if account.BlockedUntil != nil && account.BlockedUntil.After(at) {
		reason := account.BlockReason
		if reason == "" {
			reason = "account blocked"
		}
		return CreditDecision{Reason: reason}
	}
	if account.Balance.Sign() >= 0 {
		return CreditDecision{Reason: "no credit balance"}
	}
	return CreditDecision{HasCredit: true, Available: account.Balance.Neg()}
}
