// Package expenses records cash-out events. Cash expenses reduce the
// register's expected cash for their business date.
package expenses

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Method enumerates how an expense was paid.
type Method string

const (
	MethodCash     Method = "cash"
	MethodTransfer Method = "transfer"
	MethodCard     Method = "card"
)

// Expense is one recorded outgoing amount.
type Expense struct {
	ID           int64
	Description  string
	Category     string
	Amount       decimal.Decimal
	Method       Method
	BusinessDate time.Time
	CreatedBy    int64
	CreatedAt    time.Time
}

// CreateInput carries the parameters to record an expense.
type CreateInput struct {
	Description string
	Category    string
	Amount      decimal.Decimal
	Method      Method
	ActorID     int64
}

var (
	// ErrInvalidExpense rejects malformed expense input.
	ErrInvalidExpense = errors.New("expenses: invalid expense")
	// ErrExpenseNotFound indicates no expense exists for the id.
	ErrExpenseNotFound = errors.New("expenses: expense not found")
)

func validMethod(m Method) bool {
	switch m {
	case MethodCash, MethodTransfer, MethodCard:
		return true
	}
	return false
}
