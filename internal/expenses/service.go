package expenses

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/tiendafix/tiendafix/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Insert(ctx context.Context, e Expense) (Expense, error)
	Get(ctx context.Context, id int64) (Expense, error)
	ListByDate(ctx context.Context, date time.Time) ([]Expense, error)
}

// RegisterPort gates cash expenses on the register state.
type RegisterPort interface {
	CanProcessSale(ctx context.Context) error
	CurrentBusinessDay() time.Time
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service records and lists expenses.
type Service struct {
	repo     RepositoryPort
	register RegisterPort
	audit    AuditPort
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, register RegisterPort, audit AuditPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, register: register, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create records an expense on the current business date. Cash expenses
// leave the drawer, so they require an open register.
func (s *Service) Create(ctx context.Context, in CreateInput) (Expense, error) {
	if in.ActorID == 0 || strings.TrimSpace(in.Description) == "" {
		return Expense{}, ErrInvalidExpense
	}
	if !in.Amount.IsPositive() || !validMethod(in.Method) {
		return Expense{}, ErrInvalidExpense
	}
	if in.Method == MethodCash {
		if err := s.register.CanProcessSale(ctx); err != nil {
			return Expense{}, err
		}
	}
	expense, err := s.repo.Insert(ctx, Expense{
		Description:  strings.TrimSpace(in.Description),
		Category:     in.Category,
		Amount:       in.Amount,
		Method:       in.Method,
		BusinessDate: s.register.CurrentBusinessDay(),
		CreatedBy:    in.ActorID,
		CreatedAt:    s.now(),
	})
	if err != nil {
		return Expense{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "expense.create",
			Entity:   "expense",
			EntityID: strconv.FormatInt(expense.ID, 10),
			Meta: map[string]any{
				"amount": expense.Amount.String(),
				"method": string(expense.Method),
			},
		}); err != nil && s.logger != nil {
			s.logger.Warn("expense audit", slog.Any("error", err))
		}
	}
	return expense, nil
}

// Get loads one expense.
func (s *Service) Get(ctx context.Context, id int64) (Expense, error) {
	return s.repo.Get(ctx, id)
}

// ListByDate returns the expenses of one business date, defaulting to today.
func (s *Service) ListByDate(ctx context.Context, date time.Time) ([]Expense, error) {
	if date.IsZero() {
		date = s.register.CurrentBusinessDay()
	}
	return s.repo.ListByDate(ctx, date)
}
