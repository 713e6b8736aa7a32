package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/tiendafix/tiendafix/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetAccount(ctx context.Context, customerID int64) (Account, error)
	ListTransactions(ctx context.Context, customerID int64, limit int) ([]Transaction, error)
	UpdateBlock(ctx context.Context, customerID int64, until *time.Time, reason string) error
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service exposes ledger operations to the application layer.
type Service struct {
	repo   RepositoryPort
	engine *Engine
	audit  AuditPort
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, engine *Engine, audit AuditPort, cache *Cache, logger *slog.Logger) *Service {
	if engine == nil {
		engine = NewEngine()
	}
	return &Service{repo: repo, engine: engine, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
		s.engine.WithNow(now)
	}
}

// Post appends one ledger transaction in its own database transaction.
// Callers that need the post to share a transaction with other writes use
// Engine.Post against their own TxStore instead.
func (s *Service) Post(ctx context.Context, in PostInput) (Transaction, error) {
	var posted Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		var err error
		posted, err = s.engine.Post(ctx, store, in)
		return err
	})
	if err != nil {
		return Transaction{}, err
	}
	s.afterPost(ctx, posted)
	return posted, nil
}

// afterPost drops stale caches and records the audit trail. Failures here do
// not undo the committed post.
func (s *Service) afterPost(ctx context.Context, tx Transaction) {
	if err := s.cache.Invalidate(ctx, tx.CustomerID); err != nil && s.logger != nil {
		s.logger.Warn("ledger cache invalidate", slog.Int64("customer_id", tx.CustomerID), slog.Any("error", err))
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  tx.CreatedBy,
			Action:   "ledger.post",
			Entity:   "customer_transaction",
			EntityID: strconv.FormatInt(tx.ID, 10),
			Meta: map[string]any{
				"type":           string(tx.Type),
				"amount":         tx.Amount.String(),
				"balance_after":  tx.BalanceAfter.String(),
				"reference_type": string(tx.ReferenceType),
				"reference_id":   tx.ReferenceID,
			},
		}); err != nil && s.logger != nil {
			s.logger.Warn("ledger audit", slog.Any("error", err))
		}
	}
}

// CheckCreditAvailability reports whether stored credit may be applied for a
// customer, how much is available, and why not otherwise.
func (s *Service) CheckCreditAvailability(ctx context.Context, customerID int64) (CreditDecision, error) {
	account, err := s.repo.GetAccount(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return CreditDecision{Reason: "no account"}, nil
		}
		return CreditDecision{}, err
	}
	return EvaluateCredit(account, s.now()), nil
}

// GetBalanceSummary returns the customer's account state, served from cache
// when the ledger has not moved since the last read.
func (s *Service) GetBalanceSummary(ctx context.Context, customerID int64) (BalanceSummary, error) {
	return s.cache.FetchSummary(ctx, customerID, func(ctx context.Context) (BalanceSummary, error) {
		account, err := s.repo.GetAccount(ctx, customerID)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				// Accounts are created lazily; no account means settled.
				return BalanceSummary{CustomerID: customerID, Status: "settled"}, nil
			}
			return BalanceSummary{}, err
		}
		return summarize(account, s.now()), nil
	})
}

func summarize(account Account, at time.Time) BalanceSummary {
	summary := BalanceSummary{
		CustomerID:      account.CustomerID,
		CurrentBalance:  account.Balance,
		AvailableCredit: account.AvailableCredit(),
		HasDebt:         account.Balance.IsPositive(),
		HasCredit:       account.Balance.IsNegative(),
	}
	switch {
	case !account.IsActive:
		summary.Status = "inactive"
	case account.BlockedUntil != nil && account.BlockedUntil.After(at):
		summary.Status = "blocked"
	case summary.HasDebt:
		summary.Status = "debtor"
	case summary.HasCredit:
		summary.Status = "credit"
	default:
		summary.Status = "settled"
	}
	return summary
}

// ListTransactions returns the customer's ledger history.
func (s *Service) ListTransactions(ctx context.Context, customerID int64, limit int) ([]Transaction, error) {
	return s.repo.ListTransactions(ctx, customerID, limit)
}

// BlockAccount blocks credit on an account until the given time.
func (s *Service) BlockAccount(ctx context.Context, customerID int64, until time.Time, reason string, actorID int64) error {
	if until.Before(s.now()) {
		return fmt.Errorf("ledger: block end must be in the future")
	}
	if err := s.repo.UpdateBlock(ctx, customerID, &until, reason); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, customerID); err != nil && s.logger != nil {
		s.logger.Warn("ledger cache invalidate", slog.Any("error", err))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "ledger.block",
			Entity:   "customer_account",
			EntityID: strconv.FormatInt(customerID, 10),
			Meta:     map[string]any{"until": until.Format(time.RFC3339), "reason": reason},
		})
	}
	return nil
}

// UnblockAccount clears a block.
func (s *Service) UnblockAccount(ctx context.Context, customerID int64, actorID int64) error {
	if err := s.repo.UpdateBlock(ctx, customerID, nil, ""); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx, customerID); err != nil && s.logger != nil {
		s.logger.Warn("ledger cache invalidate", slog.Any("error", err))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "ledger.unblock",
			Entity:   "customer_account",
			EntityID: strconv.FormatInt(customerID, 10),
		})
	}
	return nil
}
