package register

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tiendafix/tiendafix/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetOpen(ctx context.Context) (Period, bool, error)
	GetByDate(ctx context.Context, date time.Time) (Period, bool, error)
	SalesBuckets(ctx context.Context, date time.Time) (DailySummary, error)
	DebtPaymentBuckets(ctx context.Context, date time.Time) (cash, transfer, card decimal.Decimal, err error)
	ExpenseBuckets(ctx context.Context, date time.Time) (cash, total decimal.Decimal, err error)
	RepairDeliveries(ctx context.Context, date time.Time) (count int64, total decimal.Decimal, err error)
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records register reconciliation outcomes.
type MetricsPort interface {
	RegisterClosed(difference decimal.Decimal)
}

// Service drives the register state machine.
type Service struct {
	repo       RepositoryPort
	audit      AuditPort
	cache      *Cache
	metrics    MetricsPort
	logger     *slog.Logger
	cutoffHour int
	now        func() time.Time
}

// NewService builds Service. cutoffHour is the business-day rollover hour.
func NewService(repo RepositoryPort, audit AuditPort, cache *Cache, metrics MetricsPort, logger *slog.Logger, cutoffHour int) *Service {
	return &Service{
		repo:       repo,
		audit:      audit,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
		cutoffHour: cutoffHour,
		now:        time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CurrentBusinessDay returns today's accounting date under the cutoff.
func (s *Service) CurrentBusinessDay() time.Time {
	return shared.BusinessDay(s.now(), s.cutoffHour)
}

// Open starts the register for a business date. It fails while another
// date's register is open and refuses dates that were already finalized.
func (s *Service) Open(ctx context.Context, in OpenInput) (Period, error) {
	if in.ActorID == 0 {
		return Period{}, errors.New("register: actor required")
	}
	if in.OpeningBalance.IsNegative() {
		return Period{}, ErrInvalidAmount
	}
	date := in.Date
	if date.IsZero() {
		date = s.CurrentBusinessDay()
	} else {
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	}
	in.Date = date

	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		if err := store.LockRegister(ctx); err != nil {
			return err
		}
		open, found, err := store.GetOpenForUpdate(ctx)
		if err != nil {
			return err
		}
		if found {
			if open.BusinessDate.Equal(date) {
				return ErrAlreadyOpen
			}
			return ErrAnotherDayOpen
		}
		existing, found, err := store.GetByDate(ctx, date)
		if err != nil {
			return err
		}
		if found && existing.Status == StatusClosed {
			return ErrAlreadyClosedForDate
		}
		period, err = store.InsertOpen(ctx, in, s.now())
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.recordAudit(ctx, in.ActorID, "register.open", period.ID, map[string]any{
		"business_date":   date.Format("2006-01-02"),
		"opening_balance": in.OpeningBalance.String(),
	})
	return period, nil
}

// CanProcessSale reports whether sales may be taken right now: an OPEN
// register must exist for the current business day.
func (s *Service) CanProcessSale(ctx context.Context) error {
	period, found, err := s.repo.GetOpen(ctx)
	if err != nil {
		return err
	}
	if !found || !period.BusinessDate.Equal(s.CurrentBusinessDay()) {
		return ErrRegisterClosed
	}
	return nil
}

// Close finalizes the open register, reconciling counted cash against the
// day's cash-channel activity. Closed periods never reopen.
func (s *Service) Close(ctx context.Context, in CloseInput) (ClosingResult, error) {
	if in.ActorID == 0 {
		return ClosingResult{}, errors.New("register: actor required")
	}
	if in.CashCount.IsNegative() {
		return ClosingResult{}, ErrInvalidAmount
	}
	var result ClosingResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		if err := store.LockRegister(ctx); err != nil {
			return err
		}
		period, found, err := store.GetOpenForUpdate(ctx)
		if err != nil {
			return err
		}
		if !found {
			return ErrNoOpenRegister
		}
		totals, err := store.CashTotals(ctx, period.BusinessDate)
		if err != nil {
			return err
		}
		expected := ExpectedCash(period.OpeningBalance, totals)
		difference := in.CashCount.Sub(expected)
		closedAt := s.now()
		if err := store.FinalizeOpen(ctx, period.ID, in.CashCount, expected, difference, in.ActorID, closedAt, in.Notes); err != nil {
			return err
		}
		period.Status = StatusClosed
		period.CashCount = decimal.NewNullDecimal(in.CashCount)
		period.ExpectedCash = decimal.NewNullDecimal(expected)
		period.CashDifference = decimal.NewNullDecimal(difference)
		period.ClosedBy = &in.ActorID
		period.ClosedAt = &closedAt
		period.Notes = in.Notes
		result = ClosingResult{Period: period, ExpectedCash: expected, CashDifference: difference}
		return nil
	})
	if err != nil {
		return ClosingResult{}, err
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("register cache bump", slog.Any("error", err))
	}
	if s.metrics != nil {
		s.metrics.RegisterClosed(result.CashDifference)
	}
	s.recordAudit(ctx, in.ActorID, "register.close", result.Period.ID, map[string]any{
		"business_date":   result.Period.BusinessDate.Format("2006-01-02"),
		"cash_count":      in.CashCount.String(),
		"expected_cash":   result.ExpectedCash.String(),
		"cash_difference": result.CashDifference.String(),
	})
	return result, nil
}

// Status returns the open period when one exists, or the period for the
// current business day otherwise.
func (s *Service) Status(ctx context.Context) (Period, bool, error) {
	period, found, err := s.repo.GetOpen(ctx)
	if err != nil || found {
		return period, found, err
	}
	return s.repo.GetByDate(ctx, s.CurrentBusinessDay())
}

// DailySummary aggregates the day's channel buckets, served from cache until
// a register close bumps the version.
func (s *Service) DailySummary(ctx context.Context, date time.Time) (DailySummary, error) {
	if date.IsZero() {
		date = s.CurrentBusinessDay()
	} else {
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	}
	return s.cache.FetchSummary(ctx, date, func(ctx context.Context) (DailySummary, error) {
		return s.aggregate(ctx, date)
	})
}

func (s *Service) aggregate(ctx context.Context, date time.Time) (DailySummary, error) {
	var (
		summary      DailySummary
		payCash      decimal.Decimal
		payTransfer  decimal.Decimal
		payCard      decimal.Decimal
		expCash      decimal.Decimal
		expTotal     decimal.Decimal
		repairsCount int64
		repairsTotal decimal.Decimal
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = s.repo.SalesBuckets(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		payCash, payTransfer, payCard, err = s.repo.DebtPaymentBuckets(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		expCash, expTotal, err = s.repo.ExpenseBuckets(gctx, date)
		return err
	})
	g.Go(func() error {
		var err error
		repairsCount, repairsTotal, err = s.repo.RepairDeliveries(gctx, date)
		return err
	})
	if err := g.Wait(); err != nil {
		return DailySummary{}, err
	}
	summary.BusinessDate = date
	summary.DebtPaymentsCash = payCash
	summary.DebtPaymentsTransfer = payTransfer
	summary.DebtPaymentsCard = payCard
	summary.ExpensesCash = expCash
	summary.ExpensesTotal = expTotal
	summary.RepairsDeliveredCount = repairsCount
	summary.RepairsDeliveredTotal = repairsTotal
	return summary, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, periodID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "register_period",
		EntityID: strconv.FormatInt(periodID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("register audit", slog.Any("error", err))
	}
}
