package sales

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tiendafix/tiendafix/internal/catalog"
	"github.com/tiendafix/tiendafix/internal/ledger"
	"github.com/tiendafix/tiendafix/internal/pricing"
	"github.com/tiendafix/tiendafix/internal/shared"
)

const (
	invoicePrefix = "INV"
	receiptPrefix = "REC"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	GetSale(ctx context.Context, id int64) (Sale, []SaleItem, error)
	ListByDate(ctx context.Context, date time.Time) ([]Sale, error)
	ListPayments(ctx context.Context, customerID int64, limit int) ([]Payment, error)
}

// RegisterPort gates sales on the cash register state.
type RegisterPort interface {
	CanProcessSale(ctx context.Context) error
	CurrentBusinessDay() time.Time
}

// AuditPort records audit trail entries.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort claims client-supplied request keys so retried POSTs do not
// create duplicate documents.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// MetricsPort counts sale lifecycle events.
type MetricsPort interface {
	SaleCreated(method string)
	SaleVoided()
	DebtPaymentRecorded(method string)
}

// LedgerCachePort drops cached balance summaries. Every committed sale, void,
// and payment moves the customer's ledger, so the summary must not outlive it.
type LedgerCachePort interface {
	Invalidate(ctx context.Context, customerID int64) error
}

// Service is the sale, void, and debt-payment orchestrator.
type Service struct {
	repo        RepositoryPort
	engine      *ledger.Engine
	register    RegisterPort
	audit       AuditPort
	metrics     MetricsPort
	idem        IdempotencyPort
	ledgerCache LedgerCachePort
	logger      *slog.Logger
	walkInID    int64
	now         func() time.Time
}

// NewService builds Service. walkInID is the reserved walk-in customer.
func NewService(repo RepositoryPort, engine *ledger.Engine, register RegisterPort, audit AuditPort, metrics MetricsPort, logger *slog.Logger, walkInID int64) *Service {
	return &Service{
		repo:     repo,
		engine:   engine,
		register: register,
		audit:    audit,
		metrics:  metrics,
		logger:   logger,
		walkInID: walkInID,
		now:      time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithIdempotency enables request-key deduplication for create and payment
// calls. Without a store the Idempotency-Key input is ignored.
func (s *Service) WithIdempotency(store IdempotencyPort) {
	s.idem = store
}

// WithLedgerCache invalidates the customer's cached balance summary after
// commits that post to the ledger.
func (s *Service) WithLedgerCache(cache LedgerCachePort) {
	s.ledgerCache = cache
}

// dropSummary runs after commit; a failed invalidation only shortens the
// cache's accuracy to its TTL, so it is logged and swallowed.
func (s *Service) dropSummary(ctx context.Context, customerID int64) {
	if s.ledgerCache == nil {
		return
	}
	if err := s.ledgerCache.Invalidate(ctx, customerID); err != nil && s.logger != nil {
		s.logger.Warn("ledger cache invalidate", slog.Int64("customer_id", customerID), slog.Any("error", err))
	}
}

// claimKey reserves the request key. The returned release func undoes the
// claim when the transaction fails, so the client can retry.
func (s *Service) claimKey(ctx context.Context, key, module string) (func(), error) {
	if s.idem == nil || key == "" {
		return func() {}, nil
	}
	if err := s.idem.CheckAndInsert(ctx, key, module); err != nil {
		if errors.Is(err, shared.ErrIdempotencyConflict) {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}
	return func() {
		if err := s.idem.Delete(ctx, key); err != nil && s.logger != nil {
			s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
		}
	}, nil
}

// CreateSale runs the full sale flow: register gate, stock check, pricing,
// sale rows, stock decrement, and ledger posts, all in one transaction. The
// SALE post always happens; a PAYMENT post follows only when money changed
// hands at checkout.
func (s *Service) CreateSale(ctx context.Context, in CreateSaleInput) (SaleResult, error) {
	if err := validateCreate(in); err != nil {
		return SaleResult{}, err
	}
	if err := s.register.CanProcessSale(ctx); err != nil {
		return SaleResult{}, err
	}

	customerID := s.walkInID
	if in.CustomerID != nil {
		customerID = *in.CustomerID
	}
	if in.Source == "" {
		in.Source = SourcePOS
	}
	businessDate := s.register.CurrentBusinessDay()
	createdAt := s.now()

	release, err := s.claimKey(ctx, in.IdempotencyKey, "sales")
	if err != nil {
		return SaleResult{}, err
	}

	var result SaleResult
	err = s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		items, priceLines, err := resolveLines(ctx, store.Products(), in.Lines)
		if err != nil {
			return err
		}
		priced, err := pricing.Calculate(priceLines, in.SaleDiscount)
		if err != nil {
			return err
		}
		for i := range items {
			items[i].LineTotal = priced.Lines[i].Total
		}

		paid, err := resolvePaid(in, priced.Total, customerID == s.walkInID)
		if err != nil {
			return err
		}
		if in.PaymentMethod == MethodAccountCredit {
			// Credit sales settle from the stored balance, so the full
			// total must be covered before anything is written.
			account, err := store.Ledger().GetOrCreateAccountForUpdate(ctx, customerID)
			if err != nil {
				return err
			}
			decision := ledger.EvaluateCredit(account, createdAt)
			if !decision.HasCredit {
				if account.BlockedUntil != nil && account.BlockedUntil.After(createdAt) {
					return ledger.ErrAccountBlocked
				}
				return ErrInsufficientCredit
			}
			if decision.Available.LessThan(priced.Total) {
				return ErrInsufficientCredit
			}
			paid = priced.Total
		}

		invoice, err := store.NextDocumentNumber(ctx, invoicePrefix, businessDate.Year())
		if err != nil {
			return err
		}
		sale := Sale{
			InvoiceNumber:   invoice,
			CustomerID:      customerID,
			Source:          in.Source,
			BusinessDate:    businessDate,
			Subtotal:        priced.Subtotal,
			DiscountAmount:  priced.DiscountAmount,
			TaxAmount:       priced.TaxAmount,
			TotalAmount:     priced.Total,
			PaidAmount:      paid,
			PaymentStatus:   DeriveStatus(paid, priced.Total),
			PaymentMethod:   in.PaymentMethod,
			CashPortion:     in.CashPortion,
			TransferPortion: in.TransferPortion,
			Notes:           in.Notes,
			CreatedBy:       in.ActorID,
			CreatedAt:       createdAt,
		}
		sale, err = store.InsertSale(ctx, sale)
		if err != nil {
			return err
		}
		if err := store.InsertItems(ctx, sale.ID, items); err != nil {
			return err
		}
		for _, it := range items {
			if it.IsService {
				continue
			}
			if err := store.Products().AdjustStock(ctx, it.ProductID, -it.Quantity); err != nil {
				if errors.Is(err, catalog.ErrStockUnderflow) {
					return ErrInsufficientStock
				}
				return err
			}
		}

		if _, err := s.engine.Post(ctx, store.Ledger(), ledger.PostInput{
			CustomerID:    customerID,
			Type:          ledger.TypeSale,
			Amount:        sale.TotalAmount,
			ReferenceType: ledger.RefSale,
			ReferenceID:   sale.ID,
			ActorID:       in.ActorID,
			Notes:         sale.InvoiceNumber,
		}); err != nil {
			return err
		}

		switch {
		case in.PaymentMethod == MethodAccountCredit:
			// Informational marker: the SALE delta already consumed the
			// credit, so this post moves nothing.
			if _, err := s.engine.Post(ctx, store.Ledger(), ledger.PostInput{
				CustomerID:    customerID,
				Type:          ledger.TypeCreditApplication,
				Amount:        sale.TotalAmount,
				ReferenceType: ledger.RefSale,
				ReferenceID:   sale.ID,
				ActorID:       in.ActorID,
				Notes:         sale.InvoiceNumber,
			}); err != nil {
				return err
			}
		case paid.IsPositive():
			receipt, err := store.NextDocumentNumber(ctx, receiptPrefix, businessDate.Year())
			if err != nil {
				return err
			}
			payment, err := store.InsertPayment(ctx, Payment{
				CustomerID:    customerID,
				SaleID:        &sale.ID,
				Kind:          KindSale,
				Amount:        paid,
				Method:        in.PaymentMethod,
				ReceiptNumber: receipt,
				BusinessDate:  businessDate,
				CreatedBy:     in.ActorID,
				CreatedAt:     createdAt,
			})
			if err != nil {
				return err
			}
			if _, err := s.engine.Post(ctx, store.Ledger(), ledger.PostInput{
				CustomerID:    customerID,
				Type:          ledger.TypePayment,
				Amount:        paid,
				ReferenceType: ledger.RefPayment,
				ReferenceID:   payment.ID,
				ActorID:       in.ActorID,
				Notes:         receipt,
			}); err != nil {
				return err
			}
		}

		result = SaleResult{Sale: sale, Items: items, AmountDue: sale.TotalAmount.Sub(sale.PaidAmount)}
		return nil
	})
	if err != nil {
		release()
		return SaleResult{}, err
	}
	s.dropSummary(ctx, customerID)
	if s.metrics != nil {
		s.metrics.SaleCreated(string(in.PaymentMethod))
	}
	s.recordAudit(ctx, in.ActorID, "sale.create", "sale", result.Sale.ID, map[string]any{
		"invoice_number": result.Sale.InvoiceNumber,
		"customer_id":    customerID,
		"total_amount":   result.Sale.TotalAmount.String(),
		"payment_method": string(in.PaymentMethod),
	})
	return result, nil
}

// VoidSale reverses a sale: restores stock for physical lines, voids its
// payments, and posts the reversing VOID_SALE entry. Void is terminal.
func (s *Service) VoidSale(ctx context.Context, saleID int64, reason string, actorID int64) (SaleResult, error) {
	if saleID == 0 || actorID == 0 {
		return SaleResult{}, errors.New("sales: sale id and actor required")
	}
	if reason == "" {
		return SaleResult{}, errors.New("sales: void reason required")
	}
	voidedAt := s.now()

	var result SaleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		sale, err := store.GetSaleForUpdate(ctx, saleID)
		if err != nil {
			return err
		}
		if sale.IsVoided {
			return ErrAlreadyVoided
		}
		items, err := store.ListItems(ctx, saleID)
		if err != nil {
			return err
		}
		if err := store.MarkVoided(ctx, saleID, reason, actorID, voidedAt); err != nil {
			return err
		}
		for _, it := range items {
			if it.IsService {
				continue
			}
			if err := store.Products().AdjustStock(ctx, it.ProductID, it.Quantity); err != nil {
				return err
			}
		}
		if err := store.VoidPayments(ctx, saleID, reason, actorID, voidedAt); err != nil {
			return err
		}
		if _, err := s.engine.Post(ctx, store.Ledger(), ledger.PostInput{
			CustomerID:    sale.CustomerID,
			Type:          ledger.TypeVoidSale,
			Amount:        sale.TotalAmount,
			ReferenceType: ledger.RefSale,
			ReferenceID:   sale.ID,
			ActorID:       actorID,
			Notes:         reason,
		}); err != nil {
			if errors.Is(err, ledger.ErrDuplicateTransaction) {
				return ErrAlreadyVoided
			}
			return err
		}

		sale.IsVoided = true
		sale.PaymentStatus = StatusVoided
		sale.VoidReason = reason
		sale.VoidedBy = &actorID
		sale.VoidedAt = &voidedAt
		result = SaleResult{Sale: sale, Items: items, AmountDue: decimal.Zero}
		return nil
	})
	if err != nil {
		return SaleResult{}, err
	}
	s.dropSummary(ctx, result.Sale.CustomerID)
	if s.metrics != nil {
		s.metrics.SaleVoided()
	}
	s.recordAudit(ctx, actorID, "sale.void", "sale", result.Sale.ID, map[string]any{
		"invoice_number": result.Sale.InvoiceNumber,
		"reason":         reason,
	})
	return result, nil
}

// RecordPayment records a standalone payment against a customer's debt and
// posts the ledger PAYMENT. Cash payments require an open register because
// the money lands in the drawer.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (Payment, error) {
	if in.CustomerID == 0 || in.ActorID == 0 {
		return Payment{}, errors.New("sales: customer and actor required")
	}
	if !in.Amount.IsPositive() {
		return Payment{}, ErrInvalidPayment
	}
	if !validMethod(in.Method) || in.Method == MethodAccountCredit || in.Method == MethodMixed {
		return Payment{}, ErrInvalidPayment
	}
	if in.Method == MethodCash {
		if err := s.register.CanProcessSale(ctx); err != nil {
			return Payment{}, err
		}
	}
	businessDate := s.register.CurrentBusinessDay()
	createdAt := s.now()

	release, err := s.claimKey(ctx, in.IdempotencyKey, "payments")
	if err != nil {
		return Payment{}, err
	}

	var payment Payment
	err = s.repo.WithTx(ctx, func(ctx context.Context, store TxStore) error {
		if in.SaleID != nil {
			// Applying against a sale moves its paid amount; overpaying a
			// single sale is rejected so status stays derivable.
			sale, err := store.GetSaleForUpdate(ctx, *in.SaleID)
			if err != nil {
				return err
			}
			if sale.IsVoided {
				return ErrAlreadyVoided
			}
			if sale.CustomerID != in.CustomerID {
				return ErrInvalidPayment
			}
			newPaid := sale.PaidAmount.Add(in.Amount)
			if newPaid.GreaterThan(sale.TotalAmount) {
				return ErrInvalidPayment
			}
			if err := store.ApplyPayment(ctx, sale.ID, newPaid, DeriveStatus(newPaid, sale.TotalAmount)); err != nil {
				return err
			}
		}
		receipt, err := store.NextDocumentNumber(ctx, receiptPrefix, businessDate.Year())
		if err != nil {
			return err
		}
		payment, err = store.InsertPayment(ctx, Payment{
			CustomerID:    in.CustomerID,
			SaleID:        in.SaleID,
			Kind:          KindDebt,
			Amount:        in.Amount,
			Method:        in.Method,
			ReceiptNumber: receipt,
			BusinessDate:  businessDate,
			Notes:         in.Notes,
			CreatedBy:     in.ActorID,
			CreatedAt:     createdAt,
		})
		if err != nil {
			return err
		}
		_, err = s.engine.Post(ctx, store.Ledger(), ledger.PostInput{
			CustomerID:    in.CustomerID,
			Type:          ledger.TypePayment,
			Amount:        in.Amount,
			ReferenceType: ledger.RefPayment,
			ReferenceID:   payment.ID,
			ActorID:       in.ActorID,
			Notes:         receipt,
		})
		return err
	})
	if err != nil {
		release()
		return Payment{}, err
	}
	s.dropSummary(ctx, in.CustomerID)
	if s.metrics != nil {
		s.metrics.DebtPaymentRecorded(string(in.Method))
	}
	s.recordAudit(ctx, in.ActorID, "payment.record", "payment", payment.ID, map[string]any{
		"receipt_number": payment.ReceiptNumber,
		"customer_id":    in.CustomerID,
		"amount":         in.Amount.String(),
		"method":         string(in.Method),
	})
	return payment, nil
}

// GetSale loads a sale with its items and remaining amount due.
func (s *Service) GetSale(ctx context.Context, id int64) (SaleResult, error) {
	sale, items, err := s.repo.GetSale(ctx, id)
	if err != nil {
		return SaleResult{}, err
	}
	due := sale.TotalAmount.Sub(sale.PaidAmount)
	if sale.IsVoided {
		due = decimal.Zero
	}
	return SaleResult{Sale: sale, Items: items, AmountDue: due}, nil
}

// ListByDate returns the sales of one business date.
func (s *Service) ListByDate(ctx context.Context, date time.Time) ([]Sale, error) {
	if date.IsZero() {
		date = s.register.CurrentBusinessDay()
	}
	return s.repo.ListByDate(ctx, date)
}

// ListPayments returns a customer's payment history.
func (s *Service) ListPayments(ctx context.Context, customerID int64, limit int) ([]Payment, error) {
	return s.repo.ListPayments(ctx, customerID, limit)
}

func validateCreate(in CreateSaleInput) error {
	if in.ActorID == 0 {
		return errors.New("sales: actor required")
	}
	if len(in.Lines) == 0 {
		return errors.New("sales: at least one line required")
	}
	if !validMethod(in.PaymentMethod) {
		return ErrInvalidPayment
	}
	if in.SaleDiscount.IsNegative() {
		return errors.New("sales: sale discount cannot be negative")
	}
	if in.AmountPaid != nil && in.AmountPaid.IsNegative() {
		return ErrInvalidPayment
	}
	if in.PaymentMethod == MethodMixed {
		if in.CashPortion.IsNegative() || in.TransferPortion.IsNegative() {
			return ErrInvalidPayment
		}
		if in.CashPortion.Add(in.TransferPortion).IsZero() {
			return ErrInvalidPayment
		}
	}
	return nil
}

// resolveLines locks each product, enforces stock for physical items, and
// builds the snapshot items plus calculator input.
func resolveLines(ctx context.Context, products catalog.TxStore, lines []CartLine) ([]SaleItem, []pricing.Line, error) {
	items := make([]SaleItem, 0, len(lines))
	priceLines := make([]pricing.Line, 0, len(lines))
	for _, line := range lines {
		p, err := products.GetProductForUpdate(ctx, line.ProductID)
		if err != nil {
			return nil, nil, err
		}
		if !p.IsService && p.CurrentStock < line.Quantity {
			return nil, nil, ErrInsufficientStock
		}
		items = append(items, SaleItem{
			ProductID:       p.ID,
			ProductName:     p.Name,
			IsService:       p.IsService,
			Quantity:        line.Quantity,
			UnitPrice:       p.Price,
			DiscountPercent: line.DiscountPercent,
			DiscountAmount:  line.DiscountAmount,
			TaxRate:         p.TaxRate,
		})
		priceLines = append(priceLines, pricing.Line{
			ProductID:       p.ID,
			Quantity:        line.Quantity,
			UnitPrice:       p.Price,
			DiscountPercent: line.DiscountPercent,
			DiscountAmount:  line.DiscountAmount,
			TaxRate:         p.TaxRate,
		})
	}
	return items, priceLines, nil
}

// resolvePaid applies the amount-paid rules: explicit values are validated,
// walk-ins must pay the exact total, omission defaults to full payment.
func resolvePaid(in CreateSaleInput, total decimal.Decimal, walkIn bool) (decimal.Decimal, error) {
	if in.PaymentMethod == MethodAccountCredit {
		return total, nil
	}
	paid := total
	if in.AmountPaid != nil {
		paid = *in.AmountPaid
	}
	if walkIn && !paid.Equal(total) {
		return decimal.Decimal{}, ErrIncompleteWalkInPayment
	}
	if in.PaymentMethod == MethodMixed && !in.CashPortion.Add(in.TransferPortion).Equal(paid) {
		return decimal.Decimal{}, ErrInvalidPayment
	}
	return paid, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	}); err != nil && s.logger != nil {
		s.logger.Warn("sales audit", slog.Any("error", err))
	}
}
