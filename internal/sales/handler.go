package sales

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tiendafix/tiendafix/internal/catalog"
	"github.com/tiendafix/tiendafix/internal/ledger"
	"github.com/tiendafix/tiendafix/internal/platform/httpx"
	"github.com/tiendafix/tiendafix/internal/register"
)

// Handler manages sale endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/sales", h.createSale)
	r.Get("/sales", h.listSales)
	r.Get("/sales/{id}", h.getSale)
	r.Post("/sales/{id}/void", h.voidSale)
	r.Post("/payments", h.recordPayment)
	r.Get("/customers/{id}/payments", h.listPayments)
}

type cartLineRequest struct {
	ProductID       int64           `json:"product_id" validate:"required,gt=0"`
	Quantity        int64           `json:"quantity" validate:"required,gt=0"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
}

type createSaleRequest struct {
	CustomerID      *int64            `json:"customer_id" validate:"omitempty,gt=0"`
	Lines           []cartLineRequest `json:"lines" validate:"required,min=1,dive"`
	SaleDiscount    decimal.Decimal   `json:"sale_discount"`
	PaymentMethod   string            `json:"payment_method" validate:"required,oneof=cash transfer card account_credit mixed"`
	AmountPaid      *decimal.Decimal  `json:"amount_paid"`
	CashPortion     decimal.Decimal   `json:"cash_portion"`
	TransferPortion decimal.Decimal   `json:"transfer_portion"`
	Source          string            `json:"source" validate:"omitempty,oneof=pos repair"`
	Notes           string            `json:"notes"`
	ActorID         int64             `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	var req createSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	lines := make([]CartLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, CartLine{
			ProductID:       l.ProductID,
			Quantity:        l.Quantity,
			DiscountPercent: l.DiscountPercent,
			DiscountAmount:  l.DiscountAmount,
		})
	}
	result, err := h.service.CreateSale(r.Context(), CreateSaleInput{
		CustomerID:      req.CustomerID,
		Lines:           lines,
		SaleDiscount:    req.SaleDiscount,
		PaymentMethod:   PaymentMethod(req.PaymentMethod),
		AmountPaid:      req.AmountPaid,
		CashPortion:     req.CashPortion,
		TransferPortion: req.TransferPortion,
		Source:          Source(req.Source),
		Notes:           req.Notes,
		ActorID:         req.ActorID,
		IdempotencyKey:  r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, saleResponse(result))
}

func (h *Handler) getSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
		return
	}
	result, err := h.service.GetSale(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(result))
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	sales, err := h.service.ListByDate(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"sales": sales})
}

type voidSaleRequest struct {
	Reason  string `json:"reason" validate:"required"`
	ActorID int64  `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) voidSale(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "sale id must be numeric")
		return
	}
	var req voidSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.VoidSale(r.Context(), id, req.Reason, req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saleResponse(result))
}

type recordPaymentRequest struct {
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	SaleID     *int64          `json:"sale_id" validate:"omitempty,gt=0"`
	Amount     decimal.Decimal `json:"amount" validate:"required"`
	Method     string          `json:"method" validate:"required,oneof=cash transfer card"`
	Notes      string          `json:"notes"`
	ActorID    int64           `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	var req recordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), RecordPaymentInput{
		CustomerID:     req.CustomerID,
		SaleID:         req.SaleID,
		Amount:         req.Amount,
		Method:         PaymentMethod(req.Method),
		Notes:          req.Notes,
		ActorID:        req.ActorID,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "customer id must be numeric")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	payments, err := h.service.ListPayments(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": payments})
}

func saleResponse(result SaleResult) map[string]any {
	return map[string]any{
		"sale":       result.Sale,
		"items":      result.Items,
		"amount_due": result.AmountDue,
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrSaleNotFound), errors.Is(err, catalog.ErrProductNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyVoided), errors.Is(err, ErrDuplicateDocument), errors.Is(err, ErrDuplicateRequest):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrIncompleteWalkInPayment),
		errors.Is(err, ErrInsufficientCredit),
		errors.Is(err, ErrInvalidPayment),
		errors.Is(err, register.ErrRegisterClosed),
		errors.Is(err, ledger.ErrAccountBlocked):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		h.logger.Error("sales handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
