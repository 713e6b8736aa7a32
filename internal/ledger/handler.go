package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tiendafix/tiendafix/internal/platform/httpx"
)

// Handler manages customer account and ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/ledger/transactions", h.postTransaction)
	r.Get("/customers/{id}/balance", h.balanceSummary)
	r.Get("/customers/{id}/transactions", h.listTransactions)
	r.Get("/customers/{id}/credit", h.creditAvailability)
	r.Post("/customers/{id}/block", h.blockAccount)
	r.Post("/customers/{id}/unblock", h.unblockAccount)
}

type postTransactionRequest struct {
	CustomerID    int64           `json:"customer_id" validate:"required,gt=0"`
	Type          string          `json:"type" validate:"required,oneof=OPENING_BALANCE SALE PAYMENT CREDIT_APPLICATION VOID_SALE REPAIR_DEPOSIT"`
	Amount        decimal.Decimal `json:"amount"`
	ReferenceType string          `json:"reference_type" validate:"omitempty,oneof=sale payment deposit manual"`
	ReferenceID   int64           `json:"reference_id"`
	Notes         string          `json:"notes"`
	DepositRefund bool            `json:"deposit_refund"`
	ActorID       int64           `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	refType := ReferenceType(req.ReferenceType)
	if refType == "" {
		refType = RefManual
	}
	tx, err := h.service.Post(r.Context(), PostInput{
		CustomerID:    req.CustomerID,
		Type:          TransactionType(req.Type),
		Amount:        req.Amount,
		ReferenceType: refType,
		ReferenceID:   req.ReferenceID,
		Notes:         req.Notes,
		DepositRefund: req.DepositRefund,
		ActorID:       req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) balanceSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := customerID(w, r)
	if !ok {
		return
	}
	summary, err := h.service.GetBalanceSummary(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := customerID(w, r)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	transactions, err := h.service.ListTransactions(r.Context(), id, limit)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

func (h *Handler) creditAvailability(w http.ResponseWriter, r *http.Request) {
	id, ok := customerID(w, r)
	if !ok {
		return
	}
	decision, err := h.service.CheckCreditAvailability(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"has_credit": decision.HasCredit,
		"available":  decision.Available,
		"reason":     decision.Reason,
	})
}

type blockAccountRequest struct {
	Until   time.Time `json:"until" validate:"required"`
	Reason  string    `json:"reason" validate:"required"`
	ActorID int64     `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) blockAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := customerID(w, r)
	if !ok {
		return
	}
	var req blockAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.BlockAccount(r.Context(), id, req.Until, req.Reason, req.ActorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "blocked"})
}

type unblockAccountRequest struct {
	ActorID int64 `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) unblockAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := customerID(w, r)
	if !ok {
		return
	}
	var req unblockAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.UnblockAccount(r.Context(), id, req.ActorID); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": "unblocked"})
}

func customerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", "customer id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateTransaction):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, ErrAccountBlocked), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnknownType):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	default:
		h.logger.Error("ledger handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
