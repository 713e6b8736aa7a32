package register

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tiendafix/tiendafix/internal/platform/httpx"
)

// Handler manages cash register endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers register routes. The summary endpoint gets its own
// tighter rate limit since it fans out into aggregate queries.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/register/open", h.open)
	r.Post("/register/close", h.close)
	r.Get("/register/status", h.status)
	r.With(httprate.Limit(30, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))).
		Get("/register/summary", h.dailySummary)
}

type openRequest struct {
	Date           string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	ActorID        int64           `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) open(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		date, _ = time.Parse("2006-01-02", req.Date)
	}
	period, err := h.service.Open(r.Context(), OpenInput{
		Date:           date,
		OpeningBalance: req.OpeningBalance,
		ActorID:        req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, period)
}

type closeRequest struct {
	CashCount decimal.Decimal `json:"cash_count"`
	Notes     string          `json:"notes"`
	ActorID   int64           `json:"actor_id" validate:"required,gt=0"`
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Close(r.Context(), CloseInput{
		CashCount: req.CashCount,
		Notes:     req.Notes,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	period, found, err := h.service.Status(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if !found {
		httpx.JSON(w, http.StatusOK, map[string]any{"status": "none"})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"status": string(period.Status), "period": period})
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	var date time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}
	summary, err := h.service.DailySummary(r.Context(), date)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrAnotherDayOpen),
		errors.Is(err, ErrAlreadyClosedForDate):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrNoOpenRegister), errors.Is(err, ErrRegisterClosed):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Business Rule Violation", err.Error())
	case errors.Is(err, ErrInvalidAmount):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("register handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
