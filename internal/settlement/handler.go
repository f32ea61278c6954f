package settlement

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/ledger"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type settlementService interface {
	Settle(ctx context.Context, in Input) (Result, error)
	Unsettle(ctx context.Context, id int64) error
	Settlement(ctx context.Context, id int64) (Settlement, error)
}

type settleObserver interface {
	SettlementObserved(invoiceType string, err error)
}

// Handler exposes settlement endpoints.
type Handler struct {
	logger   *slog.Logger
	service  settlementService
	observer settleObserver
}

// NewHandler constructs the settlement HTTP handler. observer may be nil.
func NewHandler(logger *slog.Logger, service settlementService, observer settleObserver) *Handler {
	return &Handler{logger: logger, service: service, observer: observer}
}

// MountRoutes registers settlement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.settle)
	r.Get("/{id}", h.get)
	r.Delete("/{id}", h.unsettle)
}

type allocationRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

type settleRequest struct {
	Type             Type                `json:"type" validate:"required,oneof=purchase-invoice sales-invoice"`
	InvoiceID        int64               `json:"invoice_id" validate:"required,gt=0"`
	Cash             decimal.Decimal     `json:"cash"`
	CashAccounts     []allocationRequest `json:"cash_accounts" validate:"dive"`
	DistributedCash  bool                `json:"distributed_cash"`
	Bank             decimal.Decimal     `json:"bank"`
	BankAccounts     []allocationRequest `json:"bank_accounts" validate:"dive"`
	DistributedBank  bool                `json:"distributed_bank"`
	Credit           decimal.Decimal     `json:"credit"`
	CreditAccountID  int64               `json:"credit_account_id" validate:"gte=0"`
	CounterAccountID int64               `json:"counter_account_id" validate:"gte=0"`
	DateTime         time.Time           `json:"date_time"`
	Description      string              `json:"description" validate:"max=255"`
}

func allocations(in []allocationRequest) []Allocation {
	out := make([]Allocation, 0, len(in))
	for _, alloc := range in {
		out = append(out, Allocation(alloc))
	}
	return out
}

func (req settleRequest) input() Input {
	return Input{
		Type:      req.Type,
		InvoiceID: req.InvoiceID,
		Payment: Payment{
			Cash:            req.Cash,
			CashAccounts:    allocations(req.CashAccounts),
			DistributedCash: req.DistributedCash,
			Bank:            req.Bank,
			BankAccounts:    allocations(req.BankAccounts),
			DistributedBank: req.DistributedBank,
			Credit:          req.Credit,
			CreditAccountID: req.CreditAccountID,
		},
		CounterAccountID: req.CounterAccountID,
		DateTime:         req.DateTime,
		Description:      req.Description,
	}
}

type lineResponse struct {
	AccountID int64  `json:"account_id"`
	Debit     string `json:"debit"`
	Credit    string `json:"credit"`
}

type settlementResponse struct {
	ID         int64          `json:"id"`
	Type       Type           `json:"type"`
	InvoiceID  int64          `json:"invoice_id"`
	Payment    Payment        `json:"payment"`
	DocumentID int64          `json:"document_id"`
	CreatedAt  time.Time      `json:"created_at"`
	Amount     string         `json:"amount,omitempty"`
	Lines      []lineResponse `json:"lines,omitempty"`
}

func toResponse(st Settlement, doc *ledger.Document) settlementResponse {
	resp := settlementResponse{
		ID:         st.ID,
		Type:       st.Type,
		InvoiceID:  st.InvoiceID,
		Payment:    st.Payment,
		DocumentID: st.DocumentID,
		CreatedAt:  st.CreatedAt,
	}
	if doc != nil {
		resp.Amount = doc.Amount.StringFixed(shared.MoneyScale)
		for _, line := range doc.Lines {
			resp.Lines = append(resp.Lines, lineResponse{
				AccountID: line.AccountID,
				Debit:     line.Debit.StringFixed(shared.MoneyScale),
				Credit:    line.Credit.StringFixed(shared.MoneyScale),
			})
		}
	}
	return resp
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.Settle(r.Context(), req.input())
	if h.observer != nil {
		h.observer.SettlementObserved(string(req.Type), err)
	}
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("invoice settled",
		slog.String("type", string(req.Type)),
		slog.Int64("invoice_id", req.InvoiceID),
		slog.Int64("settlement_id", result.Settlement.ID),
		slog.Int64("document_id", result.Document.ID))
	httpx.JSON(w, http.StatusCreated, toResponse(result.Settlement, &result.Document))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	st, err := h.service.Settlement(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toResponse(st, nil))
}

func (h *Handler) unsettle(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Unsettle(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("settlement removed", slog.Int64("settlement_id", id))
	w.WriteHeader(http.StatusNoContent)
}
