package ledger

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

type ledgerService interface {
	Post(ctx context.Context, input DocumentInput) (Document, error)
	Reverse(ctx context.Context, id int64) (Document, error)
	Update(ctx context.Context, id int64, input DocumentInput) (Document, error)
	Delete(ctx context.Context, id int64) error
	Account(ctx context.Context, id int64) (Account, error)
	Document(ctx context.Context, id int64) (Document, error)
}

// Handler exposes the ledger over JSON.
type Handler struct {
	logger  *slog.Logger
	service ledgerService
}

// NewHandler constructs the ledger HTTP handler.
func NewHandler(logger *slog.Logger, service ledgerService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}", h.getAccount)
	r.Route("/documents", func(r chi.Router) {
		r.Post("/", h.postDocument)
		r.Get("/{id}", h.getDocument)
		r.Put("/{id}", h.updateDocument)
		r.Delete("/{id}", h.deleteDocument)
		r.Post("/{id}/reverse", h.reverseDocument)
	})
}

type lineRequest struct {
	AccountID int64           `json:"account_id" validate:"required,gt=0"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type documentRequest struct {
	DateTime    time.Time     `json:"date_time"`
	Description string        `json:"description" validate:"max=255"`
	Lines       []lineRequest `json:"lines" validate:"required,min=1,dive"`
	RefModule   string        `json:"ref_module" validate:"max=64"`
	RefID       string        `json:"ref_id" validate:"max=64"`
	Type        string        `json:"type" validate:"max=32"`
}

func (req documentRequest) input() DocumentInput {
	lines := make([]Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, Line{AccountID: line.AccountID, Debit: line.Debit, Credit: line.Credit})
	}
	return DocumentInput{
		DateTime:    req.DateTime,
		Description: req.Description,
		Lines:       lines,
		RefModule:   req.RefModule,
		RefID:       req.RefID,
		Type:        req.Type,
	}
}

type accountResponse struct {
	ID      int64           `json:"id"`
	Code    string          `json:"code"`
	Name    string          `json:"name"`
	Type    AccountType     `json:"type"`
	Balance decimal.Decimal `json:"balance"`
	Status  AccountStatus   `json:"status"`
}

type lineResponse struct {
	AccountID int64           `json:"account_id"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
}

type documentResponse struct {
	ID          int64           `json:"id"`
	DateTime    time.Time       `json:"date_time"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	RefModule   string          `json:"ref_module,omitempty"`
	RefID       string          `json:"ref_id,omitempty"`
	Type        string          `json:"type,omitempty"`
	Status      DocumentStatus  `json:"status"`
	Lines       []lineResponse  `json:"lines"`
}

func toDocumentResponse(doc Document) documentResponse {
	lines := make([]lineResponse, 0, len(doc.Lines))
	for _, line := range doc.Lines {
		lines = append(lines, lineResponse(line))
	}
	return documentResponse{
		ID:          doc.ID,
		DateTime:    doc.DateTime,
		Description: doc.Description,
		Amount:      doc.Amount,
		RefModule:   doc.RefModule,
		RefID:       doc.RefID,
		Type:        doc.Type,
		Status:      doc.Status,
		Lines:       lines,
	}
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	acc, err := h.service.Account(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, accountResponse(acc))
}

func (h *Handler) postDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	doc, err := h.service.Post(r.Context(), req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("accounting document posted", slog.Int64("document_id", doc.ID), slog.String("amount", doc.Amount.String()))
	w.Header().Set("Location", "/api/ledger/documents/"+strconv.FormatInt(doc.ID, 10))
	httpx.JSON(w, http.StatusCreated, toDocumentResponse(doc))
}

func (h *Handler) getDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	doc, err := h.service.Document(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) updateDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req documentRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	doc, err := h.service.Update(r.Context(), id, req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}

func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) reverseDocument(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	doc, err := h.service.Reverse(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("accounting document reversed", slog.Int64("document_id", doc.ID))
	httpx.JSON(w, http.StatusOK, toDocumentResponse(doc))
}
