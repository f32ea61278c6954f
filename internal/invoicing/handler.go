package invoicing

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/inventory"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type invoicingService interface {
	Calculate(ctx context.Context, lines []Line, adjustments []Adjustment) (Totals, error)
	CreatePurchaseInvoice(ctx context.Context, in PurchaseInvoiceInput) (PurchaseInvoice, error)
	UpdatePurchaseInvoice(ctx context.Context, id int64, in PurchaseInvoiceInput) (PurchaseInvoice, error)
	PurchaseInvoice(ctx context.Context, id int64) (PurchaseInvoice, error)
	CreateSalesInvoice(ctx context.Context, in SalesInvoiceInput) (SalesInvoice, error)
	UpdateSalesInvoice(ctx context.Context, id int64, in SalesInvoiceInput) (SalesInvoice, error)
	SalesInvoice(ctx context.Context, id int64) (SalesInvoice, error)
}

// invoiceDeleter removes invoices. The settlement service implements it with
// the unsettle cascade.
type invoiceDeleter interface {
	DeletePurchaseInvoice(ctx context.Context, id int64) error
	DeleteSalesInvoice(ctx context.Context, id int64) error
}

// Handler exposes invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service invoicingService
	deleter invoiceDeleter
}

// NewHandler constructs the invoicing HTTP handler.
func NewHandler(logger *slog.Logger, service invoicingService, deleter invoiceDeleter) *Handler {
	return &Handler{logger: logger, service: service, deleter: deleter}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/calculate", h.calculate)
	r.Route("/purchase", func(r chi.Router) {
		r.Post("/", h.createPurchase)
		r.Get("/{id}", h.getPurchase)
		r.Put("/{id}", h.updatePurchase)
		r.Delete("/{id}", h.deletePurchase)
	})
	r.Route("/sales", func(r chi.Router) {
		r.Post("/", h.createSales)
		r.Get("/{id}", h.getSales)
		r.Put("/{id}", h.updateSales)
		r.Delete("/{id}", h.deleteSales)
	})
}

type adjustmentRequest struct {
	ReasonID int64           `json:"reason_id" validate:"required,gt=0"`
	Value    decimal.Decimal `json:"value"`
	Unit     Unit            `json:"unit" validate:"omitempty,oneof=percent fixed"`
}

func toAdjustments(in []adjustmentRequest) []Adjustment {
	out := make([]Adjustment, 0, len(in))
	for _, adj := range in {
		out = append(out, Adjustment{ReasonID: adj.ReasonID, Value: adj.Value, Unit: adj.Unit})
	}
	return out
}

type calculateLineRequest struct {
	Count int64           `json:"count" validate:"gte=0"`
	Price decimal.Decimal `json:"price"`
}

type calculateRequest struct {
	Kind        string                 `json:"kind" validate:"omitempty,oneof=purchase sales"`
	Lines       []calculateLineRequest `json:"lines" validate:"dive"`
	Adjustments []adjustmentRequest    `json:"adjustments" validate:"dive"`
}

type purchaseLineRequest struct {
	ProductID     int64           `json:"product_id" validate:"required,gt=0"`
	Variant       string          `json:"variant" validate:"max=64"`
	Count         int64           `json:"count" validate:"required,gt=0"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	ConsumerPrice decimal.Decimal `json:"consumer_price"`
	StorePrice    decimal.Decimal `json:"store_price"`
}

type purchaseRequest struct {
	Code        string                `json:"code" validate:"max=64"`
	SupplierID  int64                 `json:"supplier_id" validate:"gte=0"`
	WarehouseID int64                 `json:"warehouse_id" validate:"required,gt=0"`
	DateTime    time.Time             `json:"date_time"`
	Lines       []purchaseLineRequest `json:"lines" validate:"required,min=1,dive"`
	Adjustments []adjustmentRequest   `json:"adjustments" validate:"dive"`
}

func (req purchaseRequest) input() PurchaseInvoiceInput {
	lines := make([]PurchaseLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, PurchaseLine{
			ProductID: line.ProductID,
			Variant:   line.Variant,
			Count:     line.Count,
			Price:     inventory.Price{Purchase: line.PurchasePrice, Consumer: line.ConsumerPrice, Store: line.StorePrice},
		})
	}
	return PurchaseInvoiceInput{
		Code:        req.Code,
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
		DateTime:    req.DateTime,
		Lines:       lines,
		Adjustments: toAdjustments(req.Adjustments),
	}
}

type salesLineRequest struct {
	ProductID   int64           `json:"product_id" validate:"required,gt=0"`
	Variant     string          `json:"variant" validate:"max=64"`
	WarehouseID int64           `json:"warehouse_id" validate:"required,gt=0"`
	Count       int64           `json:"count" validate:"required,gt=0"`
	Price       decimal.Decimal `json:"price"`
}

type salesRequest struct {
	Code        string              `json:"code" validate:"max=64"`
	CustomerID  int64               `json:"customer_id" validate:"gte=0"`
	DateTime    time.Time           `json:"date_time"`
	Lines       []salesLineRequest  `json:"lines" validate:"required,min=1,dive"`
	Adjustments []adjustmentRequest `json:"adjustments" validate:"dive"`
}

func (req salesRequest) input() SalesInvoiceInput {
	lines := make([]SalesLine, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, SalesLine{
			ProductID:   line.ProductID,
			Variant:     line.Variant,
			WarehouseID: line.WarehouseID,
			Count:       line.Count,
			Price:       line.Price,
		})
	}
	return SalesInvoiceInput{
		Code:        req.Code,
		CustomerID:  req.CustomerID,
		DateTime:    req.DateTime,
		Lines:       lines,
		Adjustments: toAdjustments(req.Adjustments),
	}
}

type totalsResponse struct {
	Sum         decimal.Decimal `json:"sum"`
	Total       decimal.Decimal `json:"total"`
	Adjustments []Adjustment    `json:"adjustments"`
}

type purchaseResponse struct {
	ID           int64          `json:"id"`
	Code         string         `json:"code"`
	SupplierID   int64          `json:"supplier_id,omitempty"`
	WarehouseID  int64          `json:"warehouse_id"`
	DateTime     time.Time      `json:"date_time"`
	Lines        []PurchaseLine `json:"lines"`
	Adjustments  []Adjustment   `json:"adjustments"`
	Sum          string         `json:"sum"`
	Total        string         `json:"total"`
	SettlementID int64          `json:"settlement_id,omitempty"`
	Status       Status         `json:"status"`
}

func toPurchaseResponse(inv PurchaseInvoice) purchaseResponse {
	return purchaseResponse{
		ID:           inv.ID,
		Code:         inv.Code,
		SupplierID:   inv.SupplierID,
		WarehouseID:  inv.WarehouseID,
		DateTime:     inv.DateTime,
		Lines:        inv.Lines,
		Adjustments:  inv.Adjustments,
		Sum:          inv.Sum.StringFixed(shared.MoneyScale),
		Total:        inv.Total.StringFixed(shared.MoneyScale),
		SettlementID: inv.SettlementID,
		Status:       inv.Status,
	}
}

type salesResponse struct {
	ID            int64        `json:"id"`
	Code          string       `json:"code"`
	CustomerID    int64        `json:"customer_id,omitempty"`
	DateTime      time.Time    `json:"date_time"`
	Lines         []SalesLine  `json:"lines"`
	Adjustments   []Adjustment `json:"adjustments"`
	Sum           string       `json:"sum"`
	Total         string       `json:"total"`
	Status        Status       `json:"status"`
	SettlementID  int64        `json:"settlement_id,omitempty"`
	StockChangeID int64        `json:"stock_change_id,omitempty"`
}

func toSalesResponse(inv SalesInvoice) salesResponse {
	return salesResponse{
		ID:            inv.ID,
		Code:          inv.Code,
		CustomerID:    inv.CustomerID,
		DateTime:      inv.DateTime,
		Lines:         inv.Lines,
		Adjustments:   inv.Adjustments,
		Sum:           inv.Sum.StringFixed(shared.MoneyScale),
		Total:         inv.Total.StringFixed(shared.MoneyScale),
		Status:        inv.Status,
		SettlementID:  inv.SettlementID,
		StockChangeID: inv.StockChangeID,
	}
}

func (h *Handler) calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	lines := make([]Line, 0, len(req.Lines))
	for _, line := range req.Lines {
		lines = append(lines, Line(line))
	}
	totals, err := h.service.Calculate(r.Context(), lines, toAdjustments(req.Adjustments))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, totalsResponse(totals))
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.CreatePurchaseInvoice(r.Context(), req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("purchase invoice created", slog.Int64("invoice_id", inv.ID), slog.String("total", inv.Total.String()))
	httpx.JSON(w, http.StatusCreated, toPurchaseResponse(inv))
}

func (h *Handler) getPurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.PurchaseInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(inv))
}

func (h *Handler) updatePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req purchaseRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.UpdatePurchaseInvoice(r.Context(), id, req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPurchaseResponse(inv))
}

func (h *Handler) createSales(w http.ResponseWriter, r *http.Request) {
	var req salesRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.CreateSalesInvoice(r.Context(), req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("sales invoice created", slog.Int64("invoice_id", inv.ID), slog.String("total", inv.Total.String()))
	httpx.JSON(w, http.StatusCreated, toSalesResponse(inv))
}

func (h *Handler) getSales(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.SalesInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSalesResponse(inv))
}

func (h *Handler) updateSales(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req salesRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	inv, err := h.service.UpdateSalesInvoice(r.Context(), id, req.input())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toSalesResponse(inv))
}

func (h *Handler) deletePurchase(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.deleter.DeletePurchaseInvoice(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("purchase invoice deleted", slog.Int64("invoice_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteSales(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.deleter.DeleteSalesInvoice(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("sales invoice deleted", slog.Int64("invoice_id", id))
	w.WriteHeader(http.StatusNoContent)
}
