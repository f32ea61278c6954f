package inventory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const maxBatchProducts = 50

type inventoryService interface {
	Availability(ctx context.Context, productID int64, variant string, channel Channel) (Availability, error)
	Transfer(ctx context.Context, in TransferInput) (TransferResult, error)
	Undo(ctx context.Context, changeID int64) error
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger  *slog.Logger
	service inventoryService
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service inventoryService) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/products/{id}/availability", h.handleAvailability)
	r.Get("/availability", h.handleBatchAvailability)
	r.Post("/transfers", h.handleTransfer)
	r.Delete("/changes/{id}", h.handleUndo)
}

type transferRequest struct {
	Code         string    `json:"code" validate:"max=64"`
	ProductID    int64     `json:"product_id" validate:"required,gt=0"`
	Variant      string    `json:"variant" validate:"max=64"`
	SrcWarehouse int64     `json:"src_warehouse_id" validate:"required,gt=0"`
	DstWarehouse int64     `json:"dst_warehouse_id" validate:"required,gt=0,nefield=SrcWarehouse"`
	Count        int64     `json:"count" validate:"required,gt=0"`
	DateTime     time.Time `json:"date_time"`
}

type recordResponse struct {
	ID          int64  `json:"id"`
	WarehouseID int64  `json:"warehouse_id"`
	Count       int64  `json:"count"`
	RefID       string `json:"ref_id"`
}

type transferResponse struct {
	ChangeID int64          `json:"change_id"`
	Code     string         `json:"code"`
	Out      recordResponse `json:"out"`
	In       recordResponse `json:"in"`
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	productID, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	q := r.URL.Query()
	avail, err := h.availability(r.Context(), productID, q.Get("variant"), Channel(q.Get("channel")))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, avail)
}

func (h *Handler) handleBatchAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q["product"]
	if len(raw) == 0 || len(raw) > maxBatchProducts {
		httpx.RespondError(w, h.logger, shared.Validation("between 1 and %d product parameters required", maxBatchProducts))
		return
	}
	ids := make([]int64, 0, len(raw))
	for _, value := range raw {
		id, err := strconv.ParseInt(value, 10, 64)
		if err != nil || id <= 0 {
			httpx.RespondError(w, h.logger, shared.Validation("invalid product %q", value))
			return
		}
		ids = append(ids, id)
	}
	variant := q.Get("variant")
	channel := Channel(q.Get("channel"))

	results := make([]Availability, len(ids))
	g, ctx := errgroup.WithContext(r.Context())
	g.SetLimit(8)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			avail, err := h.availability(ctx, id, variant, channel)
			if err != nil {
				return err
			}
			results[i] = avail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, results)
}

func (h *Handler) availability(ctx context.Context, productID int64, variant string, channel Channel) (Availability, error) {
	key := fmt.Sprintf("%d:%s:%s", productID, variant, channel)
	return singleflightAvailability(ctx, key, func(ctx context.Context) (Availability, error) {
		return h.service.Availability(ctx, productID, variant, channel)
	})
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.Transfer(r.Context(), TransferInput{
		Code:         req.Code,
		ProductID:    req.ProductID,
		Variant:      req.Variant,
		SrcWarehouse: req.SrcWarehouse,
		DstWarehouse: req.DstWarehouse,
		Count:        req.Count,
		DateTime:     req.DateTime,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("stock transferred",
		slog.Int64("change_id", result.Change.ID),
		slog.Int64("product_id", req.ProductID),
		slog.Int64("count", req.Count))
	httpx.JSON(w, http.StatusCreated, transferResponse{
		ChangeID: result.Change.ID,
		Code:     result.Change.RefID,
		Out:      recordResponse{ID: result.Out.ID, WarehouseID: result.Out.WarehouseID, Count: result.Out.Count, RefID: result.Out.RefID},
		In:       recordResponse{ID: result.In.ID, WarehouseID: result.In.WarehouseID, Count: result.In.Count, RefID: result.In.RefID},
	})
}

func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Undo(r.Context(), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	h.logger.Info("stock change undone", slog.Int64("change_id", id))
	w.WriteHeader(http.StatusNoContent)
}
