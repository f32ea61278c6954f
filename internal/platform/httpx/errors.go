// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var stockErr *shared.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		JSON(w, http.StatusConflict, InsufficientStockProblem{
			ProblemDetail: ProblemDetail{Title: "Insufficient Stock", Status: http.StatusConflict, Detail: err.Error()},
			ProductID:     stockErr.ProductID,
			Variant:       stockErr.Variant,
			WarehouseID:   stockErr.WarehouseID,
			Requested:     stockErr.Requested,
			Available:     stockErr.Available,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// InsufficientStockProblem extends the problem document with the shortfall.
type InsufficientStockProblem struct {
	ProblemDetail
	ProductID   int64  `json:"product_id"`
	Variant     string `json:"variant,omitempty"`
	WarehouseID int64  `json:"warehouse_id"`
	Requested   int64  `json:"requested"`
	Available   int64  `json:"available"`
}
