package shared

import (
	"errors"
	"fmt"
)

// Kind classifies errors returned by the core services.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInsufficientStock Kind = "insufficient_stock"
	KindConflict          Kind = "conflict"
	KindStorage           Kind = "storage"
)

var (
	// ErrValidation indicates malformed or missing caller input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientStock indicates a stock shortfall for a product in a warehouse.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrConflict indicates the operation does not fit the current entity state.
	ErrConflict = errors.New("conflict")
	// ErrStorage indicates an underlying persistence failure.
	ErrStorage = errors.New("storage failure")
)

var sentinels = map[Kind]error{
	KindValidation:        ErrValidation,
	KindNotFound:          ErrNotFound,
	KindInsufficientStock: ErrInsufficientStock,
	KindConflict:          ErrConflict,
	KindStorage:           ErrStorage,
}

// Error carries a kind plus the entity it concerns.
type Error struct {
	Kind   Kind
	Entity string
	ID     string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = sentinels[e.Kind].Error()
	}
	if e.Entity != "" && e.ID != "" {
		msg = fmt.Sprintf("%s %s: %s", e.Entity, e.ID, msg)
	} else if e.Entity != "" {
		msg = fmt.Sprintf("%s: %s", e.Entity, msg)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind sentinel so callers can use errors.Is(err, shared.ErrNotFound).
func (e *Error) Is(target error) bool {
	return sentinels[e.Kind] == target
}

// Validation builds a validation error.
func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a not-found error for entity/id.
func NotFound(entity string, id any) error {
	return &Error{Kind: KindNotFound, Entity: entity, ID: fmt.Sprint(id), Msg: "not found"}
}

// Conflict builds a conflict error for entity/id.
func Conflict(entity string, id any, format string, args ...any) error {
	return &Error{Kind: KindConflict, Entity: entity, ID: fmt.Sprint(id), Msg: fmt.Sprintf(format, args...)}
}

// Storage wraps a driver failure. Errors that already carry a kind pass through.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	var stock *InsufficientStockError
	if errors.As(err, &stock) {
		return err
	}
	return &Error{Kind: KindStorage, Msg: op, Err: err}
}

// KindOf reports the kind of err, KindStorage for unclassified errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for kind, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindStorage
}

// InsufficientStockError names the product and warehouse that could not serve a request.
type InsufficientStockError struct {
	ProductID   int64
	Variant     string
	WarehouseID int64
	Requested   int64
	Available   int64
}

func (e *InsufficientStockError) Error() string {
	product := fmt.Sprintf("%d", e.ProductID)
	if e.Variant != "" {
		product = fmt.Sprintf("%d/%s", e.ProductID, e.Variant)
	}
	return fmt.Sprintf("insufficient stock: product %s in warehouse %d (requested %d, available %d)",
		product, e.WarehouseID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
