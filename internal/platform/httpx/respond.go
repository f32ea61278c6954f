// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/shared"
)

var validate = validator.New()

// ProblemDetail represents RFC7807 problem details.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return shared.Validation("invalid request body: %v", err)
	}
	return nil
}

// Bind decodes the body and runs struct validation tags against it.
func Bind(r *http.Request, target any) error {
	if err := DecodeJSON(r, target); err != nil {
		return err
	}
	if err := validate.Struct(target); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fieldErr := range fieldErrs {
				msgs = append(msgs, fieldErr.Namespace()+" failed "+fieldErr.Tag())
			}
			return shared.Validation("%s", strings.Join(msgs, "; "))
		}
		return shared.Validation("%v", err)
	}
	return nil
}

// IDParam parses a positive int64 chi URL parameter.
func IDParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Validation("invalid %s %q", name, raw)
	}
	return id, nil
}
