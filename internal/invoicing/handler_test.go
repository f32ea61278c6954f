package invoicing_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/invoicing"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

type stubService struct {
	lines       []invoicing.Line
	adjustments []invoicing.Adjustment
	sale        invoicing.SalesInvoiceInput
}

func (s *stubService) Calculate(ctx context.Context, lines []invoicing.Line, adjustments []invoicing.Adjustment) (invoicing.Totals, error) {
	s.lines, s.adjustments = lines, adjustments
	return invoicing.Totals{Sum: decimal.NewFromInt(100), Total: decimal.NewFromInt(90)}, nil
}

func (s *stubService) CreatePurchaseInvoice(ctx context.Context, in invoicing.PurchaseInvoiceInput) (invoicing.PurchaseInvoice, error) {
	return invoicing.PurchaseInvoice{}, shared.NotFound("warehouse", in.WarehouseID)
}

func (s *stubService) UpdatePurchaseInvoice(ctx context.Context, id int64, in invoicing.PurchaseInvoiceInput) (invoicing.PurchaseInvoice, error) {
	return invoicing.PurchaseInvoice{}, shared.Conflict("purchase invoice", id, "invoice is settled")
}

func (s *stubService) PurchaseInvoice(ctx context.Context, id int64) (invoicing.PurchaseInvoice, error) {
	return invoicing.PurchaseInvoice{ID: id}, nil
}

func (s *stubService) CreateSalesInvoice(ctx context.Context, in invoicing.SalesInvoiceInput) (invoicing.SalesInvoice, error) {
	s.sale = in
	return invoicing.SalesInvoice{ID: 9, Total: decimal.RequireFromString("12.5"), Status: invoicing.StatusUnpaid}, nil
}

func (s *stubService) UpdateSalesInvoice(ctx context.Context, id int64, in invoicing.SalesInvoiceInput) (invoicing.SalesInvoice, error) {
	return invoicing.SalesInvoice{ID: id}, nil
}

func (s *stubService) SalesInvoice(ctx context.Context, id int64) (invoicing.SalesInvoice, error) {
	return invoicing.SalesInvoice{}, shared.NotFound("sales invoice", id)
}

type stubDeleter struct {
	deleted []int64
	err     error
}

func (d *stubDeleter) DeletePurchaseInvoice(ctx context.Context, id int64) error {
	d.deleted = append(d.deleted, id)
	return d.err
}

func (d *stubDeleter) DeleteSalesInvoice(ctx context.Context, id int64) error {
	d.deleted = append(d.deleted, -id)
	return d.err
}

func newRouter(svc *stubService, deleter *stubDeleter) http.Handler {
	r := chi.NewRouter()
	invoicing.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, deleter).MountRoutes(r)
	return r
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCalculatePassesUnitsThrough(t *testing.T) {
	svc := &stubService{}
	rec := serve(newRouter(svc, &stubDeleter{}), http.MethodPost, "/calculate",
		`{"kind":"sales","lines":[{"count":2,"price":"50"}],"adjustments":[{"reason_id":3,"value":"10","unit":"fixed"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, svc.lines, 1)
	require.Equal(t, int64(2), svc.lines[0].Count)
	require.Len(t, svc.adjustments, 1)
	require.Equal(t, invoicing.UnitFixed, svc.adjustments[0].Unit)

	var body struct {
		Sum   string `json:"sum"`
		Total string `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "90", body.Total)
}

func TestCalculateRejectsBadRequests(t *testing.T) {
	h := newRouter(&stubService{}, &stubDeleter{})
	cases := map[string]string{
		"unknown kind":   `{"kind":"refund","lines":[]}`,
		"unknown unit":   `{"adjustments":[{"reason_id":1,"value":"5","unit":"ratio"}]}`,
		"missing reason": `{"adjustments":[{"value":"5"}]}`,
		"unknown field":  `{"discount":5}`,
		"negative count": `{"lines":[{"count":-1,"price":"1"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, "/calculate", body)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestCreateSalesMapsLines(t *testing.T) {
	svc := &stubService{}
	rec := serve(newRouter(svc, &stubDeleter{}), http.MethodPost, "/sales/",
		`{"code":"S-1","lines":[{"product_id":4,"variant":"red","warehouse_id":2,"count":3,"price":"4.5"}]}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, "S-1", svc.sale.Code)
	require.Len(t, svc.sale.Lines, 1)
	require.Equal(t, int64(2), svc.sale.Lines[0].WarehouseID)
	require.True(t, svc.sale.Lines[0].Price.Equal(decimal.RequireFromString("4.5")))

	var body struct {
		ID     int64  `json:"id"`
		Total  string `json:"total"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, int64(9), body.ID)
	require.Equal(t, "12.50", body.Total)
	require.Equal(t, "unpaid", body.Status)
}

func TestHandlerMapsDomainErrors(t *testing.T) {
	h := newRouter(&stubService{}, &stubDeleter{})

	rec := serve(h, http.MethodPost, "/purchase/", `{"warehouse_id":77,"lines":[{"product_id":1,"count":1,"purchase_price":"1"}]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPut, "/purchase/5", `{"warehouse_id":1,"lines":[{"product_id":1,"count":1,"purchase_price":"1"}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(h, http.MethodGet, "/sales/5", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodGet, "/sales/abc", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteGoesThroughDeleter(t *testing.T) {
	deleter := &stubDeleter{}
	h := newRouter(&stubService{}, deleter)

	require.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/purchase/3", "").Code)
	require.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/sales/4", "").Code)
	require.Equal(t, []int64{3, -4}, deleter.deleted)

	deleter.err = &shared.InsufficientStockError{ProductID: 1, WarehouseID: 2, Requested: 5, Available: 1}
	rec := serve(h, http.MethodDelete, "/purchase/3", "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), `"available":1`)
}
