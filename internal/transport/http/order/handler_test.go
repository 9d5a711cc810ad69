package order

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"

	"github.com/Kwazak/umnfestival2026-sub004/internal/payment"
	service "github.com/Kwazak/umnfestival2026-sub004/internal/service/order"
	"github.com/Kwazak/umnfestival2026-sub004/pkg/errorbank"
)

type stubStatus struct {
	views map[string]*service.StatusView
}

func (s stubStatus) Status(_ context.Context, number string) (*service.StatusView, error) {
	if view, ok := s.views[number]; ok {
		return view, nil
	}
	return nil, errorbank.NotFound("order not found")
}

func TestStatusEndpoint(t *testing.T) {
	e := echo.New()
	Register(e, &Handler{svc: stubStatus{views: map[string]*service.StatusView{
		"ORD-1": {Number: "ORD-1", Status: payment.StatusSettlement, Paid: true, Final: true},
	}}})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD-1/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"settlement"`)
	assert.Contains(t, rec.Body.String(), `"paid":true`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ORD-2/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"not_found"`)
}
