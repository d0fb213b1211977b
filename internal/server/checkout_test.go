package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/kasira/internal/checkout/domain"
	"github.com/smallbiznis/kasira/internal/config"
	inventorydomain "github.com/smallbiznis/kasira/internal/inventory/domain"
	pricingdomain "github.com/smallbiznis/kasira/internal/pricing/domain"
	"github.com/smallbiznis/kasira/internal/tenantctx"
)

type fakeCheckoutService struct {
	lastQuote    checkoutdomain.QuoteRequest
	lastCheckout checkoutdomain.CheckoutRequest
	lastActor    string
	quoteErr     error
	checkoutErr  error
	saleErr      error
}

func (f *fakeCheckoutService) Quote(ctx context.Context, req checkoutdomain.QuoteRequest) (*pricingdomain.Receipt, error) {
	f.lastQuote = req
	_ = ctx
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &pricingdomain.Receipt{}, nil
}

func (f *fakeCheckoutService) Checkout(ctx context.Context, req checkoutdomain.CheckoutRequest) (*checkoutdomain.Sale, error) {
	f.lastCheckout = req
	f.lastActor, _ = tenantctx.ActorFromContext(ctx)
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return &checkoutdomain.Sale{ID: snowflake.ID(1), TenantID: req.TenantID}, nil
}

func (f *fakeCheckoutService) GetSale(ctx context.Context, tenantID, saleID snowflake.ID) (*checkoutdomain.Sale, error) {
	_ = ctx
	if f.saleErr != nil {
		return nil, f.saleErr
	}
	return &checkoutdomain.Sale{ID: saleID, TenantID: tenantID}, nil
}

func newCheckoutRouter(cfg config.Config, svc checkoutdomain.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	srv := &Server{
		cfg:         cfg,
		checkoutSvc: svc,
	}
	router := gin.New()
	router.Use(ErrorHandlingMiddleware())
	v1 := router.Group("/v1")
	v1.Use(srv.TenantContext(), srv.ActorContext())
	v1.POST("/quotes", srv.Quote)
	v1.POST("/checkouts", srv.Checkout)
	v1.GET("/sales/:id", srv.GetSale)
	return router
}

func TestQuoteResolvesTenantFromHeader(t *testing.T) {
	svc := &fakeCheckoutService{}
	router := newCheckoutRouter(config.Config{}, svc)

	body := `{"store_id":"2","lines":[{"variant_id":"3","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/quotes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenant, "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastQuote.TenantID != snowflake.ID(42) {
		t.Fatalf("expected tenant 42, got %d", svc.lastQuote.TenantID)
	}
}

func TestQuoteFallsBackToDefaultTenant(t *testing.T) {
	svc := &fakeCheckoutService{}
	router := newCheckoutRouter(config.Config{DefaultTenantID: 7}, svc)

	body := `{"store_id":"2","lines":[{"variant_id":"3","quantity":1}]}`
	req := httptest.NewRequest(http.MethodPost, "/v1/quotes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastQuote.TenantID != snowflake.ID(7) {
		t.Fatalf("expected tenant 7, got %d", svc.lastQuote.TenantID)
	}
}

func TestQuoteWithoutTenantReturns400(t *testing.T) {
	svc := &fakeCheckoutService{}
	router := newCheckoutRouter(config.Config{}, svc)

	req := httptest.NewRequest(http.MethodPost, "/v1/quotes", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
}

func TestCheckoutInsufficientStockReturns409(t *testing.T) {
	svc := &fakeCheckoutService{
		checkoutErr: &inventorydomain.InsufficientStockError{
			StoreID:   snowflake.ID(2),
			VariantID: snowflake.ID(3),
			Requested: 5,
			Available: 1,
		},
	}
	router := newCheckoutRouter(config.Config{}, svc)

	body := `{"store_id":"2","lines":[{"variant_id":"3","quantity":5}],"payment":{"method":"CASH","tendered":"100"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/checkouts", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenant, "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if payload.Error.Type != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock, got %q", payload.Error.Type)
	}
}

func TestGetSaleNotFoundReturns404(t *testing.T) {
	svc := &fakeCheckoutService{saleErr: checkoutdomain.ErrSaleNotFound}
	router := newCheckoutRouter(config.Config{}, svc)

	req := httptest.NewRequest(http.MethodGet, "/v1/sales/9", nil)
	req.Header.Set(HeaderTenant, "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestCheckoutNormalizesPaymentMethod(t *testing.T) {
	svc := &fakeCheckoutService{}
	router := newCheckoutRouter(config.Config{}, svc)

	body := `{"store_id":"2","lines":[{"variant_id":"3","quantity":1}],"payment":{"method":" cash ","tendered":"20"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/checkouts", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenant, "42")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastCheckout.Payment.Method != checkoutdomain.PaymentCash {
		t.Fatalf("expected CASH, got %q", svc.lastCheckout.Payment.Method)
	}
}

func TestCheckoutCarriesActorFromHeader(t *testing.T) {
	svc := &fakeCheckoutService{}
	router := newCheckoutRouter(config.Config{}, svc)

	body := `{"store_id":"2","lines":[{"variant_id":"3","quantity":1}],"payment":{"method":"cash","tendered":"20"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/checkouts", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderTenant, "42")
	req.Header.Set(HeaderActor, "clerk-7")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", resp.Code, resp.Body.String())
	}
	if svc.lastActor != "clerk-7" {
		t.Fatalf("expected actor clerk-7, got %q", svc.lastActor)
	}
}
