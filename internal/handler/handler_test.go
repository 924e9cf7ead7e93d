package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/apperror"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/cart"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/inventory"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/order"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment/paypal"
)

const testSecret = "handler-test-secret"

type MockOrderService struct {
	mock.Mock
}

func (m *MockOrderService) CreateOrder(ctx context.Context, actor order.Actor, shipping *order.Address) (*order.Order, *order.Invoice, error) {
	args := m.Called(ctx, actor, shipping)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*order.Order), args.Get(1).(*order.Invoice), args.Error(2)
}

func (m *MockOrderService) GetOrder(ctx context.Context, actor order.Actor, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, actor, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) GetInvoice(ctx context.Context, actor order.Actor, orderID uuid.UUID) (*order.Invoice, error) {
	args := m.Called(ctx, actor, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Invoice), args.Error(1)
}

func (m *MockOrderService) ListOrders(ctx context.Context, actor order.Actor, f order.Filter) (*order.Page, error) {
	args := m.Called(ctx, actor, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Page), args.Error(1)
}

func (m *MockOrderService) UpdateStatus(ctx context.Context, actor order.Actor, id uuid.UUID, status order.Status, note string) (*order.Order, error) {
	args := m.Called(ctx, actor, id, status, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) CancelOrder(ctx context.Context, actor order.Actor, id uuid.UUID, reason string) (*order.Order, error) {
	args := m.Called(ctx, actor, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) UpdateTracking(ctx context.Context, actor order.Actor, id uuid.UUID, upd order.TrackingUpdate) (*order.Order, error) {
	args := m.Called(ctx, actor, id, upd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderService) Stats(ctx context.Context, actor order.Actor, f order.Filter) (*order.Stats, error) {
	args := m.Called(ctx, actor, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Stats), args.Error(1)
}

func (m *MockOrderService) DeleteOrder(ctx context.Context, actor order.Actor, id uuid.UUID) error {
	return m.Called(ctx, actor, id).Error(0)
}

type MockCartService struct {
	mock.Mock
}

func (m *MockCartService) Lines(ctx context.Context, userID uuid.UUID) ([]cart.Line, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]cart.Line), args.Error(1)
}

func (m *MockCartService) AddItem(ctx context.Context, userID, productID uuid.UUID, qty int) (*cart.Line, error) {
	args := m.Called(ctx, userID, productID, qty)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*cart.Line), args.Error(1)
}

func (m *MockCartService) UpdateQuantity(ctx context.Context, userID, productID uuid.UUID, qty int) error {
	return m.Called(ctx, userID, productID, qty).Error(0)
}

func (m *MockCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	return m.Called(ctx, userID, productID).Error(0)
}

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) HandleEvent(ctx context.Context, ev payment.Event) (*payment.Result, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

func (m *MockPaymentService) VerifyWebhook(headers http.Header, body []byte) bool {
	return m.Called(headers, body).Bool(0)
}

func (m *MockPaymentService) VerifyPayment(ctx context.Context, actor order.Actor, providerOrderID, payerReference string) (*payment.Verification, error) {
	args := m.Called(ctx, actor, providerOrderID, payerReference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Verification), args.Error(1)
}

func (m *MockPaymentService) StartPayment(ctx context.Context, actor order.Actor, orderID uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, actor, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockPaymentService) CapturePayment(ctx context.Context, actor order.Actor, providerOrderID string) (*payment.Result, error) {
	args := m.Called(ctx, actor, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.Result), args.Error(1)
}

func (m *MockPaymentService) RemoteDetails(ctx context.Context, actor order.Actor, providerOrderID string) (*payment.RemoteOrder, error) {
	args := m.Called(ctx, actor, providerOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*payment.RemoteOrder), args.Error(1)
}

type fixture struct {
	orders   *MockOrderService
	carts    *MockCartService
	payments *MockPaymentService
	auth     *handler.Authenticator
	router   http.Handler
}

func newFixture(t *testing.T, limiter *handler.RateLimiter) *fixture {
	t.Helper()
	f := &fixture{
		orders:   new(MockOrderService),
		carts:    new(MockCartService),
		payments: new(MockPaymentService),
		auth:     handler.NewAuthenticator(testSecret),
	}
	f.router = handler.NewRouter(handler.RouterDeps{
		Orders:      f.orders,
		Carts:       f.carts,
		Payments:    f.payments,
		ParseEvent:  paypal.ParseEvent,
		Auth:        f.auth,
		RateLimiter: limiter,
	})
	return f
}

func (f *fixture) do(t *testing.T, actor *order.Actor, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if actor != nil {
		token, err := f.auth.IssueToken(actor.ID, actor.Admin, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) handler.ErrorResponse {
	t.Helper()
	var resp handler.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func customer() *order.Actor {
	return &order.Actor{ID: uuid.Must(uuid.NewV4())}
}

func admin() *order.Actor {
	return &order.Actor{ID: uuid.Must(uuid.NewV4()), Admin: true}
}

func TestAuth_RejectsMissingAndForgedTokens(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(t, nil, http.MethodGet, "/api/v1/orders", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	forged := handler.NewAuthenticator("other-secret")
	token, err := forged.IssueToken(uuid.Must(uuid.NewV4()), true, time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	f.orders.AssertNotCalled(t, "ListOrders", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateOrder_Success(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()
	addr := &order.Address{Line1: "1 Main St", City: "Springfield", Country: "US"}

	created := &order.Order{
		ID:         uuid.Must(uuid.NewV4()),
		UserID:     actor.ID,
		Status:     order.StatusPending,
		TotalPrice: decimal.RequireFromString("49.90"),
	}
	invoice := &order.Invoice{ID: uuid.Must(uuid.NewV4()), OrderID: created.ID, PaymentStatus: order.PaymentUnpaid}

	f.orders.On("CreateOrder", mock.Anything, *actor, addr).Return(created, invoice, nil).Once()

	rr := f.do(t, actor, http.MethodPost, "/api/v1/orders", handler.CreateOrderRequest{ShippingAddress: addr})

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp handler.CreateOrderResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, created.ID, resp.Order.ID)
	assert.Equal(t, order.PaymentUnpaid, resp.Invoice.PaymentStatus)
	f.orders.AssertExpectations(t)
}

func TestCreateOrder_InvalidAddress(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(t, customer(), http.MethodPost, "/api/v1/orders", map[string]any{
		"shipping_address": map[string]string{"line1": "1 Main St", "country": "USA"},
	})

	require.Equal(t, http.StatusBadRequest, rr.Code)
	var resp handler.ValidationErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Details, "city")
	assert.Contains(t, resp.Details, "country")
	f.orders.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestServiceErrors_MapToStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  string
	}{
		{name: "not found", err: order.ErrOrderNotFound, wantCode: http.StatusNotFound, wantErr: "order_not_found"},
		{name: "forbidden", err: order.ErrNotAllowed, wantCode: http.StatusForbidden, wantErr: "admin_required"},
		{name: "conflict", err: order.ErrCannotCancelDelivered, wantCode: http.StatusConflict, wantErr: "cannot_cancel_delivered"},
		{name: "transition", err: &order.TransitionError{From: order.StatusDelivered, To: order.StatusCancelled}, wantCode: http.StatusConflict, wantErr: "conflict"},
		{name: "stock", err: &inventory.StockError{Requested: 3, Available: 1}, wantCode: http.StatusConflict, wantErr: "conflict"},
		{name: "validation", err: order.ErrEmptyCart, wantCode: http.StatusBadRequest, wantErr: "empty_cart"},
		{name: "internal", err: apperror.Internal(errors.New("connection reset"), "service: failed"), wantCode: http.StatusInternalServerError, wantErr: "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			actor := customer()
			id := uuid.Must(uuid.NewV4())
			f.orders.On("CancelOrder", mock.Anything, *actor, id, "changed my mind").Return(nil, tt.err).Once()

			rr := f.do(t, actor, http.MethodPost, "/api/v1/orders/"+id.String()+"/cancel", handler.CancelOrderRequest{Reason: "changed my mind"})

			assert.Equal(t, tt.wantCode, rr.Code)
			resp := decodeError(t, rr)
			assert.Equal(t, tt.wantErr, resp.Code)
			if tt.wantCode == http.StatusInternalServerError {
				assert.NotContains(t, resp.Error, "connection reset")
			}
		})
	}
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t, nil)
	actor := admin()
	id := uuid.Must(uuid.NewV4())

	rr := f.do(t, actor, http.MethodPatch, "/api/v1/orders/"+id.String()+"/status", handler.UpdateStatusRequest{Status: "lost"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "unknown_status", decodeError(t, rr).Code)

	updated := &order.Order{ID: id, Status: order.StatusShipped}
	f.orders.On("UpdateStatus", mock.Anything, *actor, id, order.StatusShipped, "left warehouse").Return(updated, nil).Once()

	rr = f.do(t, actor, http.MethodPatch, "/api/v1/orders/"+id.String()+"/status", handler.UpdateStatusRequest{Status: "shipped", Note: "left warehouse"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got order.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, order.StatusShipped, got.Status)
	f.orders.AssertExpectations(t)
}

func TestGetOrder_InvalidID(t *testing.T) {
	f := newFixture(t, nil)

	rr := f.do(t, customer(), http.MethodGet, "/api/v1/orders/not-a-uuid", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	f.orders.AssertNotCalled(t, "GetOrder", mock.Anything, mock.Anything, mock.Anything)
}

func TestListOrders_ParsesQuery(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()

	from := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 31, 23, 59, 59, 999999999, time.UTC)
	want := order.Filter{
		Status:   order.StatusShipped,
		From:     &from,
		To:       &to,
		Tracking: "trk",
		Sort:     order.Sort{Field: order.SortTotalPrice, Desc: true},
		Page:     2,
		PageSize: 5,
	}

	var got order.Filter
	f.orders.On("ListOrders", mock.Anything, *actor, mock.AnythingOfType("order.Filter")).
		Run(func(args mock.Arguments) { got = args.Get(2).(order.Filter) }).
		Return(&order.Page{Orders: []order.Order{}, Page: 2, PageSize: 5}, nil).Once()

	rr := f.do(t, actor, http.MethodGet, "/api/v1/orders?status=shipped&from=2025-03-01&to=2025-03-31&tracking=trk&sort=-totalPrice&page=2&page_size=5", nil)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
}

func TestListOrders_BadQuery(t *testing.T) {
	tests := []string{
		"/api/v1/orders?status=lost",
		"/api/v1/orders?sort=price",
		"/api/v1/orders?page=0",
		"/api/v1/orders?from=yesterday",
		"/api/v1/orders?user_id=42",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			f := newFixture(t, nil)
			rr := f.do(t, customer(), http.MethodGet, path, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
		})
	}
}

func TestUpdateTracking_PassesOnlyProvidedFields(t *testing.T) {
	f := newFixture(t, nil)
	actor := admin()
	id := uuid.Must(uuid.NewV4())
	tracking := "1Z999"

	f.orders.On("UpdateTracking", mock.Anything, *actor, id, order.TrackingUpdate{TrackingNumber: &tracking}).
		Return(&order.Order{ID: id, Status: order.StatusShipped, TrackingNumber: tracking}, nil).Once()

	rr := f.do(t, actor, http.MethodPatch, "/api/v1/orders/"+id.String()+"/tracking", map[string]string{"tracking_number": tracking})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	f.orders.AssertExpectations(t)
}

func TestDeleteOrder(t *testing.T) {
	f := newFixture(t, nil)
	actor := admin()
	id := uuid.Must(uuid.NewV4())
	f.orders.On("DeleteOrder", mock.Anything, *actor, id).Return(nil).Once()

	rr := f.do(t, actor, http.MethodDelete, "/api/v1/orders/"+id.String(), nil)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	f.orders.AssertExpectations(t)
}

func TestCart_AddItem(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()
	productID := uuid.Must(uuid.NewV4())

	rr := f.do(t, actor, http.MethodPost, "/api/v1/cart/items", handler.AddCartItemRequest{ProductID: productID, Quantity: 0})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	line := &cart.Line{UserID: actor.ID, ProductID: productID, Quantity: 3}
	f.carts.On("AddItem", mock.Anything, actor.ID, productID, 2).Return(line, nil).Once()

	rr = f.do(t, actor, http.MethodPost, "/api/v1/cart/items", handler.AddCartItemRequest{ProductID: productID, Quantity: 2})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var got cart.Line
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, 3, got.Quantity)
	f.carts.AssertExpectations(t)
}

func TestCart_RemoveMissingLine(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()
	productID := uuid.Must(uuid.NewV4())
	f.carts.On("RemoveItem", mock.Anything, actor.ID, productID).Return(cart.ErrLineNotFound).Once()

	rr := f.do(t, actor, http.MethodDelete, "/api/v1/cart/items/"+productID.String(), nil)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStartPayment_UpstreamFailure(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()
	id := uuid.Must(uuid.NewV4())
	f.payments.On("StartPayment", mock.Anything, *actor, id).
		Return(nil, apperror.Upstream(errors.New("503 from provider"), "payment: provider unavailable")).Once()

	rr := f.do(t, actor, http.MethodPost, "/api/v1/orders/"+id.String()+"/payment", nil)

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "payment: provider unavailable", decodeError(t, rr).Error)
}

func TestCapturePayment(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()
	orderID := uuid.Must(uuid.NewV4())
	f.payments.On("CapturePayment", mock.Anything, *actor, "PP-ORDER-1").
		Return(&payment.Result{Outcome: payment.OutcomeApplied, OrderID: orderID, Applied: true, Status: order.StatusProcessing}, nil).Once()

	rr := f.do(t, actor, http.MethodPost, "/api/v1/payments/capture", handler.CaptureRequest{ProviderOrderID: "PP-ORDER-1"})

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var res payment.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, order.StatusProcessing, res.Status)
	assert.True(t, res.Applied)
}

func TestVerifyPayment(t *testing.T) {
	f := newFixture(t, nil)
	actor := customer()
	f.payments.On("VerifyPayment", mock.Anything, *actor, "PP-ORDER-1", "PAYER-9").
		Return(&payment.Verification{Verified: true, Status: "COMPLETED"}, nil).Once()

	rr := f.do(t, actor, http.MethodGet, "/api/v1/payments/PP-ORDER-1/verify?payer_id=PAYER-9", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var v payment.Verification
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v))
	assert.True(t, v.Verified)
}

const captureCompletedBody = `{
	"id": "WH-100",
	"event_type": "PAYMENT.CAPTURE.COMPLETED",
	"create_time": "2025-06-01T12:00:00Z",
	"resource": {
		"id": "CAP-100",
		"status": "COMPLETED",
		"supplementary_data": {"related_ids": {"order_id": "PP-ORDER-100"}}
	}
}`

func postWebhook(f *fixture, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", bytes.NewBufferString(body))
	req.RemoteAddr = "203.0.113.7:4711"
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestWebhook(t *testing.T) {
	t.Run("invalid signature", func(t *testing.T) {
		f := newFixture(t, nil)
		f.payments.On("VerifyWebhook", mock.Anything, []byte(captureCompletedBody)).Return(false).Once()

		rr := postWebhook(f, captureCompletedBody)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		f.payments.AssertNotCalled(t, "HandleEvent", mock.Anything, mock.Anything)
	})

	t.Run("malformed body", func(t *testing.T) {
		f := newFixture(t, nil)
		f.payments.On("VerifyWebhook", mock.Anything, mock.Anything).Return(true).Once()

		rr := postWebhook(f, `{"resource":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("reconciled", func(t *testing.T) {
		f := newFixture(t, nil)
		orderID := uuid.Must(uuid.NewV4())
		f.payments.On("VerifyWebhook", mock.Anything, mock.Anything).Return(true).Once()
		f.payments.On("HandleEvent", mock.Anything, mock.MatchedBy(func(ev payment.Event) bool {
			return ev.ID == "WH-100" &&
				ev.Kind == payment.EventCaptureCompleted &&
				ev.TransactionID == "CAP-100" &&
				ev.OrderReference == "PP-ORDER-100"
		})).Return(&payment.Result{Outcome: payment.OutcomeApplied, OrderID: orderID, Applied: true}, nil).Once()

		rr := postWebhook(f, captureCompletedBody)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var res payment.Result
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
		assert.Equal(t, payment.OutcomeApplied, res.Outcome)
		assert.Equal(t, orderID, res.OrderID)
		f.payments.AssertExpectations(t)
	})
}

func TestRateLimiter_RejectsBurstOverflow(t *testing.T) {
	f := newFixture(t, handler.NewRateLimiter(0.001, 1))
	f.payments.On("VerifyWebhook", mock.Anything, mock.Anything).Return(false)

	first := postWebhook(f, captureCompletedBody)
	second := postWebhook(f, captureCompletedBody)

	assert.Equal(t, http.StatusUnauthorized, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}
