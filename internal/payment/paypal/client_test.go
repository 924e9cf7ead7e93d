package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

func newTestServer(t *testing.T, tokenCalls *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
	})

	mux.HandleFunc("/v2/checkout/orders", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		var body struct {
			Intent        string `json:"intent"`
			PurchaseUnits []struct {
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
				Items []struct {
					Quantity string `json:"quantity"`
				} `json:"items"`
			} `json:"purchase_units"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "CAPTURE", body.Intent)
		require.Len(t, body.PurchaseUnits, 1)
		assert.Equal(t, "20.00", body.PurchaseUnits[0].Amount.Value)
		assert.Equal(t, "2", body.PurchaseUnits[0].Items[0].Quantity)

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ORDER-1","status":"CREATED"}`))
	})

	mux.HandleFunc("/v2/checkout/orders/ORDER-1/capture", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"ORDER-1","status":"COMPLETED",
			"payer":{"payer_id":"PAYER-1"},
			"purchase_units":[{"payments":{"captures":[{"id":"CAP-1","status":"COMPLETED"}]}}]
		}`))
	})

	mux.HandleFunc("/v2/checkout/orders/ORDER-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id":"ORDER-1","status":"APPROVED",
			"payer":{"payer_id":"PAYER-1"},
			"purchase_units":[{"amount":{"currency_code":"USD","value":"20.00"}}]
		}`))
	})

	mux.HandleFunc("/v2/checkout/orders/MISSING/capture", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"name":"UNPROCESSABLE_ENTITY","message":"order not approved","debug_id":"dbg-1"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_OrderFlow(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	c := NewClient(Config{BaseURL: srv.URL + "/", ClientID: "client", ClientSecret: "secret"})
	ctx := context.Background()

	id, err := c.CreateRemoteOrder(ctx, []payment.RemoteItem{
		{SKU: "sku-1", Name: "Kettle", Quantity: 2, UnitPrice: decimal.RequireFromString("10")},
	}, decimal.RequireFromString("20"))
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", id)

	capture, err := c.CaptureRemotePayment(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, &payment.Capture{ID: "CAP-1", Status: "COMPLETED", PayerReference: "PAYER-1"}, capture)

	details, err := c.GetRemoteOrderDetails(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "APPROVED", details.Status)
	assert.Equal(t, "PAYER-1", details.PayerReference)
	assert.True(t, decimal.RequireFromString("20").Equal(details.Amount))

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls), "token should be cached")
}

func TestClient_APIError(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	c := NewClient(Config{BaseURL: srv.URL, ClientID: "client", ClientSecret: "secret"})

	_, err := c.CaptureRemotePayment(context.Background(), "MISSING")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "UNPROCESSABLE_ENTITY", apiErr.Name)
	assert.Equal(t, "dbg-1", apiErr.DebugID)
}

func TestClient_BadCredentials(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls)
	c := NewClient(Config{BaseURL: srv.URL, ClientID: "client", ClientSecret: "wrong"})

	_, err := c.GetRemoteOrderDetails(context.Background(), "ORDER-1")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
