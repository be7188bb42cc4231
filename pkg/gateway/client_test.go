package gateway

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storelane/storelane-backend/pkg/config"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "gateway-test", Level: zerolog.Disabled, Output: io.Discard})
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(config.GatewayConfig{
		BaseURL:           srv.URL,
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		HTTPTimeout:       5 * time.Second,
		TokenExpiryMargin: time.Minute,
		SuccessPath:       "/checkout/success",
		FailPath:          "/checkout/fail",
	}, testLogger())
	require.NoError(t, err)
	return client, srv
}

func serveToken(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	user, pass, ok := r.BasicAuth()
	require.True(t, ok)
	require.Equal(t, "client-id", user)
	require.Equal(t, "client-secret", pass)
	_ = json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok-abc", TokenType: "Bearer", ExpiresIn: 3600})
}

func TestClient_TokenFetchedOnceWhileFresh(t *testing.T) {
	var tokenCalls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) {
		tokenCalls.Add(1)
		serveToken(t, w, r)
	})
	mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(CreatedOrder{GatewayOrderID: "gw-1", RedirectURL: "https://pay.example/gw-1"})
	})
	client, _ := newTestClient(t, mux)

	ctx := t.Context()
	for i := 0; i < 3; i++ {
		_, err := client.CreateOrder(ctx, OrderParams{OrderID: "ord-1", OrderNumber: "SL-1", AmountCents: 1999})
		require.NoError(t, err)
	}
	assert.Equal(t, int64(1), tokenCalls.Load())
}

func TestClient_CreateOrderMasksBuyerAndFormatsAmounts(t *testing.T) {
	var captured gatewayOrderRequest
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) { serveToken(t, w, r) })
	mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "order-ord-1", r.Header.Get("Idempotency-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(CreatedOrder{GatewayOrderID: "gw-1", RedirectURL: "https://pay.example/gw-1"})
	})
	client, _ := newTestClient(t, mux)

	created, err := client.CreateOrder(t.Context(), OrderParams{
		OrderID:     "ord-1",
		OrderNumber: "SL-20260901-1234",
		AmountCents: 12345,
		BuyerName:   "Jordan Reyes",
		BuyerEmail:  "jordan@example.com",
		BuyerPhone:  "+15551230099",
		Items: []OrderItemParams{
			{Title: "Tea Sampler", Qty: 2, UnitPriceCents: 6150},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "gw-1", created.GatewayOrderID)

	assert.Equal(t, "123.45", captured.Amount)
	assert.Equal(t, "USD", captured.Currency)
	assert.Equal(t, "j***@example.com", captured.Buyer.Email)
	assert.NotContains(t, captured.Buyer.Name, "ordan")
	assert.Equal(t, "********0099", captured.Buyer.Phone)
	require.Len(t, captured.Items, 1)
	assert.Equal(t, "61.50", captured.Items[0].UnitPrice)
}

func TestClient_CreateOrderUpstreamFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) { serveToken(t, w, r) })
	mux.HandleFunc(ordersPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"maintenance"}`))
	})
	client, _ := newTestClient(t, mux)

	_, err := client.CreateOrder(t.Context(), OrderParams{OrderID: "ord-1", AmountCents: 100})
	require.Error(t, err)

	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	details, ok := typed.Details().(UpstreamDetails)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, details.Status)
	assert.True(t, details.Retryable)
	assert.Contains(t, details.Body, "maintenance")
}

func TestClient_GetPaymentDetailsNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) { serveToken(t, w, r) })
	mux.HandleFunc(ordersPath+"/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	client, _ := newTestClient(t, mux)

	details, err := client.GetPaymentDetails(t.Context(), "gw-missing")
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestClient_GetPaymentDetails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) { serveToken(t, w, r) })
	mux.HandleFunc(ordersPath+"/gw-1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(PaymentDetails{
			GatewayOrderID: "gw-1",
			Status:         "COMPLETED",
			ResultCode:     "000",
			Amount:         "123.45",
			Currency:       "USD",
		})
	})
	client, _ := newTestClient(t, mux)

	details, err := client.GetPaymentDetails(t.Context(), "gw-1")
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.True(t, DetailsSuccessful(details))
}

func TestClient_Refund(t *testing.T) {
	var captured refundRequest
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) { serveToken(t, w, r) })
	mux.HandleFunc(ordersPath+"/gw-1/refunds", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(RefundReceipt{RefundID: "rf-1", Status: "completed", Amount: "10.00"})
	})
	client, _ := newTestClient(t, mux)

	amount := int64(1000)
	receipt, err := client.Refund(t.Context(), "gw-1", &amount)
	require.NoError(t, err)
	assert.Equal(t, "rf-1", receipt.RefundID)
	assert.Equal(t, "10.00", captured.Amount)
}

func TestClient_ChargeStored(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(tokenPath, func(w http.ResponseWriter, r *http.Request) { serveToken(t, w, r) })
	mux.HandleFunc(chargesPath, func(w http.ResponseWriter, r *http.Request) {
		var captured chargeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		require.Equal(t, "29.00", captured.Amount)
		_ = json.NewEncoder(w).Encode(ChargeResult{TransactionID: "tx-9", Status: "completed", ResultCode: "000"})
	})
	client, _ := newTestClient(t, mux)

	result, err := client.ChargeStored(t.Context(), ChargeParams{
		ReferenceID:    "pay-1",
		StoredTokenRef: "vault-token",
		AmountCents:    2900,
	})
	require.NoError(t, err)
	assert.Equal(t, "tx-9", result.TransactionID)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.GatewayConfig{ClientID: "x", ClientSecret: "y"}, testLogger())
	require.ErrorIs(t, err, errBaseURLRequired)

	_, err = NewClient(config.GatewayConfig{BaseURL: "https://gw.example"}, testLogger())
	require.ErrorIs(t, err, errCredentialsRequired)

	_, err = NewClient(config.GatewayConfig{BaseURL: "https://gw.example", ClientID: "x", ClientSecret: "y"}, nil)
	require.ErrorIs(t, err, errLoggerRequired)
}
