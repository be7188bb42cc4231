package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/storelane/storelane-backend/pkg/config"
	pkgerrors "github.com/storelane/storelane-backend/pkg/errors"
	"github.com/storelane/storelane-backend/pkg/logger"
)

const (
	tokenPath   = "/oauth2/token"
	ordersPath  = "/v1/orders"
	chargesPath = "/v1/charges"

	statusCompleted = "completed"
	statusRejected  = "rejected"

	// resultCodeSuccess is the provider code that must accompany a
	// completed status; completed alone is not proof of payment.
	resultCodeSuccess = "000"
)

var (
	errBaseURLRequired     = errors.New("gateway base url is required")
	errCredentialsRequired = errors.New("gateway client id and secret are required")
	errLoggerRequired      = errors.New("gateway logger is required")
)

// Client talks to the hosted payment provider: OAuth token exchange, order
// creation, receipt polling, refunds, and stored-method charges.
type Client struct {
	httpClient *http.Client
	cfg        config.GatewayConfig
	tokens     *TokenCache
	logger     *logger.Logger
	baseURL    string
}

// NewClient validates the credentials and builds the provider wrapper.
func NewClient(cfg config.GatewayConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errBaseURLRequired
	}
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errCredentialsRequired
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		cfg:        cfg,
		tokens:     NewTokenCache(cfg.TokenExpiryMargin),
		logger:     logg,
		baseURL:    base,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// getAccessToken returns the cached bearer token, refreshing via the
// client-credentials grant when the cached one is absent or near expiry.
// Concurrent callers may refresh redundantly; the cache is last-writer-wins.
func (c *Client) getAccessToken(ctx context.Context) (string, error) {
	if token := c.tokens.Get(); token != "" {
		return token, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, err, "token exchange failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, err, "reading token response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.upstreamError("token exchange", resp.StatusCode, body)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decoding token response")
	}
	if tr.AccessToken == "" {
		return "", pkgerrors.New(pkgerrors.CodeGateway, "token response missing access_token")
	}

	c.tokens.Put(tr.AccessToken, time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second))
	c.logger.Info(c.logger.WithField(ctx, "expires_in", tr.ExpiresIn), "gateway token refreshed")
	return tr.AccessToken, nil
}

type gatewayOrderRequest struct {
	ReferenceID string             `json:"referenceId"`
	OrderNumber string             `json:"orderNumber"`
	Amount      string             `json:"amount"`
	Currency    string             `json:"currency"`
	Buyer       gatewayBuyer       `json:"buyer"`
	Items       []gatewayOrderItem `json:"items"`
	SuccessURL  string             `json:"successUrl"`
	FailURL     string             `json:"failUrl"`
}

type gatewayBuyer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

type gatewayOrderItem struct {
	Title     string `json:"title"`
	Qty       int    `json:"qty"`
	UnitPrice string `json:"unitPrice"`
}

// CreateOrder opens a hosted-payment order and returns the provider's order
// id plus the URL the buyer must be redirected to. Buyer PII is masked on
// the wire; only the last fragments survive for provider-side risk checks.
func (c *Client) CreateOrder(ctx context.Context, params OrderParams) (*CreatedOrder, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	payload := gatewayOrderRequest{
		ReferenceID: params.OrderID,
		OrderNumber: params.OrderNumber,
		Amount:      formatCents(params.AmountCents),
		Currency:    currency,
		Buyer: gatewayBuyer{
			Name:  maskName(params.BuyerName),
			Email: maskEmail(params.BuyerEmail),
			Phone: maskPhone(params.BuyerPhone),
		},
		SuccessURL: c.cfg.SuccessPath,
		FailURL:    c.cfg.FailPath,
	}
	for _, item := range params.Items {
		payload.Items = append(payload.Items, gatewayOrderItem{
			Title:     item.Title,
			Qty:       item.Qty,
			UnitPrice: formatCents(item.UnitPriceCents),
		})
	}

	idempotencyKey := params.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = "order-" + params.OrderID
	}

	var created CreatedOrder
	if err := c.postJSON(ctx, ordersPath, token, idempotencyKey, payload, &created, "create order"); err != nil {
		return nil, err
	}
	if created.GatewayOrderID == "" || created.RedirectURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "create order response missing order id or redirect url")
	}

	ctx = c.logger.WithFields(ctx, map[string]any{
		"gateway_order_id": created.GatewayOrderID,
		"reference_id":     params.OrderID,
	})
	c.logger.Info(ctx, "gateway order created")
	return &created, nil
}

// GetPaymentDetails fetches the receipt for a gateway order. Returns nil
// without error when the provider has no record of the order.
func (c *Client) GetPaymentDetails(ctx context.Context, gatewayOrderID string) (*PaymentDetails, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, ordersPath, url.PathEscape(gatewayOrderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "building payment details request")
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "payment details request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "reading payment details response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.upstreamError("payment details", resp.StatusCode, body)
	}

	var details PaymentDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decoding payment details response")
	}
	return &details, nil
}

type refundRequest struct {
	Amount string `json:"amount,omitempty"`
}

// Refund reverses a captured payment. A nil amount requests a full refund.
func (c *Client) Refund(ctx context.Context, gatewayOrderID string, amountCents *int64) (*RefundReceipt, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	var payload refundRequest
	if amountCents != nil {
		payload.Amount = formatCents(*amountCents)
	}

	path := fmt.Sprintf("%s/%s/refunds", ordersPath, url.PathEscape(gatewayOrderID))
	var receipt RefundReceipt
	if err := c.postJSON(ctx, path, token, "refund-"+gatewayOrderID, payload, &receipt, "refund"); err != nil {
		return nil, err
	}
	return &receipt, nil
}

type chargeRequest struct {
	ReferenceID    string `json:"referenceId"`
	StoredTokenRef string `json:"storedTokenRef"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	Description    string `json:"description,omitempty"`
}

// ChargeStored performs a merchant-initiated charge against a stored payment
// method, used for recurring billing where no buyer redirect happens.
func (c *Client) ChargeStored(ctx context.Context, params ChargeParams) (*ChargeResult, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}

	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	payload := chargeRequest{
		ReferenceID:    params.ReferenceID,
		StoredTokenRef: params.StoredTokenRef,
		Amount:         formatCents(params.AmountCents),
		Currency:       currency,
		Description:    params.Description,
	}

	var result ChargeResult
	if err := c.postJSON(ctx, chargesPath, token, "charge-"+params.ReferenceID, payload, &result, "charge"); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) postJSON(ctx context.Context, path, token, idempotencyKey string, payload, out any, op string) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("encoding %s request", op))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, fmt.Sprintf("building %s request", op))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("%s request failed", op))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("reading %s response", op))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.upstreamError(op, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, fmt.Sprintf("decoding %s response", op))
	}
	return nil
}

// UpstreamDetails carries the provider's raw response for diagnostics. A 5xx
// upstream status is retryable; a 4xx is not.
type UpstreamDetails struct {
	Status    int    `json:"status"`
	Body      string `json:"body"`
	Retryable bool   `json:"retryable"`
}

func (c *Client) upstreamError(op string, status int, body []byte) error {
	snippet := string(body)
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	return pkgerrors.New(pkgerrors.CodeGateway, fmt.Sprintf("gateway %s returned %d", op, status)).
		WithDetails(UpstreamDetails{
			Status:    status,
			Body:      snippet,
			Retryable: status >= 500,
		})
}

func formatCents(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

func maskName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	runes := []rune(name)
	if len(runes) <= 2 {
		return string(runes[0]) + "*"
	}
	return string(runes[0]) + strings.Repeat("*", len(runes)-2) + string(runes[len(runes)-1])
}

func maskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 1 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

func maskPhone(phone string) string {
	digits := strings.TrimSpace(phone)
	if len(digits) <= 4 {
		return digits
	}
	return strings.Repeat("*", len(digits)-4) + digits[len(digits)-4:]
}
