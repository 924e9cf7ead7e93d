// Package paypal is the REST client for the PayPal Orders API.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/ecommerce-microservices/fulfillment-service/internal/payment"
)

const (
	providerName    = "paypal"
	currency        = "USD"
	tokenExpirySkew = 30 * time.Second
)

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	ReturnURL    string
	CancelURL    string
}

// APIError is a non-2xx answer from the PayPal API.
type APIError struct {
	StatusCode int
	Name       string `json:"name"`
	Message    string `json:"message"`
	DebugID    string `json:"debug_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paypal: %d %s: %s (debug_id=%s)", e.StatusCode, e.Name, e.Message, e.DebugID)
}

type Client struct {
	cfg  Config
	http *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
	}
}

func (c *Client) Name() string {
	return providerName
}

type money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type orderItem struct {
	Name       string `json:"name"`
	SKU        string `json:"sku,omitempty"`
	Quantity   string `json:"quantity"`
	UnitAmount money  `json:"unit_amount"`
}

type purchaseUnit struct {
	Amount struct {
		money
		Breakdown *struct {
			ItemTotal money `json:"item_total"`
		} `json:"breakdown,omitempty"`
	} `json:"amount"`
	Items    []orderItem `json:"items,omitempty"`
	Payments *struct {
		Captures []captureResource `json:"captures"`
	} `json:"payments,omitempty"`
}

type captureResource struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type orderResource struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	Payer         *struct {
		PayerID string `json:"payer_id"`
	} `json:"payer,omitempty"`
}

func (c *Client) CreateRemoteOrder(ctx context.Context, items []payment.RemoteItem, total decimal.Decimal) (string, error) {
	unit := purchaseUnit{}
	unit.Amount.money = amount(total)
	unit.Amount.Breakdown = &struct {
		ItemTotal money `json:"item_total"`
	}{ItemTotal: amount(total)}
	for _, item := range items {
		unit.Items = append(unit.Items, orderItem{
			Name:       item.Name,
			SKU:        item.SKU,
			Quantity:   fmt.Sprint(item.Quantity),
			UnitAmount: amount(item.UnitPrice),
		})
	}

	body := map[string]any{
		"intent":         "CAPTURE",
		"purchase_units": []purchaseUnit{unit},
		"application_context": map[string]string{
			"shipping_preference": "NO_SHIPPING",
			"user_action":         "PAY_NOW",
			"return_url":          c.cfg.ReturnURL,
			"cancel_url":          c.cfg.CancelURL,
		},
	}

	var created orderResource
	if err := c.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &created); err != nil {
		return "", err
	}
	log.Debug().Str("provider_order_id", created.ID).Str("status", created.Status).Msg("paypal: order created")
	return created.ID, nil
}

func (c *Client) CaptureRemotePayment(ctx context.Context, providerOrderID string) (*payment.Capture, error) {
	var captured orderResource
	path := "/v2/checkout/orders/" + url.PathEscape(providerOrderID) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &captured); err != nil {
		return nil, err
	}

	res := &payment.Capture{Status: captured.Status}
	if captured.Payer != nil {
		res.PayerReference = captured.Payer.PayerID
	}
	if ids := captureIDs(captured); len(ids) > 0 {
		res.ID = ids[0]
		res.Status = captured.PurchaseUnits[0].Payments.Captures[0].Status
	}
	return res, nil
}

func (c *Client) GetRemoteOrderDetails(ctx context.Context, providerOrderID string) (*payment.RemoteOrder, error) {
	var details orderResource
	if err := c.do(ctx, http.MethodGet, "/v2/checkout/orders/"+url.PathEscape(providerOrderID), nil, &details); err != nil {
		return nil, err
	}

	res := &payment.RemoteOrder{
		ID:         details.ID,
		Status:     details.Status,
		CaptureIDs: captureIDs(details),
	}
	if details.Payer != nil {
		res.PayerReference = details.Payer.PayerID
	}
	if len(details.PurchaseUnits) > 0 {
		if v, err := decimal.NewFromString(details.PurchaseUnits[0].Amount.Value); err == nil {
			res.Amount = v
		}
	}
	return res, nil
}

func captureIDs(o orderResource) []string {
	var ids []string
	for _, unit := range o.PurchaseUnits {
		if unit.Payments == nil {
			continue
		}
		for _, c := range unit.Payments.Captures {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func amount(v decimal.Decimal) money {
	return money{CurrencyCode: currency, Value: v.StringFixed(2)}
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("paypal: failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("paypal: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.send(req, out)
}

// accessToken returns a cached OAuth2 client-credentials token, refreshing it shortly
// before it expires.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("paypal: failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := c.send(req, &tok); err != nil {
		return "", err
	}

	c.token = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew)
	return c.token, nil
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("paypal: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("paypal: failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if apiErr.Name == "" {
			apiErr.Name = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("paypal: failed to decode response: %w", err)
	}
	return nil
}
