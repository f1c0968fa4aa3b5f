// Package gateway encapsulates the hosted-checkout payment gateway: session
// creation, webhook authenticity verification, and event decoding. Every
// gateway-specific wire field stays inside this package; the rest of the
// system only sees Session and Confirmation.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/order"
)

const (
	deliveryLineTitle = "Delivery Charges"
	metadataOrderID   = "orderId"
)

// Session is a reference to an open checkout session on the gateway side.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Confirmation is the narrow typed shape handed to the reconciler.
type Confirmation struct {
	OrderID   string
	Succeeded bool
}

// Client talks to the payment gateway.
type Client struct {
	httpClient       *http.Client
	baseURL          string
	secretKey        string
	webhookSecret    string
	deliveryFeeCents int64
	tolerance        time.Duration
}

// option is a function that configures the Client.
type option func(*Client)

// MustNewClient creates a gateway client from config and environment.
func MustNewClient(opts ...option) *Client {
	timeoutSeconds := viper.GetInt("gateway.timeout_seconds")
	if timeoutSeconds == 0 {
		timeoutSeconds = 10
	}
	toleranceSeconds := viper.GetInt("gateway.webhook_tolerance_seconds")
	if toleranceSeconds == 0 {
		toleranceSeconds = 300
	}

	c := &Client{
		httpClient:       &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		baseURL:          viper.GetString("gateway.base_url"),
		secretKey:        os.Getenv("GATEWAY_SECRET_KEY"),
		webhookSecret:    os.Getenv("GATEWAY_WEBHOOK_SECRET"),
		deliveryFeeCents: viper.GetInt64("gateway.delivery_fee_cents"),
		tolerance:        time.Duration(toleranceSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.baseURL == "" {
		panic("gateway.base_url is not set in config")
	}
	if c.webhookSecret == "" {
		panic("GATEWAY_WEBHOOK_SECRET is not set")
	}

	return c
}

// WithBaseURL sets the gateway API base URL.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithBaseURL(baseURL string) option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithSecretKey sets the API secret key.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSecretKey(key string) option {
	return func(c *Client) {
		c.secretKey = key
	}
}

// WithWebhookSecret sets the webhook signing secret.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithWebhookSecret(secret string) option {
	return func(c *Client) {
		c.webhookSecret = secret
	}
}

// WithHTTPClient replaces the underlying HTTP client.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithHTTPClient(client *http.Client) option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithDeliveryFee sets the fixed delivery surcharge in minor units.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithDeliveryFee(cents int64) option {
	return func(c *Client) {
		c.deliveryFeeCents = cents
	}
}

// DeliveryFeeCents returns the fixed delivery surcharge in minor units.
func (c *Client) DeliveryFeeCents() int64 {
	return c.deliveryFeeCents
}

type sessionLineItem struct {
	Name       string `json:"name"`
	Currency   string `json:"currency"`
	UnitAmount int64  `json:"unit_amount"`
	Quantity   int    `json:"quantity"`
}

type sessionRequest struct {
	Mode       string            `json:"mode"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	LineItems  []sessionLineItem `json:"line_items"`
	Metadata   map[string]string `json:"metadata"`
}

// OpenCheckoutSession creates a hosted checkout session for the order. The
// session carries the order identifier as opaque metadata so both return
// channels can find their way back. A gateway failure leaves the already
// created order pending; nothing is rolled back here.
func (c *Client) OpenCheckoutSession(ctx context.Context, ord order.Order, origin string) (*Session, error) {
	lineItems := make([]sessionLineItem, 0, len(ord.LineItems)+1)
	for _, item := range ord.LineItems {
		lineItems = append(lineItems, sessionLineItem{
			Name:       item.ProductTitle,
			Currency:   ord.Currency.String(),
			UnitAmount: item.UnitPriceCents,
			Quantity:   item.Quantity,
		})
	}
	lineItems = append(lineItems, sessionLineItem{
		Name:       deliveryLineTitle,
		Currency:   ord.Currency.String(),
		UnitAmount: c.deliveryFeeCents,
		Quantity:   1,
	})

	reqBody := sessionRequest{
		Mode:       "payment",
		SuccessURL: fmt.Sprintf("%s/verify?success=true&orderId=%s", origin, ord.ID),
		CancelURL:  fmt.Sprintf("%s/verify?success=false&orderId=%s", origin, ord.ID),
		LineItems:  lineItems,
		Metadata:   map[string]string{metadataOrderID: ord.ID.String()},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/checkout/sessions",
		bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build session request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkout session call failed: %w: %w", apperrors.ErrGateway, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("checkout session rejected with status %d: %w", resp.StatusCode, apperrors.ErrGateway)
	}

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to decode session response: %w: %w", apperrors.ErrGateway, err)
	}
	if session.URL == "" {
		return nil, fmt.Errorf("checkout session has no redirect url: %w", apperrors.ErrGateway)
	}

	return &session, nil
}
