package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/trendora/order-svc/internal/service/models/apperrors"
)

// SignatureHeader carries the webhook signature on inbound notifications.
const SignatureHeader = "Gateway-Signature"

const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventCheckoutExpired   = "checkout.session.expired"
)

// Event is a decoded asynchronous gateway notification.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID            string            `json:"id"`
			PaymentStatus string            `json:"payment_status"`
			Metadata      map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// ComputeSignature signs a payload the way the gateway does:
// hex(HMAC-SHA256(secret, "<unix timestamp>.<payload>")).
func ComputeSignature(t time.Time, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(t.Unix(), 10)))
	mac.Write([]byte("."))
	mac.Write(payload)

	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyNotification authenticates a raw webhook payload against its
// signature header ("t=<unix>,v1=<hex>") and decodes the event. The payload
// must be the exact byte stream of the request body: any re-encoding breaks
// the signature.
func (c *Client) VerifyNotification(payload []byte, sigHeader string) (*Event, error) {
	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return nil, err
	}

	if d := time.Since(time.Unix(timestamp, 0)); d > c.tolerance || d < -c.tolerance {
		return nil, fmt.Errorf("signature timestamp outside tolerance: %w", apperrors.ErrInvalidSignature)
	}

	expected := ComputeSignature(time.Unix(timestamp, 0), payload, c.webhookSecret)
	valid := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			valid = true
		}
	}
	if !valid {
		return nil, fmt.Errorf("signature mismatch: %w", apperrors.ErrInvalidSignature)
	}

	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("failed to decode event payload: %w", apperrors.ErrInvalidSignature)
	}

	return &event, nil
}

// DecodeConfirmation extracts the order identifier carried in the session
// metadata and the outcome of the checkout.
func (c *Client) DecodeConfirmation(event *Event) (Confirmation, error) {
	orderID := event.Data.Object.Metadata[metadataOrderID]
	if orderID == "" {
		return Confirmation{}, apperrors.Validation("event %s carries no order id", event.ID)
	}

	switch event.Type {
	case eventCheckoutCompleted:
		return Confirmation{OrderID: orderID, Succeeded: true}, nil
	case eventCheckoutExpired:
		return Confirmation{OrderID: orderID, Succeeded: false}, nil
	default:
		return Confirmation{OrderID: orderID, Succeeded: false}, nil
	}
}

func parseSignatureHeader(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header: %w", apperrors.ErrInvalidSignature)
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			t, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("malformed signature timestamp: %w", apperrors.ErrInvalidSignature)
			}
			timestamp = t
		case "v1":
			signatures = append(signatures, value)
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("malformed signature header: %w", apperrors.ErrInvalidSignature)
	}

	return timestamp, signatures, nil
}
