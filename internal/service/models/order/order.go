package order

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trendora/order-svc/internal/service/models/currency"
)

// PaymentMethod selects how an order is paid for.
type PaymentMethod string

const (
	// PaymentMethodCOD is cash on delivery: the order is created with the
	// payment already considered confirmed.
	PaymentMethodCOD PaymentMethod = "cod"
	// PaymentMethodGateway routes the buyer through a hosted checkout session.
	PaymentMethodGateway PaymentMethod = "gateway"
)

var ErrInvalidPaymentMethod = errors.New("invalid payment method")

func (m PaymentMethod) String() string {
	return string(m)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch s {
	case PaymentMethodCOD.String():
		return PaymentMethodCOD, nil
	case PaymentMethodGateway.String():
		return PaymentMethodGateway, nil
	default:
		return "", ErrInvalidPaymentMethod
	}
}

// Channels that may perform the confirming payment transition. Recorded on the
// order for auditing only; behavior never branches on the winning channel.
const (
	ResolvedByRedirect     = "redirect"
	ResolvedByNotification = "notification"
)

// LineItem is a single purchased position. Line items are fixed at creation
// and never mutated afterwards.
type LineItem struct {
	ProductID      string `json:"productId"`
	ProductTitle   string `json:"productTitle"`
	Size           string `json:"size,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

// Order represents an order in the system.
type Order struct {
	ID                uuid.UUID         `json:"id"`
	OwnerID           string            `json:"ownerId"`
	LineItems         []LineItem        `json:"lineItems"`
	ShippingAddress   json.RawMessage   `json:"shippingAddress"`
	TotalPriceCents   int64             `json:"totalPriceCents"`
	Currency          currency.Currency `json:"currency"`
	PaymentMethod     PaymentMethod     `json:"paymentMethod"`
	PaymentConfirmed  bool              `json:"paymentConfirmed"`
	Status            Status            `json:"status"`
	GatewaySessionRef *string           `json:"gatewaySessionRef,omitempty"`
	ResolvedBy        *string           `json:"resolvedBy,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// ItemsTotalCents sums the line items in minor units.
func (o *Order) ItemsTotalCents() int64 {
	var total int64
	for _, item := range o.LineItems {
		total += item.UnitPriceCents * int64(item.Quantity)
	}

	return total
}
