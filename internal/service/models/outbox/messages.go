package outbox

import (
	"encoding/json"
	"time"

	"github.com/trendora/order-svc/internal/service/models/order"
)

const (
	QueuePaymentConfirmed = "oms.order.payment.confirmed"
	QueueStatusChanged    = "oms.order.status.changed"

	defaultMaxRetries = 5
)

// NewPaymentConfirmedMessage announces that an order's payment was confirmed.
func NewPaymentConfirmedMessage(ord order.Order) (Message, error) {
	return newMessage(QueuePaymentConfirmed, ord)
}

// NewStatusChangedMessage announces a fulfillment status change.
func NewStatusChangedMessage(ord order.Order) (Message, error) {
	return newMessage(QueueStatusChanged, struct {
		OrderID string `json:"orderId"`
		Status  string `json:"status"`
	}{
		OrderID: ord.ID.String(),
		Status:  ord.Status.String(),
	})
}

func newMessage(queue string, payload any) (Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	now := time.Now()

	return Message{
		QueueName:   queue,
		RoutingKey:  queue,
		Payload:     body,
		ContentType: "application/json",
		MaxRetries:  defaultMaxRetries,
		CreatedAt:   now,
		UpdatedAt:   now,
		NextRetryAt: now,
	}, nil
}
