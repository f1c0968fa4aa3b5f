package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/streadway/amqp"
	"github.com/trendora/order-svc/internal/dal/rabbitmq"
	"github.com/trendora/order-svc/internal/service/models/order"
	"golang.org/x/sync/errgroup"
)

// AuditRabbitMQRepository publishes order-created audit events. Publication is
// best effort and runs on its own timeout so a slow broker never blocks the
// order path.
type AuditRabbitMQRepository struct {
	client *rabbitmq.Client
	queue  amqp.Queue
}

func NewAuditRabbitMQRepository(client *rabbitmq.Client) *AuditRabbitMQRepository {
	queue, err := client.DeclareQueue(rabbitmq.DeclareQueueConfig{
		Name:       "oms.order.created",
		Durable:    false,
		Exclusive:  false,
		AutoDelete: false,
	})
	if err != nil {
		panic(err)
	}

	return &AuditRabbitMQRepository{
		client: client,
		queue:  queue,
	}
}

func (r *AuditRabbitMQRepository) LogOrderCreated(ctx context.Context, orders ...order.Order) error {
	auditCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g, _ := errgroup.WithContext(auditCtx)
	g.SetLimit(3)

	for _, ord := range orders {
		ord := ord
		g.Go(func() error {
			orderData, err := json.Marshal(ord)
			if err != nil {
				return err
			}

			return r.client.Publish(
				"",
				r.queue.Name,
				amqp.Publishing{
					ContentType: "application/json",
					Body:        orderData,
				},
			)
		})
	}

	return g.Wait()
}
