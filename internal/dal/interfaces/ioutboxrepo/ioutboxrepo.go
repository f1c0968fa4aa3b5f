package ioutboxrepo

import (
	"context"
	"time"

	"github.com/trendora/order-svc/internal/service/models/outbox"
)

// Repository defines the interface for outbox operations.
type Repository interface {
	// Insert adds a new message to the outbox
	Insert(ctx context.Context, msg outbox.Message) error

	// GetPendingMessages retrieves messages that are ready for publication
	GetPendingMessages(ctx context.Context, limit int) ([]outbox.Message, error)

	// Delete removes a message from the outbox after successful delivery
	Delete(ctx context.Context, id int64) error

	// UpdateRetry updates retry count and error information
	UpdateRetry(
		ctx context.Context,
		id int64,
		retryCount int,
		lastError string,
		nextRetryAt time.Time,
	) error
}
