package icartrepo

import (
	"context"

	"github.com/trendora/order-svc/internal/service/models/cart"
)

// Repository is the cart snapshot storage contract.
type Repository interface {
	Get(ctx context.Context, ownerID string) (cart.Snapshot, error)

	// Clear wipes the owner's cart. Invoked exactly once per confirmed order,
	// inside the confirming transaction.
	Clear(ctx context.Context, ownerID string) error
}
