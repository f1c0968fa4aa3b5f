package cancelorder

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/principal"
	"github.com/trendora/order-svc/internal/transport/http/httperr"
)

type service interface {
	CancelOrder(ctx context.Context, p principal.Principal, orderID uuid.UUID) (*order.Order, error)
}

// CancelOrder handles an explicit cancellation by the owner or an operator.
func CancelOrder(w http.ResponseWriter, r *http.Request, service service) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)

		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		httperr.Write(w, apperrors.Validation("malformed order id"))

		return
	}

	cancelled, err := service.CancelOrder(r.Context(), p, orderID)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error cancelling order", "order_id", orderID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(cancelled); err != nil {
		slog.Error("Error sending cancel order response", "error", err)
	}
}
