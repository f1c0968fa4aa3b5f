package updatestatus

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/principal"
	"github.com/trendora/order-svc/internal/transport/http/httperr"
)

type service interface {
	UpdateFulfillmentStatus(
		ctx context.Context,
		p principal.Principal,
		orderID uuid.UUID,
		requested order.Status,
	) (*order.Order, error)
}

type updateStatusRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Status  string `json:"status"  validate:"required"`
}

func (r *updateStatusRequest) Validate() error {
	return validator.New().Struct(r)
}

// UpdateStatus handles an operator's fulfillment status change.
func UpdateStatus(w http.ResponseWriter, r *http.Request, service service) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)

		return
	}

	req := updateStatusRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, apperrors.Validation("malformed request body"))
		slog.Error("Error decoding update status request", "error", err)

		return
	}
	if err := req.Validate(); err != nil {
		httperr.Write(w, apperrors.Validation("invalid update status request: %s", err.Error()))

		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		httperr.Write(w, apperrors.Validation("malformed order id %q", req.OrderID))

		return
	}
	requested, err := order.ParseStatus(req.Status)
	if err != nil {
		httperr.Write(w, apperrors.Validation("invalid order status %q", req.Status))

		return
	}

	updated, err := service.UpdateFulfillmentStatus(r.Context(), p, orderID, requested)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error updating order status", "order_id", orderID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(updated); err != nil {
		slog.Error("Error sending update status response", "error", err)
	}
}
