package verifypayment

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

// reconciler is the slice of the coordinator this handler needs.
type reconciler interface {
	ConfirmViaRedirect(
		ctx context.Context,
		p principal.Principal,
		orderID uuid.UUID,
		success bool,
	) (*order.Order, error)
}

// verifyPaymentRequest is the buyer's return from the gateway checkout page.
type verifyPaymentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
	Success bool   `json:"success"`
}

func (r *verifyPaymentRequest) Validate() error {
	return validator.New().Struct(r)
}

// VerifyPayment handles the redirect return channel.
func VerifyPayment(w http.ResponseWriter, r *http.Request, recon reconciler) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)

		return
	}

	req := verifyPaymentRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperr.Write(w, apperrors.Validation("malformed request body"))
		slog.Error("Error decoding verify payment request", "error", err)

		return
	}
	if err := req.Validate(); err != nil {
		httperr.Write(w, apperrors.Validation("invalid verify payment request: %s", err.Error()))

		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		httperr.Write(w, apperrors.Validation("malformed order id %q", req.OrderID))

		return
	}

	ord, err := recon.ConfirmViaRedirect(r.Context(), p, orderID, req.Success)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error reconciling redirect return", "order_id", orderID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(ord); err != nil {
		slog.Error("Error sending verify payment response", "error", err)
	}
}
