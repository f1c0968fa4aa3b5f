package gatewaywebhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/trendora/order-svc/internal/gateway"
	"github.com/trendora/order-svc/internal/transport/http/httperr"
)

// adapter verifies and decodes inbound gateway notifications.
type adapter interface {
	VerifyNotification(payload []byte, sigHeader string) (*gateway.Event, error)
	DecodeConfirmation(event *gateway.Event) (gateway.Confirmation, error)
}

// reconciler is the slice of the coordinator this handler needs.
type reconciler interface {
	ConfirmViaNotification(ctx context.Context, conf gateway.Confirmation) error
}

type webhookResponse struct {
	Received bool `json:"received"`
}

// HandleNotification handles the asynchronous gateway channel. The body is
// consumed raw: signature verification needs the exact byte stream, so no
// middleware may parse or re-encode it first. Any non-2xx answer makes the
// gateway redeliver, which is safe because confirmation is idempotent.
func HandleNotification(w http.ResponseWriter, r *http.Request, gw adapter, recon reconciler) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		slog.Error("Error reading webhook body", "error", err)

		return
	}

	event, err := gw.VerifyNotification(payload, r.Header.Get(gateway.SignatureHeader))
	if err != nil {
		// Reject without touching any state.
		httperr.Write(w, err)
		slog.Warn("Rejected gateway notification", "error", err)

		return
	}

	conf, err := gw.DecodeConfirmation(event)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error decoding gateway event", "event_id", event.ID, "error", err)

		return
	}

	if err := recon.ConfirmViaNotification(r.Context(), conf); err != nil {
		httperr.Write(w, err)
		slog.Error("Error reconciling gateway notification", "order_id", conf.OrderID, "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(webhookResponse{Received: true}); err != nil {
		slog.Error("Error sending webhook response", "error", err)
	}
}
