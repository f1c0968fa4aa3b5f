package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/trendora/order-svc/internal/service/models/apperrors"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/principal"
	"github.com/trendora/order-svc/internal/transport/http/httperr"
)

type service interface {
	ListOrders(
		ctx context.Context,
		p principal.Principal,
		filter order.QueryOrdersModel,
	) ([]order.Order, error)
}

type queryOrdersRequest struct {
	Statuses []string `schema:"statuses,omitempty"`
	Limit    int      `schema:"limit,omitempty"`
	Offset   int      `schema:"offset,omitempty"`
}

func (q *queryOrdersRequest) toModel() (order.QueryOrdersModel, error) {
	filter := order.QueryOrdersModel{
		Limit:  q.Limit,
		Offset: q.Offset,
	}
	for _, s := range q.Statuses {
		status, err := order.ParseStatus(s)
		if err != nil {
			return order.QueryOrdersModel{}, apperrors.Validation("unknown status %q", s)
		}
		filter.Statuses = append(filter.Statuses, status)
	}

	return filter, nil
}

// ListUserOrders returns the calling owner's orders.
func ListUserOrders(w http.ResponseWriter, r *http.Request, service service) {
	listOrders(w, r, service, false)
}

// ListAllOrders returns every order matching the filter. Operator only; an
// empty result is a 200 with an empty sequence.
func ListAllOrders(w http.ResponseWriter, r *http.Request, service service) {
	listOrders(w, r, service, true)
}

func listOrders(w http.ResponseWriter, r *http.Request, service service, operatorOnly bool) {
	p, ok := principal.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)

		return
	}
	if operatorOnly && p.Role != principal.RoleOperator {
		httperr.Write(w, apperrors.Forbidden("operator role required"))

		return
	}

	query := &queryOrdersRequest{}
	if err := schema.NewDecoder().Decode(query, r.URL.Query()); err != nil {
		httperr.Write(w, apperrors.Validation("malformed query: %s", err.Error()))
		slog.Error("Error decoding list orders query", "error", err)

		return
	}

	filter, err := query.toModel()
	if err != nil {
		httperr.Write(w, err)

		return
	}

	orders, err := service.ListOrders(r.Context(), p, filter)
	if err != nil {
		httperr.Write(w, err)
		slog.Error("Error listing orders", "error", err)

		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(orders); err != nil {
		slog.Error("Error sending list orders response", "error", err)
	}
}
