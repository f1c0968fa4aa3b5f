package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/spf13/viper"
	"github.com/trendora/order-svc/internal/gateway"
	"github.com/trendora/order-svc/internal/service/models/order"
	"github.com/trendora/order-svc/internal/service/models/principal"
	cancelorder "github.com/trendora/order-svc/internal/transport/http/cancel_order"
	createorder "github.com/trendora/order-svc/internal/transport/http/create_order"
	gatewaywebhook "github.com/trendora/order-svc/internal/transport/http/gateway_webhook"
	listorders "github.com/trendora/order-svc/internal/transport/http/list_orders"
	"github.com/trendora/order-svc/internal/transport/http/middleware/principalmw"
	updatestatus "github.com/trendora/order-svc/internal/transport/http/update_status"
	verifypayment "github.com/trendora/order-svc/internal/transport/http/verify_payment"
	"github.com/trendora/order-svc/pkg/http/middleware/trace"
	"github.com/trendora/order-svc/pkg/logger"
)

type service interface {
	PlaceOrder(ctx context.Context, p principal.Principal, draft order.Order) (order.Order, error)
	PlaceOrderWithCheckout(
		ctx context.Context,
		p principal.Principal,
		draft order.Order,
		origin string,
	) (order.Order, string, error)
	CancelOrder(ctx context.Context, p principal.Principal, orderID uuid.UUID) (*order.Order, error)
	UpdateFulfillmentStatus(
		ctx context.Context,
		p principal.Principal,
		orderID uuid.UUID,
		requested order.Status,
	) (*order.Order, error)
	ListOrders(
		ctx context.Context,
		p principal.Principal,
		filter order.QueryOrdersModel,
	) ([]order.Order, error)
}

type reconciler interface {
	ConfirmViaRedirect(
		ctx context.Context,
		p principal.Principal,
		orderID uuid.UUID,
		success bool,
	) (*order.Order, error)
	ConfirmViaNotification(ctx context.Context, conf gateway.Confirmation) error
}

type gatewayAdapter interface {
	VerifyNotification(payload []byte, sigHeader string) (*gateway.Event, error)
	DecodeConfirmation(event *gateway.Event) (gateway.Confirmation, error)
}

type HTTPTransport struct {
	server     *http.Server
	router     *chi.Mux
	service    service
	reconciler reconciler
	gateway    gatewayAdapter
}

func NewHTTPTransport(service service, reconciler reconciler, gateway gatewayAdapter) *HTTPTransport {
	router := newRouter()
	server := newServer(router)
	return &HTTPTransport{
		server:     server,
		router:     router,
		service:    service,
		reconciler: reconciler,
		gateway:    gateway,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
// The webhook route stays outside the principal group: the gateway
// authenticates with a payload signature, not an identity header.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/webhook/gateway", h.handleNotification)

		r.Group(func(r chi.Router) {
			r.Use(principalmw.New())

			r.Post("/place-cod", h.placeOrder)
			r.Post("/checkout", h.checkout)
			r.Post("/verify", h.verifyPayment)
			r.Patch("/cancel/{orderID}", h.cancelOrder)
			r.Get("/user-orders", h.listUserOrders)
			r.Get("/list", h.listAllOrders)
			r.Patch("/status", h.updateStatus)
		})
	})
}

func (h *HTTPTransport) placeOrder(w http.ResponseWriter, r *http.Request) {
	createorder.PlaceOrder(w, r, h.service)
}

func (h *HTTPTransport) checkout(w http.ResponseWriter, r *http.Request) {
	createorder.Checkout(w, r, h.service)
}

func (h *HTTPTransport) verifyPayment(w http.ResponseWriter, r *http.Request) {
	verifypayment.VerifyPayment(w, r, h.reconciler)
}

func (h *HTTPTransport) handleNotification(w http.ResponseWriter, r *http.Request) {
	gatewaywebhook.HandleNotification(w, r, h.gateway, h.reconciler)
}

func (h *HTTPTransport) cancelOrder(w http.ResponseWriter, r *http.Request) {
	cancelorder.CancelOrder(w, r, h.service)
}

func (h *HTTPTransport) listUserOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListUserOrders(w, r, h.service)
}

func (h *HTTPTransport) listAllOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListAllOrders(w, r, h.service)
}

func (h *HTTPTransport) updateStatus(w http.ResponseWriter, r *http.Request) {
	updatestatus.UpdateStatus(w, r, h.service)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}
