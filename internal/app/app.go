package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trendora/order-svc/internal/dal/postgres"
	"github.com/trendora/order-svc/internal/dal/rabbitmq"
	"github.com/trendora/order-svc/internal/dal/repositories/audit"
	outboxrepo "github.com/trendora/order-svc/internal/dal/repositories/outbox/postgres"
	"github.com/trendora/order-svc/internal/gateway"
	"github.com/trendora/order-svc/internal/otel"
	"github.com/trendora/order-svc/internal/service/services/ordersvc"
	"github.com/trendora/order-svc/internal/service/services/reconciler"
	httptransport "github.com/trendora/order-svc/internal/transport/http"
	outboxworker "github.com/trendora/order-svc/internal/worker/outbox"
)

// App represents the application.
type App struct {
	orderSvc       *ordersvc.OrderService
	reconciler     *reconciler.Reconciler
	transport      *httptransport.HTTPTransport
	outboxWorker   *outboxworker.Worker
	postgresClient *postgres.Client
	rabbitClient   *rabbitmq.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()

	postgresClient := postgres.MustNewClient()
	rabbitClient := rabbitmq.MustNewClient()

	gatewayClient := gateway.MustNewClient()
	auditRepo := audit.NewAuditRabbitMQRepository(rabbitClient)

	orderSvc := ordersvc.MustNewOrderService(
		ordersvc.WithPostgresClient(postgresClient),
		ordersvc.WithGateway(gatewayClient),
		ordersvc.WithAuditLogger(auditRepo),
	)

	recon := reconciler.MustNewReconciler(
		reconciler.WithPostgresClient(postgresClient),
	)

	transport := httptransport.NewHTTPTransport(orderSvc, recon, gatewayClient)
	transport.RegisterRoutes()

	outboxWorker := outboxworker.NewWorker(
		outboxrepo.NewOutboxRepository(postgresClient.Pool()),
		rabbitClient,
	)

	return &App{
		orderSvc:       orderSvc,
		reconciler:     recon,
		transport:      transport,
		outboxWorker:   outboxWorker,
		postgresClient: postgresClient,
		rabbitClient:   rabbitClient,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go a.outboxWorker.Start(workerCtx)

	go func() {
		slog.Info("Starting HTTP server")
		if err := a.transport.Run(); err != nil {
			slog.Error("HTTP server error", "error", err)
		}
	}()

	<-stop
	slog.Info("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.transport.Shutdown(ctx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server stopped gracefully")
	}

	cancelWorker()

	if err := a.rabbitClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	a.postgresClient.Close()
	slog.Info("Database connection closed gracefully")

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Tracer provider shutdown error", "error", err)
	}

	slog.Info("Application shutdown complete")
}
