package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/joao-fontenele/storefront-checkout/internal/config"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
	"github.com/joao-fontenele/storefront-checkout/internal/sandbox"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
)

const serviceVersion = "0.1.0"

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.Load(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadSandbox()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "sandbox", serviceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider("sandbox", serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	var (
		orderStore  sandbox.OrderStore
		intentStore sandbox.IntentStore
	)
	if cfg.DatabaseURL != "" {
		db, err := telemetry.OpenDB(ctx, "postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() { _ = db.Close() }()

		orderStore = sandbox.NewOrderRepository(db)
		intentStore = sandbox.NewIntentRepository(db)
	} else {
		logger.Warn("DATABASE_URL not set, orders are kept in memory")
		store := sandbox.NewMemoryStore()
		orderStore, intentStore = store, store
	}

	opts := sandbox.Options{
		PublicURL:     cfg.PublicURL,
		ServiceToken:  cfg.ServiceToken,
		ShippingPrice: cfg.ShippingPrice,
	}
	if len(cfg.KafkaBrokers) > 0 {
		created := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderCreated)
		defer func() { _ = created.Close() }()
		paid := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicOrderPaid)
		defer func() { _ = paid.Close() }()

		opts.OrderCreated = created
		opts.OrderPaid = paid
	} else {
		logger.Warn("KAFKA_BROKERS not set, order events are disabled")
	}

	handler := sandbox.NewHandler(orderStore, intentStore, opts, logger)

	mux := http.NewServeMux()
	handler.Register(mux)
	mux.Handle("GET /metrics", metricsHandler)

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, "sandbox",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting sandbox commerce api", "port", cfg.Port, "public_url", cfg.PublicURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
