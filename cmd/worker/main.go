package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/joao-fontenele/storefront-checkout/internal/config"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
	"github.com/joao-fontenele/storefront-checkout/internal/orders"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
	"github.com/joao-fontenele/storefront-checkout/internal/worker"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := config.Load(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadWorker()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, "fulfillment-worker", "0.1.0", cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	paidConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicOrderPaid, cfg.GroupID, logger)
	defer func() { _ = paidConsumer.Close() }()

	checkoutConsumer := messaging.NewConsumer(cfg.KafkaBrokers, messaging.TopicCheckoutEvents, cfg.GroupID+"-receipts", logger)
	defer func() { _ = checkoutConsumer.Close() }()

	client := orders.NewClient(cfg.APIBaseURL, telemetry.NewHTTPClient(cfg.HTTPTimeout), orders.StaticToken(cfg.ServiceToken), logger)
	fulfillment := worker.NewFulfillmentHandler(client, logger)
	notifier := worker.NewCheckoutNotifier(worker.NewLogSender(logger), logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting fulfillment worker", "brokers", cfg.KafkaBrokers,
		"topics", []string{messaging.TopicOrderPaid, messaging.TopicCheckoutEvents})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return paidConsumer.Consume(gctx, fulfillment.Handle) })
	g.Go(func() error { return checkoutConsumer.Consume(gctx, notifier.Handle) })

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
