package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/storefront-checkout/internal/cart"
	"github.com/joao-fontenele/storefront-checkout/internal/checkout"
	"github.com/joao-fontenele/storefront-checkout/internal/config"
	"github.com/joao-fontenele/storefront-checkout/internal/domain"
	"github.com/joao-fontenele/storefront-checkout/internal/messaging"
	"github.com/joao-fontenele/storefront-checkout/internal/orders"
	"github.com/joao-fontenele/storefront-checkout/internal/payment"
	"github.com/joao-fontenele/storefront-checkout/internal/platform"
	"github.com/joao-fontenele/storefront-checkout/internal/storefront"
	"github.com/joao-fontenele/storefront-checkout/internal/telemetry"
	"github.com/joao-fontenele/storefront-checkout/internal/views"
	"github.com/joao-fontenele/storefront-checkout/internal/wishlist"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := config.Load(); err != nil {
		logger.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadStorefront()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	token, err := cfg.ResolveToken()
	if err != nil {
		logger.Error("failed to read api token", "error", err)
		os.Exit(1)
	}
	if token == "" {
		logger.Error("API_TOKEN or API_TOKEN_FILE is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.SetPropagator()
	httpClient := telemetry.NewHTTPClient(cfg.HTTPTimeout)
	client := orders.NewClient(cfg.APIBaseURL, httpClient, orders.StaticToken(token), logger)
	payments := payment.NewHTTPBridge(cfg.APIBaseURL, httpClient, orders.StaticToken(token), logger)

	screen := platform.NewTerminal(cfg.Origin, os.Stdout)
	cartStore := cart.NewStore()

	opts := []checkout.Option{
		checkout.WithSuccessDelay(cfg.SuccessDelay),
		checkout.WithPollInterval(cfg.PollInterval),
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := messaging.NewProducer(cfg.KafkaBrokers, messaging.TopicCheckoutEvents, messaging.WithAsync())
		defer func() { _ = producer.Close() }()
		opts = append(opts, checkout.WithPublisher(producer))
	}

	orchestrator, err := checkout.NewOrchestrator(client, cartStore, screen, logger, opts...)
	if err != nil {
		logger.Error("failed to create checkout", "error", err)
		os.Exit(1)
	}
	defer orchestrator.Close()

	var storage wishlist.Storage = wishlist.NewMemoryStorage()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = rdb.Close() }()
		storage = wishlist.NewRedisStorage(rdb, cfg.WishlistKey, logger)
	}
	wishes := wishlist.NewService(ctx, storage, logger)
	go wishes.Watch(ctx, func(items []domain.WishlistItem) {
		logger.Info("wishlist changed in another session", "count", len(items))
	})

	shell := storefront.NewShell(storefront.Deps{
		Cart:         cartStore,
		Checkout:     orchestrator,
		History:      views.NewHistory(client, logger),
		Detail:       views.NewDetail(client, screen, logger),
		Confirmation: views.NewConfirmation(client, orchestrator, screen, logger),
		Wishlist:     wishes,
		Payments:     payments,
		Screen:       screen,
	}, os.Stdout, logger)

	if err := shell.Run(ctx, os.Stdin); err != nil {
		logger.Error("storefront stopped", "error", err)
		os.Exit(1)
	}
}
