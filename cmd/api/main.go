package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/multierr"

	"github.com/angelmondragon/deliverydesk-backend/api/routes"
	"github.com/angelmondragon/deliverydesk-backend/internal/orders"
	"github.com/angelmondragon/deliverydesk-backend/internal/payments"
	"github.com/angelmondragon/deliverydesk-backend/internal/pricing"
	"github.com/angelmondragon/deliverydesk-backend/internal/profiles"
	"github.com/angelmondragon/deliverydesk-backend/internal/promotions"
	"github.com/angelmondragon/deliverydesk-backend/internal/wallet"
	"github.com/angelmondragon/deliverydesk-backend/pkg/config"
	"github.com/angelmondragon/deliverydesk-backend/pkg/db"
	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/maps"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
	"github.com/angelmondragon/deliverydesk-backend/pkg/migrate"
	"github.com/angelmondragon/deliverydesk-backend/pkg/paystack"
	"github.com/angelmondragon/deliverydesk-backend/pkg/redis"
)

const (
	serviceName     = "api"
	shutdownTimeout = 15 * time.Second
	webhookProvider = "paystack"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceName})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	var redisClient *redis.Client
	if redis.Configured(cfg.Redis) {
		redisClient, err = redis.New(bootCtx, cfg.Redis, logg)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
	} else {
		logg.Warn(bootCtx, "redis not configured; idempotency, rate limits and webhook de-duplication are disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	settlementMetrics := metrics.NewSettlementMetrics(registry)

	paystackClient, err := paystack.NewClient(bootCtx, cfg.Paystack, logg)
	if err != nil {
		return err
	}

	var mapsClient *maps.Client
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err = maps.NewClient(cfg.GoogleMaps.APIKey)
		if err != nil {
			return err
		}
	} else {
		logg.Warn(bootCtx, "google maps api key missing; distance lookups are unavailable")
	}

	minimum, err := cfg.Wallet.Minimum()
	if err != nil {
		return err
	}

	profileService, err := profiles.NewService(profiles.NewRepository(dbClient.DB()))
	if err != nil {
		return err
	}
	walletService, err := wallet.NewService(wallet.ServiceParams{
		Repo:       wallet.NewRepository(dbClient.DB()),
		Transactor: dbClient,
		Minimum:    minimum,
		Logger:     logg,
		Metrics:    settlementMetrics,
	})
	if err != nil {
		return err
	}
	promotionService, err := promotions.NewService(promotions.NewRepository(dbClient.DB()), logg, settlementMetrics, time.Now)
	if err != nil {
		return err
	}

	pricingParams := pricing.ServiceParams{
		Repo:       pricing.NewRepository(dbClient.DB()),
		Transactor: dbClient,
		Promotions: promotionService,
		Logger:     logg,
		Metrics:    settlementMetrics,
	}
	if mapsClient != nil {
		pricingParams.Distances = mapsClient
	}
	pricingService, err := pricing.NewService(pricingParams)
	if err != nil {
		return err
	}

	paymentService, err := payments.NewService(payments.ServiceParams{
		Gateway:       paystackClient,
		Wallet:        walletService,
		Accounts:      payments.NewAccountRepository(dbClient.DB()),
		Profiles:      profileService,
		Logger:        logg,
		Metrics:       settlementMetrics,
		CallbackURL:   cfg.Paystack.CallbackURL,
		PreferredBank: cfg.Paystack.PreferredBank,
		WalletMinimum: minimum,
	})
	if err != nil {
		return err
	}

	orderService, err := orders.NewService(orders.NewRepository(dbClient.DB()), dbClient, profileService, walletService, logg)
	if err != nil {
		return err
	}

	deps := routes.Dependencies{
		DB:             dbClient,
		Maps:           mapsClient,
		Profiles:       profileService,
		Orders:         orderService,
		Wallet:         walletService,
		Payments:       paymentService,
		Pricing:        pricingService,
		Promotions:     promotionService,
		PaystackSecret: paystackClient.SecretKey(),
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	if redisClient != nil {
		deps.Redis = redisClient
		guard, err := payments.NewWebhookGuard(redisClient, cfg.Paystack.WebhookTTL, webhookProvider)
		if err != nil {
			return err
		}
		deps.WebhookGuard = guard
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(bootCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(bootCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-sigCtx.Done():
	}

	logg.Info(ctx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(bootCtx, shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
