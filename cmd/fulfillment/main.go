package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/fulfillment/internal/app"
	"github.com/odyssey-erp/fulfillment/internal/backorders"
	"github.com/odyssey-erp/fulfillment/internal/fulfillment"
	"github.com/odyssey-erp/fulfillment/internal/inventory"
	"github.com/odyssey-erp/fulfillment/internal/observability"
	"github.com/odyssey-erp/fulfillment/internal/platform/cache"
	"github.com/odyssey-erp/fulfillment/internal/platform/db"
	"github.com/odyssey-erp/fulfillment/internal/sales"
	"github.com/odyssey-erp/fulfillment/internal/sequence"
	"github.com/odyssey-erp/fulfillment/internal/shared"
	"github.com/odyssey-erp/fulfillment/internal/shipping"
	"github.com/odyssey-erp/fulfillment/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, view cache disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	domainMetrics := observability.NewDomain(metrics.Registerer())

	views := cache.NewViews(redisClient, cfg.ViewCacheTTL)
	if err := views.Listen(ctx, func(view cache.View, version int64) {
		logger.Debug("view bumped", slog.String("view", string(view)), slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe view bumps", slog.Any("error", err))
	}

	auditLogger := shared.NewAuditLogger(dbpool)
	idempotency := shared.NewIdempotencyStore(dbpool)
	numbers := sequence.NewGenerator(dbpool, domainMetrics)

	inventoryService := inventory.NewService(inventory.NewRepository(dbpool, numbers), auditLogger, views, logger)
	salesService := sales.NewService(sales.NewRepository(dbpool, numbers), auditLogger, views, domainMetrics, logger)
	backorderService := backorders.NewService(backorders.NewRepository(dbpool), auditLogger, views, logger)
	fulfillmentService := fulfillment.NewService(fulfillment.NewRepository(dbpool), logger,
		fulfillment.WithIdempotency(idempotency),
		fulfillment.WithViews(views),
		fulfillment.WithAudit(auditLogger),
		fulfillment.WithMetrics(domainMetrics),
	)

	shippingRate, _ := cfg.ShippingRate()
	shippingMin, _ := cfg.ShippingMinChargeable()
	shippingService := shipping.NewService(
		shipping.NewRepository(dbpool, numbers),
		shipping.NewCalculator(cfg.ShippingVolumetricDivisor, shippingMin),
		shippingRate,
		auditLogger,
		logger,
	)

	var inspector *asynq.Inspector
	if redisClient != nil {
		inspector = asynq.NewInspector(asynqOpt(redisClient))
		defer func() { _ = inspector.Close() }()
	}

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		BackordersHandler:  backorders.NewHandler(logger, backorderService),
		FulfillmentHandler: fulfillment.NewHandler(logger, fulfillmentService),
		InventoryHandler:   inventory.NewHandler(logger, inventoryService),
		SalesHandler:       sales.NewHandler(logger, salesService),
		SequenceHandler:    sequence.NewHandler(logger, numbers),
		ShippingHandler:    shipping.NewHandler(logger, shippingService),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func asynqOpt(client *redis.Client) asynq.RedisClientOpt {
	opts := client.Options()
	return asynq.RedisClientOpt{Addr: opts.Addr, Username: opts.Username, Password: opts.Password, DB: opts.DB, TLSConfig: opts.TLSConfig}
}
