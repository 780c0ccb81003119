package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Eursukkul/tutor-booking/config"
	"github.com/Eursukkul/tutor-booking/internal/consumer"
	"github.com/Eursukkul/tutor-booking/internal/gateway"
	"github.com/Eursukkul/tutor-booking/internal/gateway/banktransfer"
	"github.com/Eursukkul/tutor-booking/internal/gateway/omise"
	"github.com/Eursukkul/tutor-booking/internal/handler"
	"github.com/Eursukkul/tutor-booking/internal/middleware"
	"github.com/Eursukkul/tutor-booking/internal/models"
	"github.com/Eursukkul/tutor-booking/internal/repository"
	"github.com/Eursukkul/tutor-booking/internal/service"
	"github.com/Eursukkul/tutor-booking/internal/worker"
	"github.com/Eursukkul/tutor-booking/pkg/database"
	"github.com/Eursukkul/tutor-booking/pkg/logger"
	"github.com/Eursukkul/tutor-booking/pkg/rabbitmq"
	"github.com/Eursukkul/tutor-booking/pkg/redis"
	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

func main() {
	cfg := config.Load()
	logger.New(cfg.LogLevel, cfg.LogFormat)

	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db := database.NewPostgresDB(cfg.DSN())
	tx := database.NewTransactor(db)

	// Repositories
	bookingRepo := repository.NewBookingRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	usageRepo := newUsageRepository(cfg, db)

	gateways := newGatewayRegistry(cfg.Gateway)

	// RabbitMQ: domain events out, gateway events in
	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL)
	if err != nil {
		logrus.Fatalf("failed to connect publisher to RabbitMQ: %v", err)
	}
	defer publisher.Close()

	mqConsumer, err := rabbitmq.NewConsumer(cfg.RabbitURL)
	if err != nil {
		logrus.Fatalf("failed to connect consumer to RabbitMQ: %v", err)
	}
	defer mqConsumer.Close()

	// Services
	bookingSvc := service.NewBookingService(tx, bookingRepo, orderRepo, profileRepo, gateways, publisher, service.BookingOptions{
		PlatformFeePercent: cfg.Billing.PlatformFeePercent,
		Currency:           cfg.Billing.Currency,
		Location:           cfg.Location,
	})
	subSvc := service.NewSubscriptionService(tx, subRepo, orderRepo, gateways, service.SubscriptionOptions{
		Currency: cfg.Billing.Currency,
		Prices: map[models.Tier]int64{
			models.TierBasic:   cfg.Billing.TierPriceBasic,
			models.TierPremium: cfg.Billing.TierPricePremium,
		},
	})
	reconcileSvc := service.NewReconcileService(tx, orderRepo, bookingRepo, subSvc, gateways, publisher)
	lifecycleSvc := service.NewLifecycleService(tx, bookingRepo, profileRepo, publisher, cfg.Location)
	quotaSvc := service.NewQuotaService(profileRepo, subRepo, usageRepo, service.QuotaLimits{
		models.TierFree:  cfg.Quota.FreeLimit,
		models.TierBasic: cfg.Quota.BasicLimit,
	}, cfg.Location)

	// Background workers
	msgs, err := mqConsumer.Consume()
	if err != nil {
		logrus.Fatalf("failed to start consuming: %v", err)
	}
	consumerDone := consumer.NewPaymentConsumer(reconcileSvc).Start(ctx, msgs)

	if cfg.Sweeper.Enabled {
		sweeper := worker.NewOrderSweeper(reconcileSvc, cfg.Sweeper.Interval, cfg.Sweeper.PaymentTimeout, cfg.Sweeper.BatchSize)
		go sweeper.Start(ctx)
	}

	// Echo
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.ErrorHandler
	e.Validator = middleware.NewValidator()
	e.Use(echoMw.RequestID())
	e.Use(middleware.RequestLogger())
	e.Use(echoMw.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "service": "tutor-booking"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handler.NewWebhookHandler(reconcileSvc).RegisterRoutes(e)

	api := e.Group("/api/v1", middleware.Auth(cfg.JWTSecret))
	handler.NewBookingHandler(bookingSvc, lifecycleSvc).RegisterRoutes(api)
	handler.NewOrderHandler(bookingSvc, reconcileSvc).RegisterRoutes(api)
	handler.NewTutorHandler(lifecycleSvc).RegisterRoutes(api)
	handler.NewQuotaHandler(quotaSvc).RegisterRoutes(api)
	handler.NewSubscriptionHandler(subSvc).RegisterRoutes(api)

	go func() {
		logrus.Infof("tutor-booking starting on :%s", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("server shutdown")
	}
	<-consumerDone
}

func newUsageRepository(cfg *config.Config, db *gorm.DB) repository.UsageRepository {
	if cfg.Quota.Backend != "redis" {
		return repository.NewUsageRepository(db)
	}
	client, err := redis.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logrus.Fatalf("failed to connect to redis: %v", err)
	}
	return repository.NewRedisUsageRepository(client, cfg.Location)
}

// newGatewayRegistry registers the bank transfer adapter always and Omise
// when keys are configured.
func newGatewayRegistry(cfg config.GatewayConfig) *gateway.Registry {
	gws := []gateway.Gateway{banktransfer.New(banktransfer.Config{
		APIBase:       cfg.BankAPIBase,
		APIKey:        cfg.BankAPIKey,
		WebhookSecret: cfg.BankWebhookSecret,
		BIN:           cfg.BankBIN,
		Account:       cfg.BankAccount,
		AccountName:   cfg.BankAccountName,
		BankName:      cfg.BankName,
		Timeout:       cfg.BankTimeout,
	})}

	if cfg.OmiseSecretKey != "" {
		gw, err := omise.New(omise.Config{
			PublicKey:     cfg.OmisePublicKey,
			SecretKey:     cfg.OmiseSecretKey,
			WebhookSecret: cfg.OmiseWebhookSecret,
			ReturnURI:     cfg.OmiseReturnURI,
		})
		if err != nil {
			logrus.Fatalf("failed to configure omise: %v", err)
		}
		gws = append(gws, gw)
	}

	reg, err := gateway.NewRegistry(cfg.Provider, gws...)
	if err != nil {
		logrus.Fatalf("gateway registry: %v", err)
	}
	return reg
}
