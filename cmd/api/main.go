package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/exp/slog"

	"github.com/ggnetworks/hotspot-billing-backend/api/routes"
	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	mongorepo "github.com/ggnetworks/hotspot-billing-backend/internal/repositories/mongodb"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/events"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/mongodb"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/netcontroller"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/paygateway"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/phonelock"
	"github.com/ggnetworks/hotspot-billing-backend/pkg/smsgateway"
)

func main() {
	// Load .env if present; real deployments inject environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogger(cfg.LogLevel)

	// Connect to MongoDB
	mongoClient, err := mongodb.NewClient(cfg.MongoDB.URI)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			slog.Error("Error disconnecting from MongoDB", "error", err)
		}
	}()
	db := mongoClient.Database(cfg.MongoDB.Database)

	// Repositories
	txRepo := mongorepo.NewTransactionRepository(db)
	voucherRepo := mongorepo.NewVoucherRepository(db)
	sessionRepo := mongorepo.NewSessionRepository(db)
	notificationRepo := mongorepo.NewNotificationRepository(db)
	packageRepo := mongorepo.NewPackageRepository(db)

	// Per-phone purchase guard
	var guard phonelock.Guard
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		guard = phonelock.NewRedisGuard(rdb, cfg.Payment.AuthorizationTimeout)
		slog.Info("Using redis purchase guard", "addr", cfg.Redis.Addr)
	} else {
		guard = phonelock.NewMemoryGuard()
		slog.Info("Using in-memory purchase guard")
	}

	// Settlement event stream
	var publisher events.Publisher
	if cfg.Kafka.Enabled {
		publisher, err = events.NewKafkaPublisher(cfg.Kafka.Brokers)
		if err != nil {
			log.Fatalf("Failed to connect to Kafka: %v", err)
		}
		slog.Info("Publishing billing events to Kafka", "brokers", strings.Join(cfg.Kafka.Brokers, ","))
	} else {
		publisher = events.NewNoopPublisher()
	}
	defer publisher.Close()

	// External integrations, mockable for development
	var gateway paygateway.Gateway
	if cfg.Gateway.MockAPI {
		gateway = paygateway.NewMockGateway()
		slog.Warn("Using MOCK payment gateway")
	} else {
		gateway = paygateway.NewZenoClient(cfg, cfg.Gateway.WebhookURL)
	}

	var controller netcontroller.Controller
	if cfg.Controller.MockAPI {
		controller = netcontroller.NewMockController()
		slog.Warn("Using MOCK network controller")
	} else {
		controller = netcontroller.NewRouterClient(cfg)
	}

	var sms smsgateway.Gateway
	if cfg.SMS.MockSMSGateway {
		sms = smsgateway.NewMockGateway()
		slog.Warn("Using MOCK SMS gateway")
	} else {
		sms = smsgateway.NewHTTPGateway(cfg)
	}

	// Services
	catalogService := services.NewCatalogService(packageRepo)
	voucherService := services.NewVoucherService(voucherRepo, packageRepo, cfg)
	activationService := services.NewActivationService(controller, sessionRepo, voucherService, cfg)
	notificationService := services.NewNotificationService(notificationRepo, sms, cfg)
	paymentService := services.NewPaymentOrchestrator(
		txRepo, voucherService, activationService, notificationService,
		catalogService, gateway, guard, publisher, cfg,
	)

	seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := catalogService.EnsureDefaults(seedCtx); err != nil {
		slog.Error("Failed to seed package catalog", "error", err)
	}
	seedCancel()

	// Background workers
	paymentService.Start()
	activationService.Start()
	notificationService.Start()
	defer func() {
		paymentService.Stop()
		activationService.Stop()
		notificationService.Stop()
	}()

	router := routes.SetupRouter(cfg, routes.HandlerDependencies{
		PaymentService:      paymentService,
		VoucherService:      voucherService,
		ActivationService:   activationService,
		NotificationService: notificationService,
		CatalogService:      catalogService,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	slog.Info("Server starting", "port", cfg.Server.Port)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	slog.Info("Server exiting")
}

// setupLogger installs a JSON slog logger at the configured level
func setupLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
