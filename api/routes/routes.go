package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/ggnetworks/hotspot-billing-backend/internal/config"
	"github.com/ggnetworks/hotspot-billing-backend/internal/handlers"
	"github.com/ggnetworks/hotspot-billing-backend/internal/middleware"
	"github.com/ggnetworks/hotspot-billing-backend/internal/services"
)

// HandlerDependencies carries the services the router wires into handlers
type HandlerDependencies struct {
	PaymentService      services.PaymentService
	VoucherService      services.VoucherService
	ActivationService   services.ActivationService
	NotificationService services.NotificationService
	CatalogService      services.CatalogService
}

// SetupRouter sets up the router
func SetupRouter(cfg *config.Config, deps HandlerDependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// Add middleware
	router.Use(middleware.CORSMiddleware(cfg))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware())

	// Create handlers
	purchaseHandler := handlers.NewPurchaseHandler(deps.PaymentService)
	callbackHandler := handlers.NewCallbackHandler(deps.PaymentService, cfg)
	voucherHandler := handlers.NewVoucherHandler(deps.VoucherService)
	sessionHandler := handlers.NewSessionHandler(deps.ActivationService)
	notificationHandler := handlers.NewNotificationHandler(deps.NotificationService)
	catalogHandler := handlers.NewCatalogHandler(deps.CatalogService)

	// Public routes
	public := router.Group("/api/v1")
	{
		// Health check
		public.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status": "ok",
			})
		})

		// Purchase routes (captive portal, unauthenticated)
		hotspot := public.Group("/hotspot")
		{
			hotspot.POST("/purchase", purchaseHandler.InitiatePurchase)
			hotspot.GET("/purchase/:id", purchaseHandler.GetPurchase)
			hotspot.POST("/purchase/:id/authorize", purchaseHandler.SubmitAuthorizationCode)
			hotspot.POST("/purchase/:id/cancel", purchaseHandler.CancelPurchase)
			hotspot.POST("/voucher/validate", voucherHandler.ValidateVoucher)
			hotspot.GET("/packages", catalogHandler.ListPackages)
		}

		// Gateway webhook, authenticated by shared secret
		public.POST("/payments/callback", callbackHandler.HandleCallback)
	}

	// Protected operator routes
	protected := router.Group("/api/v1")
	protected.Use(middleware.JWTAuthMiddleware(cfg))
	{
		protected.POST("/sessions/:id/terminate", sessionHandler.TerminateSession)
		protected.GET("/notifications/status/:status", notificationHandler.GetJobsByStatus)
	}

	return router
}
