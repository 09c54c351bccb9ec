// internal/router/router.go
package router

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/javajoker/digistore/internal/config"
	"github.com/javajoker/digistore/internal/handlers"
	"github.com/javajoker/digistore/internal/middleware"
	"github.com/javajoker/digistore/internal/services"
	"github.com/javajoker/digistore/internal/utils"
)

// Dependencies lets callers swap collaborators that talk to the outside
// world. Nil fields get the production implementation.
type Dependencies struct {
	Gateway  services.GatewayClient
	Notifier services.Notifier
	URLs     services.DeliverableURLResolver
}

// App is the wired HTTP service. Close stops its background work.
type App struct {
	Engine     *gin.Engine
	Dispatcher *services.NotificationDispatcher
	Webhooks   *services.WebhookService

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Close stops the limiter janitor and waits for it to exit. It is safe to
// call more than once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		close(a.stop)
		<-a.done
	})
}

func (a *App) sweepLimiter(limiter *middleware.RateLimiter, every, idle time.Duration) {
	defer close(a.done)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			limiter.Cleanup(idle)
		case <-a.stop:
			return
		}
	}
}

func Initialize(db *gorm.DB, cfg *config.Config, logger *logrus.Logger, deps Dependencies) (*App, error) {
	// Initialize services
	if deps.Gateway == nil {
		deps.Gateway = services.NewMercadoPagoClient(cfg.Gateway)
	}
	if deps.Notifier == nil {
		deps.Notifier = services.NewNotificationService(db, cfg.Email, logger)
	}
	if deps.URLs == nil {
		storageService, err := services.NewStorageService(cfg.AWS)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		deps.URLs = storageService
	}

	dispatcher := services.NewNotificationDispatcher(deps.Notifier, cfg.Notification.Timeout, logger)
	reconciler := services.NewReconciliationService(deps.Gateway, logger)
	stateMachine := services.NewOrderStateMachine(db, logger)
	fulfillmentService := services.NewFulfillmentService(db, services.DefaultAllocators(), deps.URLs, logger)
	webhookService := services.NewWebhookService(db, reconciler, stateMachine, fulfillmentService, dispatcher, logger)
	signatureValidator := services.NewSignatureValidator(cfg.Webhook, logger)

	// Initialize handlers
	webhookHandler := handlers.NewWebhookHandler(signatureValidator, webhookService, cfg.Webhook.MaxBodyBytes, logger)
	adminHandler := handlers.NewAdminHandler(webhookService, fulfillmentService, logger)

	// Set JWT secret
	utils.SetJWTSecret(cfg.JWT.SecretKey)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": "1.0.0",
		})
	})

	// Gateway webhook, unauthenticated and never cached
	webhook := r.Group("/webhook")
	webhook.Use(middleware.NoCache())
	{
		webhook.GET("", webhookHandler.Ping)
		webhook.POST("", webhookHandler.Receive)
	}

	operatorLimiter := middleware.NewRateLimiter(rate.Every(100*time.Millisecond), 20)

	// API v1 routes
	v1 := r.Group("/v1")
	{
		admin := v1.Group("/admin")
		admin.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.Server.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
			ExposeHeaders:    []string{"X-Total-Count", "X-Page", "X-Per-Page", "X-Total-Pages"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
		admin.Use(operatorLimiter.Middleware())
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/payments/:paymentId/reconcile", adminHandler.ReconcilePayment)
			admin.GET("/orders/:id/fulfillment", adminHandler.GetOrderFulfillment)
			admin.GET("/webhook-events", adminHandler.GetWebhookEvents)
		}
	}

	app := &App{
		Engine:     r,
		Dispatcher: dispatcher,
		Webhooks:   webhookService,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go app.sweepLimiter(operatorLimiter, time.Minute, 3*time.Minute)
	return app, nil
}
