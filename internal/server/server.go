package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/ticketloop/purchases-service/config"
	"github.com/ticketloop/purchases-service/internal/admission"
	"github.com/ticketloop/purchases-service/internal/auth"
	"github.com/ticketloop/purchases-service/internal/clients"
	"github.com/ticketloop/purchases-service/internal/handlers"
	"github.com/ticketloop/purchases-service/internal/ledger"
	"github.com/ticketloop/purchases-service/internal/metrics"
	"github.com/ticketloop/purchases-service/internal/middleware"
	"github.com/ticketloop/purchases-service/internal/notify"
)

func Start() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	}

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}
	defer sqlDB.Close()

	verifier, err := auth.NewVerifier(cfg.JWT.Secret, cfg.JWT.EmbeddedSecret)
	if err != nil {
		return fmt.Errorf("failed to initialize token verifier: %w", err)
	}

	publisher, err := buildPublisher(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize notification publisher: %w", err)
	}
	defer publisher.Close()

	eventsClient := clients.NewEventsClient(cfg.Services.EventsURL, cfg.Services.Timeout())

	var directory admission.Directory
	if cfg.Services.UsersURL != "" {
		directory = clients.NewUsersClient(cfg.Services.UsersURL, cfg.Services.Timeout())
	}

	store := ledger.NewStore(db)
	engine := admission.NewEngine(admission.EngineProperty{
		Oracle:    eventsClient,
		Directory: directory,
		Ledger:    store,
		Publisher: publisher,
		Logger:    log.StandardLogger(),
	})

	router := setupRouter(cfg, verifier, handlers.NewPurchaseHandler(engine, store, eventsClient, cfg.JWT.Secret))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.WithFields(log.Fields{
			"port":        cfg.Server.Port,
			"environment": cfg.Server.Environment,
		}).Info("Starting purchases service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

func buildPublisher(cfg *config.Config) (notify.Publisher, error) {
	switch cfg.Notifications.Transport {
	case "amqp":
		return notify.NewAMQPPublisher(cfg.Notifications.AMQPURL, cfg.Notifications.Exchange, cfg.Notifications.RoutingKey)
	case "http":
		return notify.NewWebhookPublisher(cfg.Notifications.WebhookURL, 5*time.Second), nil
	case "none":
		return notify.NewNopPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown notification transport %q", cfg.Notifications.Transport)
	}
}

func setupRouter(cfg *config.Config, verifier *auth.Verifier, purchaseHandler *handlers.PurchaseHandler) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(metrics.PrometheusMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		AllowCredentials: true,
	}))

	r.GET("/health", handlers.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	public := r.Group("/purchases")
	{
		public.GET("/event/:event_id/remaining", purchaseHandler.Remaining)
	}

	protected := r.Group("/purchases")
	protected.Use(middleware.RequireAuth(verifier))
	{
		protected.GET("", purchaseHandler.List)
		protected.POST("", middleware.RequireRole("user", "admin"), purchaseHandler.Create)
		protected.GET("/mine/paid", purchaseHandler.ListPaid)
		protected.GET("/user/:user_id", purchaseHandler.ListByUser)
		protected.GET("/event/:event_id", purchaseHandler.ListByEvent)
		protected.GET("/:id", purchaseHandler.Get)
		protected.GET("/:id/qr", purchaseHandler.TicketQR)
		protected.POST("/:id/pay", purchaseHandler.Pay)
	}

	return r
}
