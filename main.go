package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pixeltruth/analysis"
	"pixeltruth/classifier"
	"pixeltruth/config"
	"pixeltruth/database"
	"pixeltruth/handlers"
	"pixeltruth/metrics"
	"pixeltruth/middleware"
	"pixeltruth/rabbitmq"
	"pixeltruth/storage"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)
	metrics.Register()

	log.Info("Starting pixeltruth service...")

	db, err := database.Connect(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	log.Info("Initializing database schema and running migrations...")
	if err := database.InitializeSchema(db); err != nil {
		log.WithError(err).Fatal("Failed to initialize database schema")
	}

	files, err := storage.NewUploads(cfg.UploadDir, cfg.MaxFileSize, cfg.AllowedImageExtensions)
	if err != nil {
		log.WithError(err).Fatal("Failed to prepare upload directory")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	classifierService := classifier.NewService(ctx, newClassifier(cfg), classifier.ParseFallback(cfg.ClassifierFallback))
	log.Infof("Classifier: %s", classifierService)

	authService := database.NewAuthService(db, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	deps := handlers.Deps{
		Auth:          authService,
		Analyses:      database.NewAnalysisService(db),
		Files:         files,
		Pipeline:      analysis.NewPipeline(classifierService, cfg.ModelVersion),
		Classifier:    classifierService,
		ModelVersion:  cfg.ModelVersion,
		StorePreviews: cfg.StorePreviews,
	}

	if cfg.AMQPURL != "" {
		publisher, err := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey)
		if err != nil {
			// Analyses are still served and stored without events.
			log.WithError(err).Error("Failed to create RabbitMQ publisher, events disabled")
		} else {
			defer publisher.Close()
			deps.Publisher = publisher
		}
	}

	router := setupRouter(handlers.NewHandlers(deps), authService, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("pixeltruth listening on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	log.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.LogFormat == "json" {
		log.SetHandler(json.New(os.Stderr))
	} else {
		log.SetHandler(text.New(os.Stderr))
	}

	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("Unknown LOG_LEVEL %q, using info", cfg.LogLevel)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

func newClassifier(cfg *config.Config) classifier.Classifier {
	switch cfg.ClassifierMode {
	case "stub":
		log.Warn("Using the deterministic stub classifier")
		return classifier.NewStub()
	case "remote":
	default:
		log.Warnf("Unknown CLASSIFIER_MODE %q, using remote", cfg.ClassifierMode)
	}
	return classifier.NewRemote(cfg.ClassifierURL, cfg.ClassifierModel, cfg.ClassifierTimeout, cfg.ClassifierMaxRetries)
}

func setupRouter(h *handlers.Handlers, validator middleware.TokenValidator, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode == gin.DebugMode {
		router.Use(gin.Logger())
	}

	if err := router.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		log.WithError(err).Warn("Invalid TRUSTED_PROXIES")
	}

	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))
	router.Use(middleware.SecurityHeaders())

	router.GET("/health", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitRPS, cfg.RateLimitBurst))
	api.GET("/health", h.HealthCheck)

	auth := api.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.RefreshToken)
		auth.GET("/test", h.AuthTest)
	}

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(validator))
	{
		protected.GET("/auth/me", h.Me)
		protected.POST("/auth/logout", h.Logout)

		protected.POST("/analyze/upload", h.Upload)
		protected.POST("/analyze/analyze", h.AnalyzeUpload)
		protected.POST("/analyze/image", h.AnalyzeImage)

		protected.GET("/history", h.History)
		protected.GET("/history/stats", h.Stats)
		protected.GET("/history/image/:id", h.GetAnalysis)
		protected.GET("/history/image/:id/preview", h.GetPreview)
		protected.DELETE("/history/image/:id", h.DeleteAnalysis)
	}

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Content-Length", "Accept", "Accept-Encoding", "Authorization", "X-Requested-With"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
