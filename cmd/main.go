package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"tasks-api/internal/api"
	"tasks-api/internal/auth"
	"tasks-api/internal/config"
	"tasks-api/internal/manager"
	"tasks-api/internal/messaging"
	"tasks-api/internal/metrics"
	"tasks-api/internal/model"
	"tasks-api/internal/storage"
)

// @title Multi-Tenant Tasks API
// @version 1.0
// @description Create and list tasks in a per-tenant document store. The tenant is taken from the request subdomain.
// @host localhost:3000
// @BasePath /api/v1
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", config.DefaultPath, "path to a YAML config file")
	flag.Parse()

	log := logrus.New()

	// Load Configuration; only an explicit -config must exist
	load := config.LoadOptional
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			load = config.LoadConfig
		}
	})
	cfg, err := load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	configureLogger(log, cfg)
	log.WithField("env", cfg.App.Env).Info("configuration loaded")

	// Init Metrics
	metrics.Init()

	// Init storage pool
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.WithError(err).Warn("storage close error")
		}
	}()

	// Init RabbitMQ (optional)
	var broker manager.Broker
	if cfg.RabbitMQ.URL != "" {
		rabbitClient, err := messaging.NewRabbitClient(cfg.RabbitMQ.URL, log)
		if err != nil {
			log.Fatalf("Failed to connect to RabbitMQ: %v", err)
		}
		defer rabbitClient.Close()
		broker = rabbitClient
		log.Info("RabbitMQ connected")
	}
	tm := manager.NewTenantManager(broker, log)

	// Start background loop for updating queue depth metrics
	if broker != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					tm.RefreshQueueDepths()
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var authn *auth.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authn = auth.NewAuthenticator(cfg.Auth.JWTSecret, 0)
		log.Info("tenant token authentication enabled")
	}

	// Init API
	tasks := model.NewTasks(db, tm, log)
	apiHandler := api.NewAPI(tasks, db, authn, log)
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("services started at %d", cfg.App.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Stop HTTP server; deferred closers then release the pool and broker
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP shutdown error")
	}

	log.Info("graceful shutdown complete")
}

func configureLogger(log *logrus.Logger, cfg *config.Config) {
	if lvl, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(lvl)
	} else {
		log.WithError(err).Warn("unknown log level, keeping info")
	}
	if cfg.Log.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}
