package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"delivery-tracking-backend/config"
	"delivery-tracking-backend/internal/api"
	"delivery-tracking-backend/internal/cache"
	"delivery-tracking-backend/internal/db"
	"delivery-tracking-backend/internal/engine"
	"delivery-tracking-backend/internal/geofence"
	"delivery-tracking-backend/internal/ingest"
	"delivery-tracking-backend/internal/logger"
	"delivery-tracking-backend/internal/notification"
	"delivery-tracking-backend/internal/privacy"
	"delivery-tracking-backend/internal/session"
	"delivery-tracking-backend/internal/store"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logrus.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}

	logger.Setup(&cfg.Log)
	logrus.Infof("configuration loaded from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logrus.Fatalf("failed to initialize database: %v", err)
	}

	appStore := store.NewGormStore(gormDB)

	var backend cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		backend = cache.NewRedisCache(cache.NewRedisClient(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB))
		logrus.Infof("using redis cache at %s", cfg.Cache.RedisAddr)
	default:
		backend = cache.NewMemoryCache(cfg.Cache.LocationTTL, 2*cfg.Cache.LocationTTL)
		logrus.Info("using in-memory cache")
	}
	locations := cache.NewCurrentLocationCache(backend, cfg.Cache.LocationTTL, cfg.Cache.SessionTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	webpushOptions := &webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	var sink notification.Sink
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		sink = pool
		logrus.Infof("push notification pool started with %d workers", cfg.WorkerPool.Size)
	} else {
		logrus.Warn("VAPID keys not configured, geofence push notifications disabled")
	}

	sessions := session.NewManager(appStore, locations)
	filter := privacy.NewDefaultFilter()
	evaluator := geofence.NewEvaluator(appStore, sink)
	pipeline := ingest.NewPipeline(appStore, sessions, filter, locations, evaluator)
	eng := engine.New(appStore, sessions, pipeline, locations, filter)

	hub := api.NewHub()
	go hub.Run(ctx, eng.Events())

	router := api.NewRouter(eng, appStore, hub, cfg)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logrus.Info("shutdown signal received, stopping services")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Fatalf("HTTP server shutdown: %v", err)
	}

	logrus.Info("server gracefully stopped")
}
