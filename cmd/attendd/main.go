package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"attendance-backend/config"
	"attendance-backend/internal/api"
	"attendance-backend/internal/cache"
	"attendance-backend/internal/db"
	"attendance-backend/internal/export"
	"attendance-backend/internal/logging"
	"attendance-backend/internal/notify"
	"attendance-backend/internal/rollover"
	"attendance-backend/internal/service"
	"attendance-backend/internal/store"
	"attendance-backend/internal/timer"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	log := logging.Setup(cfg.Env)
	log.Info("configuration loaded", slog.String("path", configPath), slog.String("env", cfg.Env))

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		log.Error("failed to initialize database", logging.Err(err))
		os.Exit(1)
	}
	appStore := store.NewGormStore(gormDB)
	log.Info("database initialized", slog.String("driver", cfg.Database.Driver))

	var flagCache cache.Cache
	if cfg.Redis.Addr != "" {
		redisCache, err := cache.NewRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Prefix)
		if err != nil {
			log.Error("failed to connect to redis", logging.Err(err))
			os.Exit(1)
		}
		defer redisCache.Close()
		flagCache = redisCache
		log.Info("redis cache connected", slog.String("addr", cfg.Redis.Addr))
	} else {
		flagCache = cache.NewMemory(time.Hour, 10*time.Minute)
		log.Info("using in-process cache")
	}

	var notifier notify.Notifier
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	} else {
		notifier = &notify.Logger{Log: log}
		log.Warn("no webhook configured, notifications go to the log")
	}
	notifier = notify.NewDeduper(notifier, cfg.Notify.DedupWindow)

	timers := timer.NewManager(log)
	timers.SetPollInterval(cfg.Timer.Poll, cfg.Timer.ErrorBackoff)

	svc := service.New(appStore, timers, notifier, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Re-arm sessions that were open when the previous process stopped.
	if err := svc.RecoverSessions(ctx); err != nil {
		log.Error("session recovery failed", logging.Err(err))
	}

	exporter := export.NewCSV(appStore, cfg.Export.Dir)
	orch := rollover.New(svc, appStore, flagCache, exporter, notifier, log)
	orch.SetTick(cfg.Rollover.Tick)
	orch.SetMaxConcurrent(cfg.Rollover.MaxConcurrentGroups)
	go orch.Run(ctx)

	router := api.NewRouter(svc, orch, &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Info("HTTP server starting", slog.Int("port", cfg.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", logging.Err(err))
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("shutdown signal received, stopping services")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown failed", logging.Err(err))
	}

	// Cancelled timers keep their reference messages; the next start
	// recovers the sessions from the store.
	timers.StopAll(true)

	log.Info("stopped")
}
