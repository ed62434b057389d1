package main

import (
	"context"
	"time"

	"routemaster/internal/api"
	"routemaster/internal/auth"
	"routemaster/internal/config"
	"routemaster/internal/logger"
	"routemaster/internal/metrics"
	"routemaster/internal/places"
	"routemaster/internal/store"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// app everything a command may need, built once from Config.
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	registry *prometheus.Registry
	monitor  *api.Monitor
	stores   *store.Stores
	places   *places.Client
	redis    *redis.Client
}

func newApp(cfg *config.Config) *app {
	log := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "routemasterctl")

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	monitor := api.NewMonitor(log)

	session := auth.NewStaticSession(cfg.API.Token, log)
	backend := api.NewClient(cfg.API.BaseURL, cfg.API.Timeout, session, log,
		api.WithMonitor(monitor), api.WithMetrics(m))

	notifier := store.NotifierFunc(func(severity store.Severity, message string) {
		Err.Printf("[%s] %s", severity, message)
	})
	stores := store.New(backend, store.Options{Notifier: notifier, Logger: log, Metrics: m})

	a := &app{
		cfg:      cfg,
		logger:   log,
		registry: registry,
		monitor:  monitor,
		stores:   stores,
	}

	var kv store.KV
	var ttl time.Duration
	switch cfg.Places.Cache {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.redis.Ping(ctx).Err(); err != nil {
			log.Warn("Redis unreachable, places cache stays in memory", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
			_ = a.redis.Close()
			a.redis = nil
			kv = store.NewMemoryKV()
		} else {
			kv = store.NewRedisKV(a.redis)
			ttl = cfg.Places.CacheTTL
		}
	default:
		kv = store.NewMemoryKV()
	}

	placesHTTP := api.NewClient("", cfg.Places.Timeout, nil, log, api.WithMonitor(monitor), api.WithMetrics(m))
	a.places = places.NewClient(placesHTTP, kv, places.Config{
		BaseURL:  cfg.Places.BaseURL,
		APIKey:   cfg.Places.APIKey,
		Language: cfg.Places.Language,
		Region:   cfg.Places.Region,
		CacheTTL: ttl,
	}, notifier, log)

	return a
}

func (a *app) Close() {
	a.stores.Close()
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.logger.Sync()
}
