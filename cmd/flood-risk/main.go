package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/joho/godotenv"
	"github.com/valkey-io/valkey-go"

	"github.com/mr1hm/go-flood-risk/internal/api"
	"github.com/mr1hm/go-flood-risk/internal/broadcast"
	"github.com/mr1hm/go-flood-risk/internal/config"
	"github.com/mr1hm/go-flood-risk/internal/explain"
	"github.com/mr1hm/go-flood-risk/internal/forecast"
	"github.com/mr1hm/go-flood-risk/internal/geocode"
	"github.com/mr1hm/go-flood-risk/internal/ingestion"
	"github.com/mr1hm/go-flood-risk/internal/logging"
	"github.com/mr1hm/go-flood-risk/internal/observability"
	"github.com/mr1hm/go-flood-risk/internal/openweather"
	"github.com/mr1hm/go-flood-risk/internal/predict"
	"github.com/mr1hm/go-flood-risk/internal/publish"
	"github.com/mr1hm/go-flood-risk/internal/repository"
	"github.com/mr1hm/go-flood-risk/internal/throttle"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatalf("Fatal while loading config: %v", err)
	}
	logger := logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("Server starting", "host", cfg.Server.Host, "port", cfg.Server.Port, "db", cfg.DB.Driver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := repository.Open(ctx, cfg.DB.Driver, cfg.DB.Path, cfg.DB.DSN)
	if err != nil {
		logging.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Coordinates
	nominatim := geocode.NewClient(geocode.Options{
		BaseURL:   cfg.Geocoder.URL,
		Region:    cfg.Geocoder.Region,
		UserAgent: cfg.Geocoder.UserAgent,
		Timeout:   cfg.Geocoder.Timeout,
	}, throttle.NewGate(cfg.Geocoder.Spacing), metrics, logger)

	var cache geocode.Cache = geocode.NewLRUCache(cfg.Geocoder.CacheSize)
	if cfg.Geocoder.ValkeyAddr != "" {
		vc, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{cfg.Geocoder.ValkeyAddr}})
		if err != nil {
			logging.Fatalf("Failed to connect to valkey: %v", err)
		}
		defer vc.Close()
		cache = geocode.NewValkeyCache(vc, "flood-risk:geocode", cfg.Geocoder.CacheTTL)
		slog.Info("using valkey geocode cache", "addr", cfg.Geocoder.ValkeyAddr)
	}
	resolver := geocode.NewCachedResolver(nominatim, cache, metrics, logger)

	// Forecasts
	weather := openweather.NewClient(cfg.Weather.URL, cfg.Weather.APIKey, cfg.Weather.Timeout,
		throttle.NewGate(cfg.Weather.Spacing), metrics)
	orchestrator := forecast.NewOrchestrator(resolver, weather, forecast.NewArchiveSource(store, logger),
		cfg.Acquisition.CallTimeout, metrics, logger)

	// Explanations
	var capability explain.Capability = explain.Unavailable{}
	if cfg.ExplainAvailable() {
		chat, err := explain.NewChatClient(cfg.Explain.APIKey, cfg.Explain.BaseURL, cfg.Explain.Timeout)
		if err != nil {
			logging.Fatalf("Failed to create chat client: %v", err)
		}
		capability = explain.NewLLMCapability(chat, cfg.Explain.Model, cfg.Explain.Temperature)
	} else {
		slog.Warn("LLM explanations disabled, default explanations will be used")
	}
	explainer := explain.NewExplainer(capability, cfg.Explain.Timeout, metrics, logger)

	// Sinks
	broadcaster := broadcast.NewBroadcaster(16)
	sinks := []predict.Sink{broadcaster}
	var kafkaSink *publish.KafkaSink
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaSink = publish.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
		sinks = append(sinks, kafkaSink)
		slog.Info("publishing predictions to kafka", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	svc := predict.NewService(store, orchestrator, explainer, predict.Options{
		HazardTimeout:    cfg.Acquisition.CallTimeout,
		BatchConcurrency: cfg.Batch.Concurrency,
		BatchPause:       cfg.Batch.Pause,
	}, clock, metrics, logger, sinks...)

	// Keep the archived forecasts fresh for fallback
	var mgr *ingestion.Manager
	if cfg.Refresh.Enabled {
		mgr = ingestion.NewManager(ingestion.Options{
			Interval:   cfg.Refresh.Interval,
			Workers:    cfg.Refresh.Workers,
			BufferSize: cfg.Refresh.BufferSize,
		}, store, resolver, weather, store, clock, metrics, logger)
		mgr.Start(ctx)
	}

	// Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false, // Set to false when using wildcard origins
	}))
	router.Use(api.RateLimitMiddleware(cfg.Server.RateLimitRPS))

	handler := api.NewHandler(svc, broadcaster, cfg.Batch.MaxLocalities, logger)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down...")

	cancel()
	if mgr != nil {
		mgr.Stop()
	}
	broadcaster.Close() // ends open SSE streams

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if kafkaSink != nil {
		if err := kafkaSink.Close(); err != nil {
			slog.Error("kafka writer close error", "error", err)
		}
	}

	slog.Info("shutdown complete")
}
