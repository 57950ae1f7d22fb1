package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"parking-service/internal/cache"
	"parking-service/internal/clock"
	"parking-service/internal/config"
	"parking-service/internal/db"
	"parking-service/internal/events"
	httpapi "parking-service/internal/http"
	"parking-service/internal/http/middleware"
	"parking-service/internal/logger"
	"parking-service/internal/metrics"
	"parking-service/internal/repository"
	"parking-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New("prod")
		l.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.App.Env).With().Str("service", cfg.App.Name).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Store.Driver).Msg("store init failed")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("ticket events enabled")
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close event publisher")
		}
	}()

	var entryMiddleware []gin.HandlerFunc
	if cfg.Redis.Addr != "" {
		redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer redisClient.Close()
		entryMiddleware = append(entryMiddleware, middleware.Idempotency(redisClient, log))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("idempotency keys enabled")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	parkingService := service.NewParkingService(store, clock.Real(), publisher, metrics.New(reg), log)

	r := httpapi.NewRouter(cfg, log, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpapi.NewHandler(parkingService, cfg, log).Register(r, entryMiddleware...)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.App.Env).Msg("parking service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	log.Info().Msg("shutdown complete")
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (service.TicketStore, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("using in-memory ticket store, tickets are lost on restart")
		return repository.NewMemoryStore(), nil
	}

	gdb, err := db.Open(ctx, cfg.Store.DSN, log)
	if err != nil {
		return nil, err
	}
	return repository.NewTicketRepository(gdb), nil
}
