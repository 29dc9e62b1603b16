package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rentora/rentora-backend/internal/inventory/cache"
	"github.com/rentora/rentora-backend/internal/inventory/consumers"
	"github.com/rentora/rentora-backend/internal/inventory/events"
	"github.com/rentora/rentora-backend/internal/inventory/handler"
	"github.com/rentora/rentora-backend/internal/inventory/locking"
	"github.com/rentora/rentora-backend/internal/inventory/service"
	"github.com/rentora/rentora-backend/pkg/config"
	"github.com/rentora/rentora-backend/pkg/database"
	"github.com/rentora/rentora-backend/pkg/httputil"
	"github.com/rentora/rentora-backend/pkg/i18n"
	"github.com/rentora/rentora-backend/pkg/logger"
	"github.com/rentora/rentora-backend/pkg/messaging"
	"github.com/rentora/rentora-backend/pkg/principal"
)

func main() {
	// Load configuration with validation (fails fast in production if required config is missing)
	cfg, err := config.LoadWithValidation("inventory-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("inventory-service", cfg.Server.Environment)
	log.Info().Str("driver", cfg.Database.Driver).Msg("starting Inventory Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to apply schema")
	}

	engineOpts := []service.EngineOption{
		service.WithOptions(service.OptionsFromConfig(&cfg.Engine)),
		service.WithLocker(locking.NewLocalLocker(cfg.Engine.LockWait)),
	}

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb, err = database.NewRedis(ctx, &cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer rdb.Close()

		engineOpts = append(engineOpts, service.WithCache(cache.NewRedisCache(rdb, cfg.Redis.CacheTTL, log)))
		if cfg.Engine.LockBackend == config.LockBackendRedis {
			engineOpts = append(engineOpts, service.WithLocker(locking.NewRedisLocker(rdb, cfg.Redis.LockTTL, cfg.Engine.LockWait)))
		}
	}

	var rmq *messaging.RabbitMQ
	if cfg.RabbitMQ.Enabled {
		rmq, err = messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		if err := rmq.DeclareDeadLetterQueue("inventory-service"); err != nil {
			log.Fatal().Err(err).Msg("failed to declare dead letter queue")
		}
		publisher, err := events.NewInventoryEventPublisher(rmq, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create event publisher")
		}
		engineOpts = append(engineOpts, service.WithPublisher(publisher))
	} else {
		log.Warn().Msg("RabbitMQ disabled; inventory events are not published")
	}

	engine := service.NewEngine(db, log, engineOpts...)
	svcs := service.NewServices(engine)

	if rmq != nil {
		startConsumer := func(ctx context.Context) error {
			c, err := consumers.NewWorkflowEventConsumer(rmq, svcs.Allocator, log)
			if err != nil {
				return err
			}
			return c.Start(ctx)
		}
		if err := startConsumer(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to start workflow event consumer")
		}
		go rmq.Watch(ctx, startConsumer)
	}

	scheduler := service.NewAuditScheduler(svcs.Ledger, cfg.Engine.AuditSchedule, log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start ledger audit scheduler")
	}

	verifier := principal.NewVerifier(&cfg.JWT)
	handlers := handler.NewHandlers(svcs, log)

	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(httputil.RequestID)
	r.Use(httputil.Logger(log))
	r.Use(httputil.Recoverer(log))
	r.Use(httputil.CORS(cfg.Server.CORSOrigins))
	r.Use(i18n.Middleware)
	r.Use(verifier.Middleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		health := map[string]any{
			"status":   "healthy",
			"service":  "inventory-service",
			"database": db.Health(r.Context()),
		}
		if rmq != nil {
			health["rabbitmq"] = rmq.Health()
		}
		if rdb != nil {
			redisStatus := "healthy"
			if err := rdb.Ping(r.Context()).Err(); err != nil {
				redisStatus = "unhealthy"
			}
			health["redis"] = redisStatus
		}
		httputil.JSON(w, http.StatusOK, health)
	})

	r.Route("/api/v1/inventory", handlers.Routes)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Cancel context to stop consumers
	cancel()
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}
