package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bountydesk/internal/audit"
	auditstore "bountydesk/internal/audit/store"
	"bountydesk/internal/intake"
	"bountydesk/internal/notify"
	"bountydesk/internal/platform/config"
	"bountydesk/internal/platform/database"
	"bountydesk/internal/platform/health"
	"bountydesk/internal/platform/httpserver"
	"bountydesk/internal/platform/kafka"
	"bountydesk/internal/platform/kafka/producer"
	"bountydesk/internal/platform/logger"
	"bountydesk/internal/platform/metrics"
	platformredis "bountydesk/internal/platform/redis"
	"bountydesk/internal/principal"
	"bountydesk/internal/queue"
	"bountydesk/internal/registration"
	"bountydesk/internal/session"
	transport "bountydesk/internal/transport/http"
	"bountydesk/internal/verification"
	"bountydesk/internal/verification/service"
	verificationstore "bountydesk/internal/verification/store"
	"bountydesk/migrations"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hc := health.New(cfg.Environment)
	m := metrics.New()

	// Stores fall back to memory when no database is configured, which keeps
	// local development and demos dependency-free.
	var (
		records    verification.Store
		auditLog   audit.Store
		principals principal.Store
	)
	if cfg.DatabaseURL != "" {
		dbCfg := database.DefaultConfig()
		dbCfg.URL = cfg.DatabaseURL
		pool, err := database.New(dbCfg)
		if err != nil {
			log.Error("database connection failed", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := migrations.Apply(ctx, pool.DB()); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}

		records = verificationstore.NewPostgresStore(pool.DB())
		auditLog = auditstore.NewPostgresStore(pool.DB())
		principals = principal.NewPostgresStore(pool.DB())
		hc.RegisterCheck("database", checkWithTimeout(pool.Health))
	} else {
		log.Warn("no database configured, using in-memory stores")
		records = verificationstore.NewInMemoryStore()
		auditLog = auditstore.NewInMemoryStore()
		principals = principal.NewInMemoryStore()
	}

	var cache queue.Cache = queue.NewMemoryCache()
	redisCfg := platformredis.DefaultConfig()
	redisCfg.URL = cfg.RedisURL
	redisClient, err := platformredis.New(redisCfg)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = queue.NewRedisCache(redisClient, log)
		hc.RegisterCheck("redis", checkWithTimeout(redisClient.Health))
	}

	var events notify.Producer = producer.NoopProducer{}
	if cfg.KafkaBrokers != "" {
		prod, err := producer.New(producer.Config{Brokers: cfg.KafkaBrokers}, log)
		if err != nil {
			log.Error("kafka producer failed", "error", err)
			os.Exit(1)
		}
		defer prod.Close()
		events = prod
		hc.RegisterCheck("kafka", checkWithTimeout(kafka.NewHealthChecker(cfg.KafkaBrokers).Check))
	}

	locks := verification.NewRecordLocks(cfg.StoreTimeout)
	auditor := audit.NewEmitter(auditLog, log, m, cfg.AuditRetryMax)
	publisher := notify.NewPublisher(events, notify.DefaultTopic, log)
	projector := queue.NewProjector(records, principals, cache, log, m)

	verifier := service.New(records, locks, auditor, publisher, projector, log, m)
	intaker := intake.New(records, locks, auditor, projector, log)
	registrar := registration.New(principals, records, auditor, projector, log, m)
	sessions := session.New(principals, verifier, []byte(cfg.JWTSigningKey), log)

	router := transport.NewRouter(transport.RouterDeps{
		Handler:        transport.NewHandler(verifier, intaker, projector, registrar, sessions),
		AdminValidator: sessions,
		Health:         hc,
		Logger:         log,
	})

	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr, "environment", cfg.Environment)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
}

// checkWithTimeout adapts a context-aware health probe to the handler's
// CheckFunc shape.
func checkWithTimeout(probe func(context.Context) error) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return probe(ctx)
	}
}
