// Package main runs the SOC operations console backend: the event
// backbone, the incident/ticket domain services, the consumer manager,
// and the HTTP surface, as one process.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/skyport-ops/soc-backend/applications/httpapi"
	"github.com/skyport-ops/soc-backend/domain/soc"
	"github.com/skyport-ops/soc-backend/domain/ticketing"
	"github.com/skyport-ops/soc-backend/infrastructure/metrics"
	"github.com/skyport-ops/soc-backend/infrastructure/middleware"
	"github.com/skyport-ops/soc-backend/ingest"
	"github.com/skyport-ops/soc-backend/internal/platform/database"
	"github.com/skyport-ops/soc-backend/pkg/config"
	"github.com/skyport-ops/soc-backend/pkg/logger"
	"github.com/skyport-ops/soc-backend/system/events"
)

const serviceVersion = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	metrics.Init("soc-backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Open(ctx, cfg.Database.DSN)
	if err != nil {
		log.WithError(err).Fatal("connect to database")
	}
	defer db.Close()

	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)
	}

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.WithError(err).Fatal("run migrations")
		}
	}

	bus, err := events.NewBus(ctx, events.Config{
		InMemory:              cfg.EventBus.InMemory,
		RedisURL:              cfg.EventBus.RedisURL,
		FallbackOnUnavailable: cfg.EventBus.FallbackOnUnavailable,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("bind event bus")
	}
	defer bus.Close()

	socStore := soc.NewPGStore(db)
	socService := soc.NewService(socStore, bus, log)

	ticketStore := ticketing.NewPGStore(db)
	ticketService := ticketing.NewService(ticketStore, bus, log)

	slaSweep := ticketing.NewSLASweep(ticketStore, bus, log)
	if err := slaSweep.Start("*/1 * * * *"); err != nil {
		log.WithError(err).Fatal("start sla sweep")
	}
	defer slaSweep.Stop()

	dispatcher := ingest.NewDispatcher(socService, nil, log)
	consumerManager := events.NewManager(bus, dispatcher.Dispatch, log)
	consumerManager.Start()
	defer consumerManager.Stop()

	ready := new(bool)
	router := httpapi.NewRouter(httpapi.Options{
		Bus:            bus,
		SOC:            socService,
		Ticketing:      ticketService,
		Logger:         log,
		CORSOrigins:    cfg.CORS.Origins,
		ServiceVersion: serviceVersion,
		Ready:          ready,
		AuthSecret:     cfg.Auth.Secret,
		RateLimitRPS:   cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst: cfg.RateLimit.Burst,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(server, 30*time.Second, log)
	shutdown.OnShutdown("consumer-manager", consumerManager.Stop)
	shutdown.OnShutdown("sla-sweep", slaSweep.Stop)
	shutdown.OnShutdown("event-bus-context", cancel)
	shutdown.ListenForSignals()

	*ready = true
	log.WithField("addr", server.Addr).Info("soc backend listening")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal("http server failed")
	}

	shutdown.Wait()
}
