// Command doctrail-server serves the tracked document and audit history API.
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

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/persistorai/doctrail/internal/api"
	"github.com/persistorai/doctrail/internal/config"
	"github.com/persistorai/doctrail/internal/db"
	"github.com/persistorai/doctrail/internal/db/migrations"
	"github.com/persistorai/doctrail/internal/dbpool"
	"github.com/persistorai/doctrail/internal/domain"
	"github.com/persistorai/doctrail/internal/feed"
	"github.com/persistorai/doctrail/internal/middleware"
	"github.com/persistorai/doctrail/internal/replay"
	"github.com/persistorai/doctrail/internal/service"
	"github.com/persistorai/doctrail/internal/store"
	"github.com/persistorai/doctrail/internal/store/badgerstore"
	"github.com/persistorai/doctrail/internal/ws"
)

const (
	shutdownTimeout   = 15 * time.Second
	retentionInterval = time.Hour
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Error("server.exit")
		os.Exit(1)
	}
}

// backend is the opened storage plus what the rest of main needs to know
// about it.
type backend struct {
	store domain.Store
	pool  *dbpool.Pool
}

func (b *backend) close(log *logrus.Logger) {
	if err := b.store.Close(); err != nil {
		log.WithError(err).Warn("store.close_failed")
	}

	if b.pool != nil {
		b.pool.Close()
	}
}

func openBackend(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*backend, error) {
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), dbpool.Options{MaxConns: int32(cfg.DBMaxConns)}) //nolint:gosec // validated to 1..200.
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}

		if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
			pool.Close()

			return nil, err
		}

		return &backend{store: store.New(pool, log), pool: pool}, nil
	default:
		var (
			s   *badgerstore.Store
			err error
		)

		if cfg.BadgerPath == "" {
			log.Warn("badger.in_memory")
			s, err = badgerstore.OpenInMemory(log)
		} else {
			s, err = badgerstore.Open(badgerstore.DefaultConfig(cfg.BadgerPath), log)
		}

		if err != nil {
			return nil, fmt.Errorf("opening badger store: %w", err)
		}

		return &backend{store: s}, nil
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	level, _ := logrus.ParseLevel(cfg.LogLevel) //nolint:errcheck // validated in config.Load.
	log.SetLevel(level)

	defs, err := config.LoadTracking(cfg.TrackingConfig)
	if err != nil {
		return err
	}

	types, specs, err := defs.Build()
	if err != nil {
		return fmt.Errorf("building tracking registries: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.close(log)

	hub := ws.NewHub(log, ws.BufferConfig{
		MaxLen:      cfg.WSReplayLimit,
		ScopeMaxLen: cfg.WSReplayScopeLimits,
	})

	var sinks []service.FeedSink

	if cfg.KafkaEnabled() {
		kafka := feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer kafka.Close() //nolint:errcheck // best-effort flush on exit.

		sinks = append(sinks, kafka)
	}

	// With Postgres the notify bridge feeds the hub, so records committed by
	// other instances reach local clients too.
	if be.pool == nil {
		sinks = append(sinks, ws.NewHubSink(hub))
	}

	worker := service.NewFeedWorker(log, cfg.FeedQueueSize, sinks...)

	documents := service.NewDocumentService(be.store, types, specs, worker, log)
	engine := replay.NewEngine(types, specs, be.store, documents, log)
	history := service.NewHistoryService(be.store, specs, engine, log)
	tracking := service.NewTrackingService(specs)

	// Separate context so in-flight requests can finish before the
	// background loops stop.
	appCtx, cancelApp := context.WithCancel(context.Background())
	defer cancelApp()

	router := api.NewRouter(appCtx, &api.RouterDeps{
		Log:         log,
		Store:       be.store,
		Hub:         hub,
		Documents:   documents,
		History:     history,
		Tracking:    tracking,
		CORSOrigins: cfg.CORSOrigins,
		Version:     config.Version,
		Backend:     cfg.StorageBackend,
		RateLimit: middleware.RateLimitConfig{
			Actor:     middleware.Limit{RPS: cfg.RateLimitRPS, Burst: cfg.RateLimitBurst},
			Anonymous: middleware.Limit{RPS: cfg.AnonRateLimitRPS, Burst: cfg.AnonRateLimitBurst},
		},
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(appCtx)

	g.Go(func() error {
		hub.Run(gctx)

		return nil
	})

	g.Go(func() error {
		worker.Run(gctx)

		return nil
	})

	if be.pool != nil {
		bridge := db.NewNotifyBridge(log, be.pool, hub)
		if err := bridge.Start(gctx); err != nil {
			cancelApp()
			_ = g.Wait() //nolint:errcheck // loops return nil.

			return err
		}
	}

	if cfg.HistoryRetentionDays > 0 {
		g.Go(func() error {
			history.RunRetention(gctx, cfg.HistoryRetentionDays, retentionInterval)

			return nil
		})
	}

	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr(),
			"backend": cfg.StorageBackend,
			"version": config.Version,
			"types":   len(specs.Types()),
		}).Info("server.listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		select {
		case <-ctx.Done():
			log.Info("server.shutting_down")
		case <-gctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)

		// Stop the hub and the feed worker once no request can enqueue more.
		hub.Shutdown()
		cancelApp()

		if err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("server.stopped")

	return nil
}
