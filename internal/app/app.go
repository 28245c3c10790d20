// Package app assembles the adapters and services described by a config.Config.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/simaogato/tldpricing-backend/internal/adapter/cache"
	"github.com/simaogato/tldpricing-backend/internal/adapter/events"
	"github.com/simaogato/tldpricing-backend/internal/adapter/repository/memory"
	"github.com/simaogato/tldpricing-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/tldpricing-backend/internal/adapter/upstream"
	"github.com/simaogato/tldpricing-backend/internal/config"
	"github.com/simaogato/tldpricing-backend/internal/domain"
	"github.com/simaogato/tldpricing-backend/internal/usecase/derivation"
	"github.com/simaogato/tldpricing-backend/internal/usecase/importer"
	"github.com/simaogato/tldpricing-backend/internal/usecase/pricesync"
	"github.com/simaogato/tldpricing-backend/internal/usecase/reconcile"
	"github.com/simaogato/tldpricing-backend/internal/usecase/report"
)

// App holds the wired services of one process
type App struct {
	Config config.Config
	Logger zerolog.Logger
	Policy domain.PricingPolicy
	Clock  clockwork.Clock

	Store     domain.PricingStore
	Cache     domain.DerivedPriceCache
	Source    domain.CatalogSource
	Publisher domain.EventPublisher

	Reconciler *reconcile.ReconcileService
	Sync       *pricesync.SyncService
	Report     *report.ReportService
	Importer   *importer.CatalogImporter

	db      *postgres.DB
	closers []io.Closer
}

// Options adjust how New builds the App
type Options struct {
	// Clock overrides the real clock
	Clock clockwork.Clock
	// Source overrides the HTTP upstream client
	Source domain.CatalogSource
	// SkipMigrations leaves the schema untouched on startup
	SkipMigrations bool
}

// New connects every configured backend and wires the services.
// Logic:
// 1. Resolve the pricing policy; invalid settings are logged and fall back.
// 2. Open the store (postgres, migrated unless skipped, or memory).
// 3. Open the cache (postgres table, redis or memory) and the event publisher.
// 4. Build the services over those ports.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Logger: logger, Clock: opts.Clock}
	if a.Clock == nil {
		a.Clock = clockwork.NewRealClock()
	}

	policy, err := cfg.PricingPolicy()
	if err != nil {
		logger.Warn().Err(err).Msg("invalid pricing settings, using fallbacks")
	}
	a.Policy = policy

	if err := a.openStore(ctx, opts.SkipMigrations); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openCache(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.openPublisher(); err != nil {
		a.Close()
		return nil, err
	}

	a.Source = opts.Source
	if a.Source == nil {
		a.Source = upstream.NewClient(cfg.UpstreamURL, cfg.UpstreamTimeout, cfg.UpstreamRetries, logger.With().Str("component", "upstream").Logger())
	}

	pipeline := derivation.NewPipeline(cfg.Location())
	a.Reconciler = reconcile.NewReconcileService(a.Store, a.Cache, a.Publisher, a.Clock, logger.With().Str("component", "reconcile").Logger())
	a.Sync = pricesync.NewSyncService(a.Source, a.Store, pipeline, a.Reconciler, a.Clock, cfg.Workers, logger.With().Str("component", "sync").Logger())
	a.Report = report.NewReportService(a.Store, a.Cache, a.Source, pipeline, a.Clock, cfg.Comparison(), logger.With().Str("component", "report").Logger())
	a.Importer = importer.NewCatalogImporter(a.Store, logger.With().Str("component", "import").Logger())

	return a, nil
}

func (a *App) openStore(ctx context.Context, skipMigrations bool) error {
	if a.Config.StorageBackend == config.StorageBackendMemory {
		a.Store = memory.NewPricingStore(a.Config.CurrencyID)
		a.Logger.Warn().Msg("using in-memory pricing store, nothing will be persisted")
		return nil
	}

	db, err := postgres.NewDB(ctx, a.Config.DatabaseURL, a.Config.MaxDBConns)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	a.closers = append(a.closers, db)

	if !skipMigrations {
		applied, err := db.Migrate(ctx)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			a.Logger.Info().Ints64("versions", applied).Msg("applied database migrations")
		}
	}

	a.Store = postgres.NewPricingRepository(db, a.Config.CurrencyID)
	return nil
}

func (a *App) openCache(ctx context.Context) error {
	switch a.Config.CacheBackend {
	case config.CacheBackendRedis:
		client, err := cache.Connect(ctx, a.Config.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, client)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("failed to ping redis: %w", err)
		}
		a.Cache = cache.NewRedisPriceCache(client, a.Config.CacheTTL, a.Clock)
	case config.CacheBackendMemory:
		a.Cache = memory.NewPriceCache(a.Clock)
	default:
		if a.db == nil {
			return fmt.Errorf("cache backend %q needs the postgres store", a.Config.CacheBackend)
		}
		a.Cache = postgres.NewPriceCacheRepository(a.db)
	}
	return nil
}

func (a *App) openPublisher() error {
	if len(a.Config.KafkaBrokers) == 0 {
		a.Publisher = events.NewLoggingPublisher(a.Logger.With().Str("component", "events").Logger())
		return nil
	}

	publisher, err := events.NewKafkaPublisher(a.Config.KafkaBrokers, a.Config.KafkaTopic)
	if err != nil {
		return fmt.Errorf("failed to create kafka publisher: %w", err)
	}
	a.closers = append(a.closers, publisher)
	a.Publisher = publisher
	return nil
}

// Migrate applies pending schema migrations. It is a no-op for the memory store.
func (a *App) Migrate(ctx context.Context) ([]int64, error) {
	if a.db == nil {
		return nil, nil
	}
	return a.db.Migrate(ctx)
}

// MigrationVersion reports the current schema version, zero for the memory store
func (a *App) MigrationVersion(ctx context.Context) (int64, error) {
	if a.db == nil {
		return 0, nil
	}
	return a.db.MigrationVersion(ctx)
}

// Close releases every connection in reverse order of opening
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errs
}

// NewLogger builds the process logger: JSON by default, human readable when format is "console"
func NewLogger(cfg config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stderr
	}
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(cfg.Level()).With().Timestamp().Logger()
}
