package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/tenantkit/modules"
	projectspersistence "github.com/iota-uz/tenantkit/modules/projects/infrastructure/persistence"
	tenantservices "github.com/iota-uz/tenantkit/modules/tenants/services"
	"github.com/iota-uz/tenantkit/pkg/application"
	"github.com/iota-uz/tenantkit/pkg/configuration"
	"github.com/iota-uz/tenantkit/pkg/middleware"
	"github.com/iota-uz/tenantkit/pkg/outbox"
	"github.com/iota-uz/tenantkit/pkg/rls"
	"github.com/iota-uz/tenantkit/pkg/schemacheck"
	"github.com/iota-uz/tenantkit/pkg/store/pgstore"
	"github.com/iota-uz/tenantkit/pkg/tenancy"
	"github.com/iota-uz/tenantkit/pkg/uow"
)

// OpenPool opens the database pool with the tenant binder on its hooks.
func OpenPool(ctx context.Context, conf *configuration.Configuration, logger *logrus.Logger) (*pgxpool.Pool, error) {
	binder := rls.NewBinder(
		rls.WithSetting(conf.RLS.Setting),
		rls.WithLogger(logger.WithField("component", "rls")),
	)
	return rls.NewPool(ctx, conf.Database.Opts, binder, rls.PoolOptions{
		MaxConns:        conf.Database.MaxConns,
		MaxConnLifetime: conf.Database.MaxConnLifetime,
	})
}

// NewRedis returns nil unless the tenant cache or the rate limiter uses Redis.
func NewRedis(conf *configuration.Configuration) (*redis.Client, error) {
	if !conf.Redis.CacheEnabled && conf.RateLimit.Storage != "redis" {
		return nil, nil
	}
	opts, err := redis.ParseURL(conf.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

type tenantLookup struct {
	app application.Application
}

func (l tenantLookup) TenantIDBySlug(ctx context.Context, slug string) (uuid.UUID, error) {
	svc := l.app.Service(tenantservices.TenantService{}).(*tenantservices.TenantService)
	// Host lookups run before any tenant is known.
	return svc.TenantIDBySlug(ctx, slug)
}

func identityProvider(conf *configuration.Configuration, app application.Application) middleware.IdentityProvider {
	if conf.TenantHostSuffix != "" {
		return middleware.HostIdentityProvider{Suffix: conf.TenantHostSuffix, Lookup: tenantLookup{app: app}}
	}
	return middleware.HeaderIdentityProvider{}
}

type AppOptions struct {
	Configuration *configuration.Configuration
	Logger        *logrus.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
}

// NewApplication wires the Postgres store and loads the built-in modules.
func NewApplication(opts *AppOptions) (application.Application, error) {
	conf := opts.Configuration

	var storeOpts []pgstore.Option
	if conf.DurableEvents {
		storeOpts = append(storeOpts, pgstore.WithOutbox(outbox.NewPublisher(), pgx.Identifier{projectspersistence.OutboxTable}))
	}

	app := application.New(&application.ApplicationOptions{
		Pool:   opts.Pool,
		Logger: opts.Logger,
		Store:  pgstore.New(opts.Pool, storeOpts...),
		UnitOfWork: []uow.Option{
			uow.WithDurableEvents(conf.DurableEvents),
		},
	})

	identity := middleware.WithIdentity(identityProvider(conf, app), tenancy.NewResolver())
	if conf.RateLimit.Enabled {
		limit := tenantRateLimit(conf, opts.Redis, opts.Logger)
		resolve := identity
		identity = func(next http.Handler) http.Handler {
			return resolve(limit(next))
		}
	}

	var cache *redis.Client
	if conf.Redis.CacheEnabled {
		cache = opts.Redis
	}
	err := modules.Load(app, modules.BuiltIn(modules.BuiltInOptions{
		Identity:       identity,
		Redis:          cache,
		TenantCacheTTL: conf.Redis.TenantTTL,
	})...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// tenantRateLimit runs after identity so each tenant gets its own quota.
func tenantRateLimit(conf *configuration.Configuration, rdb *redis.Client, logger *logrus.Logger) mux.MiddlewareFunc {
	store := middleware.NewMemoryStore()
	if conf.RateLimit.Storage == "redis" && rdb != nil {
		redisStore, err := middleware.NewRedisStore(rdb)
		if err != nil {
			logger.WithError(err).Warn("Failed to create Redis store for rate limiting, falling back to memory")
		} else {
			store = redisStore
		}
	}
	return middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerPeriod: conf.RateLimit.TenantRPS,
		Store:             store,
	})
}

// VerifySchema fails when a registered table is missing isolation columns,
// its tenant_id index or, under enforcement, row level security.
func VerifySchema(ctx context.Context, app application.Application, conf *configuration.Configuration) error {
	db := stdlib.OpenDBFromPool(app.DB())
	defer db.Close()
	checker := schemacheck.New(db,
		schemacheck.WithRLS(conf.RLSEnforced()),
		schemacheck.WithLogger(logrus.NewEntry(app.Logger()).WithField("component", "schemacheck")),
	)
	return checker.Check(ctx, app.Registry().Descriptors())
}
