package main

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/discovery-console/internal/catalog"
	"github.com/sells-group/discovery-console/internal/config"
	"github.com/sells-group/discovery-console/internal/discovery"
	"github.com/sells-group/discovery-console/internal/executor"
	"github.com/sells-group/discovery-console/internal/model"
	"github.com/sells-group/discovery-console/internal/resilience"
	"github.com/sells-group/discovery-console/internal/store"
)

// postgresStore adds pool lifecycle to the discovery Postgres store.
type postgresStore struct {
	*discovery.PostgresStore
	pool *pgxpool.Pool
}

func (p *postgresStore) Close() error {
	p.pool.Close()
	return nil
}

var _ store.Store = (*postgresStore)(nil)

// openStore connects to the configured backend and applies its schema.
func openStore(ctx context.Context, c *config.Config) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(c.Store.DatabaseURL)
	case "postgres":
		var pool *pgxpool.Pool
		pool, err = openPool(ctx, c.Store.DatabaseURL)
		if err == nil {
			st = &postgresStore{PostgresStore: discovery.NewPostgresStore(pool), pool: pool}
		}
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func openPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse connection string")
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping database")
	}
	return pool, nil
}

// catalogSource returns the catalog provider and the default parameters.
// A configured catalog file takes precedence over the store's catalog
// table and also supplies the defaults.
func catalogSource(c *config.Config, st store.Store) (discovery.CatalogProvider, map[string]model.QueryParameters, error) {
	var (
		provider discovery.CatalogProvider = st
		defaults map[string]model.QueryParameters
	)
	if c.Catalog.Path != "" {
		f, err := catalog.LoadFile(c.Catalog.Path)
		if err != nil {
			return nil, nil, err
		}
		provider = catalog.NewFileProvider(c.Catalog.Path)
		defaults = f.Defaults
		zap.L().Debug("using catalog file",
			zap.String("path", c.Catalog.Path),
			zap.Int("entries", len(f.Entries)),
		)
	}
	ttl := time.Duration(c.Catalog.CacheTTLSecs) * time.Second
	return catalog.NewCachedProvider(provider, ttl), defaults, nil
}

// newExecutor builds the test-execution client from config.
func newExecutor(c *config.Config) (*executor.Client, error) {
	return executor.New(executor.Options{
		BaseURL:     c.Executor.BaseURL,
		Timeout:     time.Duration(c.Executor.TimeoutSecs) * time.Second,
		RateLimit:   c.Executor.RateLimit,
		Burst:       c.Executor.Burst,
		Credentials: c.Executor.Credentials,
		Breaker:     resilience.FromBreakerConfig(c.Executor.CircuitFailureThreshold, c.Executor.CircuitResetSecs),
	})
}

// workbenchDeps wires every discovery collaborator from config and store.
func workbenchDeps(c *config.Config, st store.Store) (discovery.Deps, error) {
	provider, defaults, err := catalogSource(c, st)
	if err != nil {
		return discovery.Deps{}, err
	}
	exec, err := newExecutor(c)
	if err != nil {
		return discovery.Deps{}, err
	}
	return discovery.Deps{
		Catalog:     provider,
		Sessions:    st,
		Results:     st,
		Executor:    exec,
		Attacher:    st,
		Credentials: discovery.CredentialsFromTokens(c.Executor.Credentials),
		Runner: discovery.RunnerConfig{
			Timeout:     time.Duration(c.Discovery.TestTimeoutSecs) * time.Second,
			LockEntries: c.Discovery.LockEntries,
		},
		Defaults: defaults,
	}, nil
}
