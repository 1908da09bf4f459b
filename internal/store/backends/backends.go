// Package backends opens the store.Store selected by configuration.
package backends

import (
	"context"
	"fmt"

	"offer-api/internal/config"
	"offer-api/internal/store"
	"offer-api/internal/store/hydrastore"
	"offer-api/internal/store/memstore"
	"offer-api/internal/store/mongostore"
	"offer-api/internal/store/redisstore"
	"offer-api/internal/store/sqlstore"
)

// Open connects to the configured backend. Every backend scopes its keys by
// cfg.Namespace.
func Open(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return memstore.New(), nil
	case config.BackendSQLite:
		return opened(sqlstore.Open(ctx, sqlstore.DriverSQLite, cfg.SQLitePath, cfg.Namespace))
	case config.BackendPostgres:
		return opened(sqlstore.Open(ctx, sqlstore.DriverPostgres, cfg.PostgresDSN, cfg.Namespace))
	case config.BackendMySQL:
		return opened(sqlstore.Open(ctx, sqlstore.DriverMySQL, cfg.MySQLDSN, cfg.Namespace))
	case config.BackendRedis:
		return opened(redisstore.New(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.Namespace))
	case config.BackendMongo:
		return opened(mongostore.New(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.Namespace))
	case config.BackendHydraide:
		return opened(hydrastore.New(ctx, hydrastore.Config{
			Host:         cfg.HydraideHost,
			CertFilePath: cfg.HydraideCert,
			Namespace:    cfg.Namespace,
		}))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// opened keeps a failed open from returning a non-nil interface that holds
// a nil pointer.
func opened[S store.Store](s S, err error) (store.Store, error) {
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return s, nil
}
