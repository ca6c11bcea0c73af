// Package store opens the document store backend selected by configuration.
package store

import (
	"context"
	"database/sql"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/vpsinv/internal/config"
	"github.com/MrSnakeDoc/vpsinv/internal/docstore"
	"github.com/MrSnakeDoc/vpsinv/internal/logger"
	redisstore "github.com/MrSnakeDoc/vpsinv/internal/store/redis"
	"github.com/MrSnakeDoc/vpsinv/internal/store/retry"
	"github.com/MrSnakeDoc/vpsinv/internal/store/sqldb"
)

// Backend is an open document store plus what is needed to maintain it.
type Backend struct {
	Name string
	Docs docstore.Store

	db      *sql.DB // set for SQL backends only
	dialect sqldb.Dialect
}

// Open connects to the backend named by cfg.Store, waiting for network
// backends to become reachable.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return &Backend{Name: cfg.Store, Docs: docstore.NewMemory(docstore.DefaultSchema)}, nil

	case config.StoreRedis:
		return openRedis(ctx, cfg, log)

	case config.StorePostgres:
		return openSQL(ctx, sqldb.Postgres, cfg.DatabaseDSN, "postgres", cfg, log)

	case config.StoreSQLite:
		return openSQL(ctx, sqldb.SQLite, cfg.SQLitePath, cfg.SQLitePath, cfg, log)

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func retryOptions(cfg *config.Config) retry.Options {
	return retry.Options{
		ConnectTimeout: cfg.ConnectTimeout,
		RetryInterval:  cfg.RetryInterval,
		MaxWait:        cfg.RetryMaxWait,
		PingTimeout:    cfg.PingTimeout,
		WarnThreshold:  cfg.WarnThreshold,
	}
}

func openRedis(ctx context.Context, cfg *config.Config, log logger.Logger) (*Backend, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.RedisAddr,
		Username:     cfg.RedisUser,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  cfg.RedisDT,
		ReadTimeout:  cfg.RedisRT,
		WriteTimeout: cfg.RedisWT,
		PoolSize:     cfg.RedisPoolSize,
	})

	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := retry.UntilReachable(ctx, "redis", cfg.RedisAddr, ping, retryOptions(cfg), log); err != nil {
		_ = client.Close()
		return nil, err
	}

	return &Backend{Name: config.StoreRedis, Docs: redisstore.NewStore(client, docstore.DefaultSchema)}, nil
}

// openSQL opens db; addr is what gets logged, never the DSN itself.
func openSQL(ctx context.Context, d sqldb.Dialect, dsn, addr string, cfg *config.Config, log logger.Logger) (*Backend, error) {
	db, err := sqldb.Open(ctx, d, dsn)
	if err != nil {
		return nil, err
	}

	if err := retry.UntilReachable(ctx, d.Name, addr, db.PingContext, retryOptions(cfg), log); err != nil {
		_ = db.Close()
		return nil, err
	}

	b := &Backend{
		Name:    d.Name,
		Docs:    sqldb.NewStore(db, d, docstore.DefaultSchema),
		db:      db,
		dialect: d,
	}
	if cfg.AutoMigrate {
		if err := b.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("database migrations applied", logger.String("backend", d.Name))
	}
	return b, nil
}

// Migrate applies pending SQL migrations. It is a no-op for non-SQL
// backends.
func (b *Backend) Migrate(ctx context.Context) error {
	if b.db == nil {
		return nil
	}
	return sqldb.Migrate(ctx, b.db, b.dialect)
}

// SQL reports whether the backend is SQL-based.
func (b *Backend) SQL() bool {
	return b.db != nil
}

// Ping checks the backend.
func (b *Backend) Ping(ctx context.Context) error {
	return b.Docs.Ping(ctx)
}

// Close releases the backend.
func (b *Backend) Close() error {
	return b.Docs.Close()
}
