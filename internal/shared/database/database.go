package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"pixelevents/internal/shared/config"
	"pixelevents/pkg/logger"
)

const (
	ComponentPostgres = "postgres"
	ComponentRedis    = "redis"

	connectTimeout = 5 * time.Second
	retryBackoff   = time.Second
)

// DB bundles the inbox/audit database and the Redis instance that holds
// waitlists, draw schedules, the inbox cache and rate limit windows.
type DB struct {
	PostgreSQL *gorm.DB
	Redis      *redis.Client
}

// InitDB connects both stores, retrying while they come up, and migrates
// the notification tables.
func InitDB(cfg *config.Config) (*DB, error) {
	ctx := context.Background()
	log := logger.GetDefault()

	pg, err := connectWithRetry(ctx, ComponentPostgres, cfg.Database.ConnectAttempts, func(ctx context.Context) (*gorm.DB, error) {
		return openPostgres(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}
	if err := Migrate(pg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := MigrateConstraints(pg); err != nil {
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}
	log.Info("PostgreSQL connected", "host", cfg.Database.Host, "database", cfg.Database.Name)

	rdb, err := connectWithRetry(ctx, ComponentRedis, cfg.Database.ConnectAttempts, func(ctx context.Context) (*redis.Client, error) {
		return openRedis(ctx, cfg)
	})
	if err != nil {
		closePostgres(pg)
		return nil, err
	}
	log.Info("Redis connected", "addr", cfg.Redis.Addr)

	return &DB{PostgreSQL: pg, Redis: rdb}, nil
}

func connectWithRetry[T any](ctx context.Context, component string, attempts int, open func(context.Context) (T, error)) (T, error) {
	if attempts < 1 {
		attempts = 1
	}

	var (
		conn T
		err  error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		conn, err = open(attemptCtx)
		cancel()
		if err == nil {
			return conn, nil
		}
		if attempt == attempts {
			break
		}

		logger.GetDefault().Warn("Store not reachable yet",
			"component", component,
			"attempt", attempt,
			"error", err,
		)
		select {
		case <-ctx.Done():
			return conn, ctx.Err()
		case <-time.After(retryBackoff * time.Duration(attempt)):
		}
	}
	return conn, fmt.Errorf("failed to connect to %s after %d attempts: %w", component, attempts, err)
}

func openPostgres(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	level := gormlogger.Silent
	if cfg.IsDevelopment() {
		level = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(level),
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
		PrepareStmt:                              true,
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	// Store calls carry their own deadline, so the client timeouts only
	// guard against a dead socket.
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.PoolSize / 4,
		DialTimeout:  connectTimeout,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func closePostgres(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Close() error {
	var errs []error
	if db.PostgreSQL != nil {
		if err := closePostgres(db.PostgreSQL); err != nil {
			errs = append(errs, fmt.Errorf("failed to close PostgreSQL: %w", err))
		}
	}
	if db.Redis != nil {
		if err := db.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close Redis: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	logger.GetDefault().Info("All database connections closed")
	return nil
}

// Components pings every configured store. A nil value means the store
// answered.
func (db *DB) Components(ctx context.Context) map[string]error {
	status := make(map[string]error, 2)
	if db.PostgreSQL != nil {
		status[ComponentPostgres] = pingPostgres(ctx, db.PostgreSQL)
	}
	if db.Redis != nil {
		status[ComponentRedis] = db.Redis.Ping(ctx).Err()
	}
	return status
}

func pingPostgres(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// HealthCheck fails when any store is unreachable
func (db *DB) HealthCheck(ctx context.Context) error {
	var errs []error
	for component, err := range db.Components(ctx) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", component, err))
		}
	}
	return errors.Join(errs...)
}

func (db *DB) GetRedisClient() *redis.Client {
	return db.Redis
}

func (db *DB) GetPostgreSQL() *gorm.DB {
	return db.PostgreSQL
}
