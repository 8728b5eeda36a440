package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/lead-qualifier/cmd/mainconfig"
	appconfig "github.com/wolfman30/lead-qualifier/internal/config"
	"github.com/wolfman30/lead-qualifier/pkg/logging"
)

// ErrNotConfigured is returned when a backend is selected but its
// connection settings are missing.
var ErrNotConfigured = errors.New("bootstrap: backend not configured")

// Runtime owns the shared clients (Redis, Postgres, AWS) that backends are
// built from. Clients are opened on first use.
type Runtime struct {
	Config *appconfig.Config
	Logger *logging.Logger

	redisOnce sync.Once
	redis     *redis.Client

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	pgOnce sync.Once
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
	pgErr  error

	closers []func()
}

func NewRuntime(cfg *appconfig.Config, logger *logging.Logger) *Runtime {
	if cfg == nil {
		panic("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Runtime{Config: cfg, Logger: logger}
}

// BuildRedisClient returns a configured Redis client or nil when disabled.
func BuildRedisClient(cfg *appconfig.Config) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(redisOptions)
}

// Redis returns the shared client, or nil when REDIS_ADDR is empty.
func (r *Runtime) Redis() *redis.Client {
	r.redisOnce.Do(func() {
		r.redis = BuildRedisClient(r.Config)
		if r.redis != nil {
			client := r.redis
			r.closers = append(r.closers, func() { _ = client.Close() })
		}
	})
	return r.redis
}

// SetRedis injects a client; used by tests with miniredis.
func (r *Runtime) SetRedis(client *redis.Client) {
	r.redisOnce.Do(func() { r.redis = client })
}

// AWS loads the SDK configuration once.
func (r *Runtime) AWS(ctx context.Context) (aws.Config, error) {
	r.awsOnce.Do(func() {
		r.awsCfg, r.awsErr = mainconfig.LoadAWSConfig(ctx, r.Config)
		if r.awsErr != nil {
			r.awsErr = fmt.Errorf("bootstrap: load aws config: %w", r.awsErr)
		}
	})
	return r.awsCfg, r.awsErr
}

// Postgres opens the pgx pool once.
func (r *Runtime) Postgres(ctx context.Context) (*pgxpool.Pool, error) {
	r.pgOnce.Do(func() {
		if strings.TrimSpace(r.Config.DatabaseURL) == "" {
			r.pgErr = fmt.Errorf("%w: DATABASE_URL is required", ErrNotConfigured)
			return
		}
		pool, err := pgxpool.New(ctx, r.Config.DatabaseURL)
		if err != nil {
			r.pgErr = fmt.Errorf("bootstrap: open postgres: %w", err)
			return
		}
		r.pool = pool
		r.sqlDB = stdlib.OpenDBFromPool(pool)
		r.closers = append(r.closers, func() {
			_ = r.sqlDB.Close()
			pool.Close()
		})
	})
	return r.pool, r.pgErr
}

// SQLDB returns a database/sql handle over the pgx pool.
func (r *Runtime) SQLDB(ctx context.Context) (*sql.DB, error) {
	if _, err := r.Postgres(ctx); err != nil {
		return nil, err
	}
	return r.sqlDB, nil
}

func (r *Runtime) onClose(fn func()) {
	r.closers = append(r.closers, fn)
}

// Close releases every client in reverse order of creation.
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
	r.closers = nil
}
