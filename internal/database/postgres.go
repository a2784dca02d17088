package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

const (
	maxRetries  = 10
	retryDelay  = 5 * time.Second
	pingTimeout = 5 * time.Second
)

// Connect opens PostgreSQL through pgx's database/sql driver, retrying until
// the server answers a ping.
func Connect(ctx context.Context, url string, log zerolog.Logger) (*sql.DB, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("postgresql url could not be parsed: %w", err)
	}
	config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol
	finalURL := stdlib.RegisterConnConfig(config.ConnConfig)

	var db *sql.DB
	for i := 0; i < maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		db, err = sql.Open("pgx", finalURL)
		if err == nil {
			db.SetConnMaxLifetime(time.Minute * 3)
			db.SetMaxIdleConns(2)
			db.SetMaxOpenConns(5)

			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			pingErr := db.PingContext(pingCtx)
			cancel()

			if pingErr == nil {
				log.Info().Msg("PostgreSQL connection established.")
				return db, nil
			}
			err = pingErr
			db.Close()
		}

		if ctx.Err() == nil {
			log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxRetries).Msg("PostgreSQL unreachable, retrying in 5 seconds...")
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("postgresql unreachable after %d attempts: %w", maxRetries, err)
}

// ConnectRedis connects to Redis with the same retry policy as Connect.
func ConnectRedis(ctx context.Context, url string, log zerolog.Logger) (*redis.Client, error) {
	var rdb *redis.Client
	var err error

	opt, parseErr := redis.ParseURL(url)
	if parseErr != nil {
		return nil, fmt.Errorf("redis url could not be parsed: %w", parseErr)
	}

	for i := 0; i < maxRetries; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		rdb = redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		pingErr := rdb.Ping(pingCtx).Err()
		cancel()

		if pingErr == nil {
			log.Info().Msg("Redis connection established.")
			return rdb, nil
		}
		err = pingErr
		rdb.Close()

		if ctx.Err() == nil {
			log.Warn().Err(err).Int("attempt", i+1).Int("max_attempts", maxRetries).Msg("Redis unreachable, retrying in 5 seconds...")
		}

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("redis unreachable after %d attempts: %w", maxRetries, err)
}
