package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresKV stores settings in Postgres so several go_tube instances can
// share one key rotation index and one usage ledger.
type PostgresKV struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool and ensures the settings table exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresKV, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	_, err = pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS go_tube_settings (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("create settings table: %w", err)
	}

	slog.Info("settings postgres connected", slog.String("addr", config.ConnConfig.Host))
	return &PostgresKV{pool: pool}, nil
}

func (p *PostgresKV) Get(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := p.pool.QueryRow(ctx, `SELECT value FROM go_tube_settings WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("settings: get %s: %w", name, err)
	}
	return value, true, nil
}

func (p *PostgresKV) Set(ctx context.Context, name, value string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO go_tube_settings (name, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		name, value)
	if err != nil {
		return fmt.Errorf("settings: set %s: %w", name, err)
	}
	return nil
}

func (p *PostgresKV) Delete(ctx context.Context, name string) error {
	if _, err := p.pool.Exec(ctx, `DELETE FROM go_tube_settings WHERE name = $1`, name); err != nil {
		return fmt.Errorf("settings: delete %s: %w", name, err)
	}
	return nil
}

func (p *PostgresKV) Close() error {
	p.pool.Close()
	return nil
}
