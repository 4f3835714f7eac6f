package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/opencab/OpenCabBridge/internal/config"
)

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(cfg config.DatabaseConfig) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

// EnsureSchema creates the lever tables if they do not exist yet. Safe
// to run on every startup.
func (p *PostgresClient) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS levers (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			lever_name TEXT NOT NULL UNIQUE,
			inverted BOOLEAN NOT NULL DEFAULT FALSE,
			sim_control_id TEXT NOT NULL,
			hardware_input_id TEXT NOT NULL,
			calibrated_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS notches (
			lever_id UUID NOT NULL REFERENCES levers(id) ON DELETE CASCADE,
			notch_index INTEGER NOT NULL,
			notch_type TEXT NOT NULL,
			value DOUBLE PRECISION,
			min_value DOUBLE PRECISION,
			max_value DOUBLE PRECISION,
			input_min DOUBLE PRECISION,
			input_max DOUBLE PRECISION,
			sim_input_min DOUBLE PRECISION,
			sim_input_max DOUBLE PRECISION,
			description TEXT,
			bldc_detent_strength INTEGER,
			bldc_damping INTEGER,
			bldc_endstop_strength INTEGER,
			PRIMARY KEY (lever_id, notch_index)
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresClient) Close() {
	p.pool.Close()
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}
