package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/opencab/OpenCabBridge/internal/types"
)

// SaveLeverConfig upserts a lever and replaces its complete notch set in one
// transaction. Recalibrating a lever always writes the whole batch; partial
// notch sets never reach the database.
func (p *PostgresClient) SaveLeverConfig(ctx context.Context, cfg *types.LeverConfig) (uuid.UUID, error) {
	if err := types.ValidateNotchSet(cfg.Notches); err != nil {
		return uuid.Nil, err
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var leverID uuid.UUID
	err = tx.QueryRow(ctx, `
		INSERT INTO levers (lever_name, inverted, sim_control_id, hardware_input_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lever_name)
		DO UPDATE SET
			inverted = EXCLUDED.inverted,
			sim_control_id = EXCLUDED.sim_control_id,
			hardware_input_id = EXCLUDED.hardware_input_id,
			calibrated_at = NULL,
			updated_at = NOW()
		RETURNING id
	`, cfg.Name, cfg.Inverted, cfg.SimControlID, cfg.HardwareInputID).Scan(&leverID)

	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to upsert lever: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM notches WHERE lever_id = $1`, leverID); err != nil {
		return uuid.Nil, fmt.Errorf("failed to clear notches: %w", err)
	}

	for i := range cfg.Notches {
		n := cfg.Notches[i]
		n.Round()

		_, err := tx.Exec(ctx, `
			INSERT INTO notches (
				lever_id, notch_index, notch_type, value, min_value, max_value,
				input_min, input_max, sim_input_min, sim_input_max, description,
				bldc_detent_strength, bldc_damping, bldc_endstop_strength
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		`, leverID, n.Index, string(n.Type), n.Value, n.MinValue, n.MaxValue,
			n.InputMin, n.InputMax, n.SimInputMin, n.SimInputMax, n.Description,
			n.BLDCDetentStrength, n.BLDCDamping, n.BLDCEndstopStrength)

		if err != nil {
			return uuid.Nil, fmt.Errorf("failed to insert notch %d: %w", n.Index, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return leverID, nil
}

// GetLeverConfig loads one lever with its ordered notch list.
func (p *PostgresClient) GetLeverConfig(ctx context.Context, leverID uuid.UUID) (*types.LeverConfig, error) {
	cfg := &types.LeverConfig{}

	err := p.pool.QueryRow(ctx, `
		SELECT id, lever_name, inverted, sim_control_id, hardware_input_id,
		       calibrated_at, created_at, updated_at
		FROM levers
		WHERE id = $1
	`, leverID).Scan(&cfg.ID, &cfg.Name, &cfg.Inverted, &cfg.SimControlID,
		&cfg.HardwareInputID, &cfg.CalibratedAt, &cfg.CreatedAt, &cfg.UpdatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to load lever: %w", err)
	}

	notches, err := p.loadNotches(ctx, leverID)
	if err != nil {
		return nil, err
	}
	cfg.Notches = notches

	return cfg, nil
}

// LoadAllLeverConfigs loads every configured lever.
func (p *PostgresClient) LoadAllLeverConfigs(ctx context.Context) ([]*types.LeverConfig, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, lever_name, inverted, sim_control_id, hardware_input_id,
		       calibrated_at, created_at, updated_at
		FROM levers
		ORDER BY lever_name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query levers: %w", err)
	}
	defer rows.Close()

	levers := make([]*types.LeverConfig, 0)
	for rows.Next() {
		cfg := &types.LeverConfig{}
		err := rows.Scan(&cfg.ID, &cfg.Name, &cfg.Inverted, &cfg.SimControlID,
			&cfg.HardwareInputID, &cfg.CalibratedAt, &cfg.CreatedAt, &cfg.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lever: %w", err)
		}
		levers = append(levers, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate levers: %w", err)
	}

	for _, cfg := range levers {
		notches, err := p.loadNotches(ctx, cfg.ID)
		if err != nil {
			return nil, err
		}
		cfg.Notches = notches
	}

	return levers, nil
}

// DeleteLever removes a lever; its notches go with it (ON DELETE CASCADE).
func (p *PostgresClient) DeleteLever(ctx context.Context, leverID uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM levers WHERE id = $1`, leverID)
	if err != nil {
		return fmt.Errorf("failed to delete lever: %w", err)
	}

	if result.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}

	return nil
}

// SaveNotchRanges writes the captured hardware range of every notch and
// stamps the lever calibrated, all in one transaction. Either the whole
// lever becomes calibrated or nothing changes.
func (p *PostgresClient) SaveNotchRanges(ctx context.Context, leverID uuid.UUID, ranges []types.InputRange) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, r := range ranges {
		result, err := tx.Exec(ctx, `
			UPDATE notches
			SET input_min = $1, input_max = $2
			WHERE lever_id = $3 AND notch_index = $4
		`, types.Round2(r.Min), types.Round2(r.Max), leverID, i)

		if err != nil {
			return fmt.Errorf("failed to update notch %d: %w", i, err)
		}
		if result.RowsAffected() != 1 {
			return fmt.Errorf("notch %d not found for lever %s", i, leverID)
		}
	}

	result, err := tx.Exec(ctx, `
		UPDATE levers SET calibrated_at = NOW(), updated_at = NOW() WHERE id = $1
	`, leverID)
	if err != nil {
		return fmt.Errorf("failed to mark lever calibrated: %w", err)
	}
	if result.RowsAffected() != 1 {
		return fmt.Errorf("lever %s not found", leverID)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (p *PostgresClient) loadNotches(ctx context.Context, leverID uuid.UUID) ([]types.Notch, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT notch_index, notch_type, value, min_value, max_value,
		       input_min, input_max, sim_input_min, sim_input_max, description,
		       bldc_detent_strength, bldc_damping, bldc_endstop_strength
		FROM notches
		WHERE lever_id = $1
		ORDER BY notch_index
	`, leverID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notches: %w", err)
	}
	defer rows.Close()

	notches := make([]types.Notch, 0)
	for rows.Next() {
		var n types.Notch
		var notchType string

		err := rows.Scan(&n.Index, &notchType, &n.Value, &n.MinValue, &n.MaxValue,
			&n.InputMin, &n.InputMax, &n.SimInputMin, &n.SimInputMax, &n.Description,
			&n.BLDCDetentStrength, &n.BLDCDamping, &n.BLDCEndstopStrength)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notch: %w", err)
		}

		n.Type = types.NotchType(notchType)
		notches = append(notches, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notches: %w", err)
	}

	return notches, nil
}
