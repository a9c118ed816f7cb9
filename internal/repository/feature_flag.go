package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"pushgateway/internal/model"
)

type featureFlagRepository struct {
	db *sqlx.DB
}

func NewFeatureFlagRepository(db *sqlx.DB) FeatureFlagRepository {
	return &featureFlagRepository{db: db}
}

func (r *featureFlagRepository) Set(ctx context.Context, name string, active bool) error {
	query := `
		INSERT INTO feature_flags (name, active, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET
			active = EXCLUDED.active,
			updated_at = NOW()
	`
	if _, err := r.db.ExecContext(ctx, query, name, active); err != nil {
		return fmt.Errorf("set feature flag: %w", err)
	}
	return nil
}

func (r *featureFlagRepository) Delete(ctx context.Context, name string) error {
	query := `DELETE FROM feature_flags WHERE name = $1`
	if _, err := r.db.ExecContext(ctx, query, name); err != nil {
		return fmt.Errorf("delete feature flag: %w", err)
	}
	return nil
}

func (r *featureFlagRepository) GetAll(ctx context.Context) ([]model.FeatureFlag, error) {
	query := `SELECT name, active, updated_at FROM feature_flags ORDER BY name`
	var flags []model.FeatureFlag
	if err := r.db.SelectContext(ctx, &flags, query); err != nil {
		return nil, fmt.Errorf("get feature flags: %w", err)
	}
	return flags, nil
}
