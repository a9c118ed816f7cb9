package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

type experimentSampleRepository struct {
	db *sqlx.DB
}

func NewExperimentSampleRepository(db *sqlx.DB) ExperimentSampleRepository {
	return &experimentSampleRepository{db: db}
}

// RecordInitialState is a conditional create: the primary key on
// (account_id, device_id, experiment_name) plus ON CONFLICT DO NOTHING
// guarantees at most one stored sample per triple, which is what makes
// overlapping or re-run crawls safe.
func (r *experimentSampleRepository) RecordInitialState(ctx context.Context, accountID uuid.UUID, deviceID uint8, experimentName string, inExperimentGroup bool, state json.RawMessage) (bool, error) {
	query := `
		INSERT INTO experiment_samples (account_id, device_id, experiment_name, in_experiment_group, state, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (account_id, device_id, experiment_name) DO NOTHING
	`
	result, err := r.db.ExecContext(ctx, query, accountID, deviceID, experimentName, inExperimentGroup, []byte(state))
	if err != nil {
		return false, fmt.Errorf("record initial sample: %w", err)
	}

	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record initial sample: %w", err)
	}
	return inserted > 0, nil
}
