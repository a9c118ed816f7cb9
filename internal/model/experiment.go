package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExperimentSample records the initial state of one device in one
// experiment. At most one sample is ever stored per
// (account, device, experiment) triple; the store enforces this with a
// conditional create.
type ExperimentSample struct {
	AccountID         uuid.UUID       `db:"account_id" json:"account_id"`
	DeviceID          uint8           `db:"device_id" json:"device_id"`
	ExperimentName    string          `db:"experiment_name" json:"experiment_name"`
	InExperimentGroup bool            `db:"in_experiment_group" json:"in_experiment_group"`
	State             json.RawMessage `db:"state" json:"state"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
}
