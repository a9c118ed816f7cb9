package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"pushgateway/internal/model"
)

// AccountRepository is the directory of accounts and their devices. It owns
// all device token state; callers never mutate tokens directly and always go
// through UpdateDevice so concurrent re-registrations serialize on the
// database row.
type AccountRepository interface {
	// GetByAccountIdentifier resolves an account, with devices, by its
	// stable identifier. Returns ErrAccountNotFound if absent.
	GetByAccountIdentifier(ctx context.Context, identifier uuid.UUID) (*model.Account, error)

	// UpdateDevice applies mutate to the named device inside a transaction
	// against the freshly-read row and returns the post-mutation account.
	UpdateDevice(ctx context.Context, account *model.Account, deviceID uint8, mutate func(*model.Device)) (*model.Account, error)

	// StreamAll lazily produces every account, forward-only, in identifier
	// order. The error channel receives at most one error, after the account
	// channel closes.
	StreamAll(ctx context.Context, batchSize int) (<-chan *model.Account, <-chan error)
}

// ExperimentSampleRepository stores per-device experiment state with
// write-if-absent semantics.
type ExperimentSampleRepository interface {
	// RecordInitialState conditionally creates a sample for the
	// (account, device, experiment) triple. Returns true if a new record was
	// stored and false if one was already present.
	RecordInitialState(ctx context.Context, accountID uuid.UUID, deviceID uint8, experimentName string, inExperimentGroup bool, state json.RawMessage) (bool, error)
}

// FeatureFlagRepository persists operator-controlled feature flags.
type FeatureFlagRepository interface {
	Set(ctx context.Context, name string, active bool) error
	Delete(ctx context.Context, name string) error
	GetAll(ctx context.Context) ([]model.FeatureFlag, error)
}
