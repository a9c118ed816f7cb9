package experiment

import (
	"context"
	"encoding/binary"
	"encoding/json"

	"github.com/google/uuid"

	"pushgateway/internal/model"
)

// Experiment is a pluggable rollout strategy. Each concrete experiment
// supplies all five operations; any of them may fail for one device without
// being fatal to the strategy.
type Experiment interface {
	// Name identifies the experiment. It feeds both the sample record and
	// the bucket assignment, so it must be stable across runs.
	Name() string

	// IsDeviceEligible reports whether the device participates at all.
	IsDeviceEligible(ctx context.Context, account *model.Account, device *model.Device) (bool, error)

	// State captures a snapshot of the device's relevant state at enrollment
	// time, serialized into the sample record.
	State(ctx context.Context, account *model.Account, device *model.Device) (json.RawMessage, error)

	ApplyExperimentTreatment(ctx context.Context, account *model.Account, device *model.Device) error
	ApplyControlTreatment(ctx context.Context, account *model.Account, device *model.Device) error
}

// InExperimentGroup deterministically assigns a device to the experiment
// group (true) or control group (false). The three identifiers are hashed
// independently, folded with XOR, and the low bit of the fold decides the
// group. The same fold runs at sample-recording and treatment time, so a
// device's recorded group and its applied treatment can never disagree.
func InExperimentGroup(accountID uuid.UUID, deviceID uint8, experimentName string) bool {
	hash := uuidHash(accountID) ^ uint32(deviceID) ^ stringHash(experimentName)
	return hash&1 != 0
}

// uuidHash folds the 128-bit identifier into 32 bits with XOR.
func uuidHash(id uuid.UUID) uint32 {
	var hash uint32
	for i := 0; i < len(id); i += 4 {
		hash ^= binary.BigEndian.Uint32(id[i : i+4])
	}
	return hash
}

// stringHash is a 31-multiplier rolling hash over the raw bytes.
func stringHash(s string) uint32 {
	var hash uint32
	for i := 0; i < len(s); i++ {
		hash = 31*hash + uint32(s[i])
	}
	return hash
}
