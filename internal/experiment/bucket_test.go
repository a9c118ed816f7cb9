package experiment_test

import (
	"testing"

	"github.com/google/uuid"

	"pushgateway/internal/experiment"
)

func TestInExperimentGroupDeterministic(t *testing.T) {
	accountID := uuid.New()

	for deviceID := uint8(1); deviceID <= 5; deviceID++ {
		first := experiment.InExperimentGroup(accountID, deviceID, "test-experiment")
		for i := 0; i < 100; i++ {
			if experiment.InExperimentGroup(accountID, deviceID, "test-experiment") != first {
				t.Fatalf("bucket changed across calls for device %d", deviceID)
			}
		}
	}
}

func TestInExperimentGroupSplitsPopulation(t *testing.T) {
	var experimental, control int
	for i := 0; i < 1000; i++ {
		if experiment.InExperimentGroup(uuid.New(), 1, "test-experiment") {
			experimental++
		} else {
			control++
		}
	}

	if experimental == 0 || control == 0 {
		t.Fatalf("degenerate split: experimental=%d control=%d", experimental, control)
	}
}

func TestInExperimentGroupVariesByInputs(t *testing.T) {
	accountID := uuid.New()

	// Different device IDs and experiment names must be able to land
	// different buckets for the same account. XOR-folding the inputs
	// guarantees adjacent device IDs flip the low bit.
	a := experiment.InExperimentGroup(accountID, 1, "test-experiment")
	b := experiment.InExperimentGroup(accountID, 2, "test-experiment")
	if a == b {
		t.Error("adjacent device IDs landed the same bucket")
	}
}
