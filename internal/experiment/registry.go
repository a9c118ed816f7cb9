package experiment

import (
	"fmt"
	"sort"
)

// Dependencies is handed to experiment factories at command construction.
type Dependencies struct {
	Sender NewMessageSender
}

// Factory builds one experiment variant from shared dependencies.
type Factory func(deps Dependencies) Experiment

var factories = map[string]Factory{
	"idle-device-reminder": func(deps Dependencies) Experiment {
		return NewIdleDeviceReminderExperiment(deps.Sender, DefaultIdleThreshold)
	},
}

// Build constructs the named experiment, or fails if the name is unknown.
func Build(name string, deps Dependencies) (Experiment, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown experiment: %q (known: %v)", name, Names())
	}
	return factory(deps), nil
}

// Names lists the registered experiment names in stable order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
