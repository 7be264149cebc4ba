package stores

import (
	"fmt"

	"github.com/aiqtoolkit/aiq"
)

// NewStore creates a new run store based on the configuration
func NewStore(config *StoreConfig) (RunStore, error) {
	switch config.Type {
	case "sqlite":
		return NewSQLiteStore(config)
	case "postgres":
		return NewPostgresStore(config)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", config.Type)
	}
}

// NewSQLiteStoreDefault creates a SQLite store with default settings
func NewSQLiteStoreDefault() (RunStore, error) {
	return NewSQLiteStoreSimple("aiq_runs.sqlite")
}

// FromSteps converts collected workflow steps into their stored form
func FromSteps(steps []aiq.IntermediateStep) []StepRecord {
	records := make([]StepRecord, len(steps))
	for i, step := range steps {
		records[i] = StepRecord{
			StepUUID:  step.UUID,
			EventType: string(step.EventType),
			Name:      step.Name,
			Timestamp: step.Timestamp,
			Input:     step.Input,
			Output:    step.Output,
		}
	}
	return records
}
