package stores

import (
	"time"

	"gorm.io/gorm"
)

// Run records a single workflow invocation, regardless of which surface
// triggered it (CLI, HTTP, websocket, eval harness, or a schedule).
type Run struct {
	gorm.Model
	RunID            string `gorm:"uniqueIndex;not null"`
	Channel          string `gorm:"index;not null"` // "cli", "http", "ws", "eval", "schedule"
	Input            string `gorm:"type:text"`
	Output           string `gorm:"type:text"`
	Status           string `gorm:"index;not null"` // "running", "completed", "failed"
	Error            string `gorm:"type:text"`
	UseKnowledgeBase bool
	StartedAt        time.Time
	CompletedAt      *time.Time
	Steps            []StepRecord `gorm:"foreignKey:RunID;references:RunID"`
}

// StepRecord is one intermediate step of a run
type StepRecord struct {
	gorm.Model
	RunID     string `gorm:"index:idx_step_run;not null"`
	StepUUID  string `gorm:"index;not null"`
	EventType string `gorm:"not null"`
	Name      string
	Timestamp time.Time `gorm:"not null"`
	Input     string    `gorm:"type:text"`
	Output    string    `gorm:"type:text"`
}

// RunInfo holds basic run metadata for listing
type RunInfo struct {
	RunID       string `json:"run_id"`
	Channel     string `json:"channel"`
	Status      string `json:"status"`
	Input       string `json:"input"`
	StartedAt   string `json:"started_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// RunStore interface for abstracting database operations
type RunStore interface {
	// Run lifecycle
	CreateRun(run *Run) error
	CompleteRun(runID, output string, runErr error) error
	GetRun(runID string) (*Run, error)
	ListRuns(channel string, limit int) ([]RunInfo, error)

	// Step operations
	SaveSteps(runID string, steps []StepRecord) error
	FetchSteps(runID string) ([]StepRecord, error)

	// Retention
	PruneBefore(cutoff time.Time) (int64, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string `json:"type"`       // "sqlite", "postgres"
	Connection string `json:"connection"` // file path or DSN
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
	}
}
