package stores

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore implements RunStore for PostgreSQL databases
type PostgresStore struct {
	db  *gorm.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config *StoreConfig) (*PostgresStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}

	store := &PostgresStore{
		dsn: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	return store, nil
}

// NewPostgresStoreSimple creates a new PostgreSQL store with just a DSN
func NewPostgresStoreSimple(dsn string) (*PostgresStore, error) {
	config := NewStoreConfig("postgres", dsn)
	return NewPostgresStore(config)
}

// Connect establishes a connection to the PostgreSQL database
func (s *PostgresStore) Connect() error {
	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&Run{}, &StepRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// CreateRun inserts a run in "running" state
func (s *PostgresStore) CreateRun(run *Run) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	if run.Status == "" {
		run.Status = "running"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}

	return s.db.Create(run).Error
}

// CompleteRun marks a run as completed or failed and records its output
func (s *PostgresStore) CompleteRun(runID, output string, runErr error) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	now := time.Now()
	updates := map[string]any{
		"output":       output,
		"status":       "completed",
		"completed_at": &now,
	}
	if runErr != nil {
		updates["status"] = "failed"
		updates["error"] = runErr.Error()
	}

	result := s.db.Model(&Run{}).Where("run_id = ?", runID).Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update run %s: %w", runID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %s", runID)
	}

	return nil
}

// GetRun retrieves a run by its ID
func (s *PostgresStore) GetRun(runID string) (*Run, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var run Run
	if err := s.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to fetch run: %w", err)
	}

	return &run, nil
}

// ListRuns returns recent runs, newest first
func (s *PostgresStore) ListRuns(channel string, limit int) ([]RunInfo, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	query := s.db.Model(&Run{}).Order("started_at DESC")
	if channel != "" {
		query = query.Where("channel = ?", channel)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []Run
	if err := query.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch runs: %w", err)
	}

	return runInfos(runs), nil
}

// SaveSteps persists the intermediate steps of a run in one transaction
func (s *PostgresStore) SaveSteps(runID string, steps []StepRecord) error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}
	if len(steps) == 0 {
		return nil
	}

	tx := s.db.Begin()
	for i := range steps {
		steps[i].RunID = runID
		if err := tx.Create(&steps[i]).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to create step record: %w", err)
		}
	}

	return tx.Commit().Error
}

// FetchSteps retrieves the steps of a run in recorded order
func (s *PostgresStore) FetchSteps(runID string) ([]StepRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var steps []StepRecord
	if err := s.db.Where("run_id = ?", runID).Order("timestamp ASC").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch steps: %w", err)
	}

	return steps, nil
}

// PruneBefore deletes runs that started before the cutoff, along with their steps
func (s *PostgresStore) PruneBefore(cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}

	var old []Run
	if err := s.db.Where("started_at < ?", cutoff).Find(&old).Error; err != nil {
		return 0, fmt.Errorf("failed to find expired runs: %w", err)
	}
	if len(old) == 0 {
		return 0, nil
	}

	ids := make([]string, len(old))
	for i, r := range old {
		ids[i] = r.RunID
	}

	tx := s.db.Begin()
	if err := tx.Unscoped().Where("run_id IN ?", ids).Delete(&StepRecord{}).Error; err != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete expired steps: %w", err)
	}
	result := tx.Unscoped().Where("run_id IN ?", ids).Delete(&Run{})
	if result.Error != nil {
		tx.Rollback()
		return 0, fmt.Errorf("failed to delete expired runs: %w", result.Error)
	}

	return result.RowsAffected, tx.Commit().Error
}
