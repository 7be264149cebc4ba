package stores

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements RunStore for SQLite databases
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(config *StoreConfig) (*SQLiteStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	store := &SQLiteStore{
		path: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreSimple creates a new SQLite store with just a file path
func NewSQLiteStoreSimple(dbPath string) (*SQLiteStore, error) {
	config := NewStoreConfig("sqlite", dbPath)
	return NewSQLiteStore(config)
}

// Connect establishes a connection to the SQLite database
func (s *SQLiteStore) Connect() error {
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&Run{}, &StepRecord{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
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
func (s *SQLiteStore) Ping() error {
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
func (s *SQLiteStore) CreateRun(run *Run) error {
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
func (s *SQLiteStore) CompleteRun(runID, output string, runErr error) error {
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
func (s *SQLiteStore) GetRun(runID string) (*Run, error) {
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

// ListRuns returns recent runs, newest first. An empty channel matches all
// channels; limit 0 returns everything.
func (s *SQLiteStore) ListRuns(channel string, limit int) ([]RunInfo, error) {
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
func (s *SQLiteStore) SaveSteps(runID string, steps []StepRecord) error {
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
func (s *SQLiteStore) FetchSteps(runID string) ([]StepRecord, error) {
	if s.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}

	var steps []StepRecord
	if err := s.db.Where("run_id = ?", runID).Order("timestamp ASC").Find(&steps).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch steps: %w", err)
	}

	return steps, nil
}

// PruneBefore deletes runs that started before the cutoff, along with their
// steps. Returns the number of runs removed.
func (s *SQLiteStore) PruneBefore(cutoff time.Time) (int64, error) {
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

func runInfos(runs []Run) []RunInfo {
	result := make([]RunInfo, len(runs))
	for i, r := range runs {
		info := RunInfo{
			RunID:     r.RunID,
			Channel:   r.Channel,
			Status:    r.Status,
			Input:     r.Input,
			StartedAt: r.StartedAt.Format(time.RFC3339),
		}
		if r.CompletedAt != nil {
			info.CompletedAt = r.CompletedAt.Format(time.RFC3339)
		}
		result[i] = info
	}
	return result
}
