// Package eval runs a workflow against a labeled dataset and scores the
// generated answers with configurable evaluators.
package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
	"github.com/aiqtoolkit/aiq/stores"
)

const defaultMaxConcurrency = 4

var logger = log.New(os.Stdout, "[eval] ", log.LstdFlags)

// RowResult is the outcome of a single dataset entry
type RowResult struct {
	ID         string             `json:"id"`
	Question   string             `json:"question"`
	Expected   string             `json:"expected"`
	Generated  string             `json:"generated"`
	Error      string             `json:"error,omitempty"`
	Scores     map[string]float64 `json:"scores,omitempty"`
	DurationMS int64              `json:"duration_ms"`
}

// Report is the full output of an evaluation run
type Report struct {
	Dataset   string             `json:"dataset"`
	Workflow  string             `json:"workflow"`
	Rows      []RowResult        `json:"rows"`
	Averages  map[string]float64 `json:"averages"`
	Total     int                `json:"total"`
	Failed    int                `json:"failed"`
	StartedAt string             `json:"started_at"`
	Duration  string             `json:"duration"`
}

// Runner evaluates a workflow against a dataset
type Runner struct {
	workflow   *aiq.Workflow
	cfg        config.EvalConfig
	evaluators []Evaluator
	store      stores.RunStore
}

// NewRunner builds the configured evaluators and returns a runner.
// The eval section must name a dataset.
func NewRunner(workflow *aiq.Workflow, cfg config.EvalConfig) (*Runner, error) {
	if cfg.Dataset == "" {
		return nil, fmt.Errorf("eval requires a dataset")
	}

	evaluators := make([]Evaluator, 0, len(cfg.Evaluators))
	for _, comp := range cfg.Evaluators {
		evaluator, err := NewEvaluator(comp.Type, comp.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to build evaluator: %w", err)
		}
		evaluators = append(evaluators, evaluator)
	}
	if len(evaluators) == 0 {
		evaluators = append(evaluators, exactMatch{})
	}

	return &Runner{
		workflow:   workflow,
		cfg:        cfg,
		evaluators: evaluators,
	}, nil
}

// SetStore enables run persistence; each dataset entry becomes a run on
// the "eval" channel.
func (r *Runner) SetStore(store stores.RunStore) {
	r.store = store
}

// Run evaluates every dataset entry with bounded concurrency and returns
// the report. Per-row workflow failures are recorded in the report rather
// than aborting the run.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	entries, err := LoadDataset(r.cfg.Dataset)
	if err != nil {
		return nil, err
	}

	concurrency := r.cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = defaultMaxConcurrency
	}
	if concurrency > len(entries) {
		concurrency = len(entries)
	}
	logger.Printf("Evaluating %d entries with concurrency %d", len(entries), concurrency)

	start := time.Now()
	rows := make([]RowResult, len(entries))

	var wg sync.WaitGroup
	sem := make(chan struct{}, concurrency)
	for i, entry := range entries {
		wg.Add(1)
		go func(i int, entry Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			rows[i] = r.evaluateEntry(ctx, entry)
		}(i, entry)
	}
	wg.Wait()

	report := &Report{
		Dataset:   r.cfg.Dataset,
		Workflow:  r.workflow.Entry().Name,
		Rows:      rows,
		Total:     len(rows),
		StartedAt: start.Format(time.RFC3339),
		Duration:  time.Since(start).Round(time.Millisecond).String(),
	}
	report.Averages = r.averages(rows)
	for _, row := range rows {
		if row.Error != "" {
			report.Failed++
		}
	}
	logger.Printf("Finished: %d/%d succeeded in %s", report.Total-report.Failed, report.Total, report.Duration)

	return report, nil
}

func (r *Runner) evaluateEntry(ctx context.Context, entry Entry) RowResult {
	row := RowResult{
		ID:       entry.ID,
		Question: entry.Question,
		Expected: entry.Answer,
	}

	runID := uuid.New().String()
	if r.store != nil {
		createErr := r.store.CreateRun(&stores.Run{
			RunID:            runID,
			Channel:          "eval",
			Input:            entry.Question,
			UseKnowledgeBase: r.cfg.UseKnowledgeBase,
			Status:           "running",
			StartedAt:        time.Now(),
		})
		if createErr != nil {
			logger.Printf("Warning: failed to record run for entry %s: %v", entry.ID, createErr)
		}
	}

	start := time.Now()
	output, steps, err := r.workflow.Run(ctx, entry.Question, r.cfg.UseKnowledgeBase)
	row.DurationMS = time.Since(start).Milliseconds()
	if r.store != nil {
		if saveErr := r.store.SaveSteps(runID, stores.FromSteps(steps)); saveErr != nil {
			logger.Printf("Warning: failed to save steps for entry %s: %v", entry.ID, saveErr)
		}
		if completeErr := r.store.CompleteRun(runID, output, err); completeErr != nil {
			logger.Printf("Warning: failed to complete run for entry %s: %v", entry.ID, completeErr)
		}
	}
	if err != nil {
		logger.Printf("Entry %s failed: %v", entry.ID, err)
		row.Error = err.Error()
		return row
	}

	row.Generated = output
	row.Scores = make(map[string]float64, len(r.evaluators))
	for _, evaluator := range r.evaluators {
		row.Scores[evaluator.Name()] = evaluator.Score(entry.Answer, output)
	}

	return row
}

// averages computes the mean score per evaluator over rows that produced
// an answer. Failed rows count as zero.
func (r *Runner) averages(rows []RowResult) map[string]float64 {
	averages := make(map[string]float64, len(r.evaluators))
	if len(rows) == 0 {
		return averages
	}
	for _, evaluator := range r.evaluators {
		total := 0.0
		for _, row := range rows {
			total += row.Scores[evaluator.Name()]
		}
		averages[evaluator.Name()] = total / float64(len(rows))
	}
	return averages
}

// WriteReport writes the report as JSON into the configured output
// directory, returning the file path.
func (r *Runner) WriteReport(report *Report) (string, error) {
	outputDir := r.cfg.OutputDir
	if outputDir == "" {
		outputDir = "eval_output"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, "eval_output.json")
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	logger.Printf("Wrote report to %s", path)

	return path, nil
}
