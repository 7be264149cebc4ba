package eval

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aiqtoolkit/aiq"
	"github.com/aiqtoolkit/aiq/config"
)

func init() {
	// Deterministic workflow for harness tests: uppercases the question.
	aiq.Register_Function("eval_upper", func(settings map[string]any, b *aiq.Builder) (*aiq.Function, error) {
		return aiq.From_Fn("eval_upper", "uppercases input", func(ctx context.Context, input string) (string, error) {
			return strings.ToUpper(input), nil
		}), nil
	})
}

func writeDataset(t *testing.T, lines []string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dataset.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}
	return path
}

func TestLoadDataset_JSONL(t *testing.T) {
	path := writeDataset(t, []string{
		`{"id": "q1", "question": "what is go?", "answer": "a language"}`,
		``,
		`{"question": "second", "answer": "two"}`,
	})

	entries, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "q1" {
		t.Errorf("Expected id q1, got %s", entries[0].ID)
	}
	if entries[1].ID == "" {
		t.Error("Expected generated id for entry without one")
	}
}

func TestLoadDataset_JSONArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	content := `[{"id": "a", "question": "q", "answer": "ans"}]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	entries, err := LoadDataset(path)
	if err != nil {
		t.Fatalf("LoadDataset failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Answer != "ans" {
		t.Errorf("Unexpected entries: %+v", entries)
	}
}

func TestLoadDataset_InvalidLine(t *testing.T) {
	path := writeDataset(t, []string{`not json`})
	if _, err := LoadDataset(path); err == nil {
		t.Error("Expected error for invalid JSONL line")
	}
}

func TestLoadDataset_Empty(t *testing.T) {
	path := writeDataset(t, []string{``})
	if _, err := LoadDataset(path); err == nil {
		t.Error("Expected error for empty dataset")
	}
}

func buildEvalWorkflow(t *testing.T) *aiq.Workflow {
	t.Helper()
	cfg := &config.Config{
		Workflow: config.Component{Type: "eval_upper"},
	}
	workflow, err := aiq.NewBuilder(cfg).Build(context.Background())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { workflow.Close() })
	return workflow
}

func TestRunner_ScoresDataset(t *testing.T) {
	dataset := writeDataset(t, []string{
		`{"id": "hit", "question": "go", "answer": "GO"}`,
		`{"id": "miss", "question": "python", "answer": "snake"}`,
	})
	outputDir := t.TempDir()

	runner, err := NewRunner(buildEvalWorkflow(t), config.EvalConfig{
		Dataset:        dataset,
		OutputDir:      outputDir,
		MaxConcurrency: 2,
		Evaluators: []config.Component{
			{Type: "exact_match"},
			{Type: "token_f1"},
		},
	})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if report.Total != 2 {
		t.Errorf("Expected 2 rows, got %d", report.Total)
	}
	if report.Failed != 0 {
		t.Errorf("Expected no failures, got %d", report.Failed)
	}
	if report.Averages["exact_match"] != 0.5 {
		t.Errorf("Expected exact_match average 0.5, got %f", report.Averages["exact_match"])
	}

	// Rows keep dataset order regardless of worker scheduling.
	if report.Rows[0].ID != "hit" || report.Rows[1].ID != "miss" {
		t.Errorf("Expected rows in dataset order, got %s then %s", report.Rows[0].ID, report.Rows[1].ID)
	}
	if report.Rows[0].Scores["exact_match"] != 1 {
		t.Errorf("Expected hit row to score 1, got %f", report.Rows[0].Scores["exact_match"])
	}

	path, err := runner.WriteReport(report)
	if err != nil {
		t.Fatalf("WriteReport failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read report: %v", err)
	}
	var parsed Report
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Report is not valid JSON: %v", err)
	}
	if parsed.Total != 2 {
		t.Errorf("Expected persisted total 2, got %d", parsed.Total)
	}
}

func TestRunner_DefaultsToExactMatch(t *testing.T) {
	dataset := writeDataset(t, []string{
		`{"id": "only", "question": "x", "answer": "X"}`,
	})

	runner, err := NewRunner(buildEvalWorkflow(t), config.EvalConfig{Dataset: dataset})
	if err != nil {
		t.Fatalf("NewRunner failed: %v", err)
	}

	report, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if _, ok := report.Averages["exact_match"]; !ok {
		t.Error("Expected default exact_match evaluator")
	}
}

func TestRunner_RequiresDataset(t *testing.T) {
	if _, err := NewRunner(buildEvalWorkflow(t), config.EvalConfig{}); err == nil {
		t.Error("Expected error for eval config without dataset")
	}
}

func TestRunner_UnknownEvaluator(t *testing.T) {
	dataset := writeDataset(t, []string{`{"id": "x", "question": "q", "answer": "a"}`})
	_, err := NewRunner(buildEvalWorkflow(t), config.EvalConfig{
		Dataset:    dataset,
		Evaluators: []config.Component{{Type: "vibes"}},
	})
	if err == nil {
		t.Error("Expected error for unknown evaluator type")
	}
}
