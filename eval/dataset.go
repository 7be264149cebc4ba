package eval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Entry is one row of an evaluation dataset
type Entry struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// LoadDataset reads a dataset file. Files ending in .jsonl hold one JSON
// object per line; anything else is parsed as a JSON array of entries.
func LoadDataset(path string) ([]Entry, error) {
	if strings.HasSuffix(path, ".jsonl") {
		return loadJSONL(path)
	}
	return loadJSONArray(path)
}

func loadJSONL(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(text), &entry); err != nil {
			return nil, fmt.Errorf("invalid dataset entry at %s:%d: %w", path, line, err)
		}
		if entry.ID == "" {
			entry.ID = fmt.Sprintf("row_%d", line)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dataset %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dataset %s contains no entries", path)
	}

	return entries, nil
}

func loadJSONArray(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("invalid dataset %s: %w", path, err)
	}
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = fmt.Sprintf("row_%d", i+1)
		}
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("dataset %s contains no entries", path)
	}

	return entries, nil
}
