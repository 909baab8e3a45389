// Package fixture loads and dumps seed data for development and tests.
package fixture

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"a11ywatch/internal/models"
)

// Set is the content of a fixture file.
type Set struct {
	Tasks   []models.TaskOutput `json:"tasks"`
	Results []models.NewResult  `json:"results"`
}

// TaskStore is the task side of a fixture load or dump.
type TaskStore interface {
	GetAll(ctx context.Context) ([]models.TaskOutput, error)
	Import(ctx context.Context, t models.TaskOutput) error
	DeleteAll(ctx context.Context) error
}

// ResultStore is the result side of a fixture load or dump.
type ResultStore interface {
	GetAll(ctx context.Context, f models.ResultFilter) ([]models.ResultOutput, error)
	Create(ctx context.Context, nr models.NewResult) (*models.ResultOutput, error)
	DeleteAll(ctx context.Context) error
}

// everything spans all representable result dates.
var everything = models.ResultFilter{
	From: "0",
	To:   fmt.Sprint(time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC).UnixMilli()),
	Full: true,
}

// Read parses a JSON or JSONC fixture file.
func Read(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("fixtures %s: invalid JSONC: %w", path, err)
	}
	var set Set
	if err := json.Unmarshal(standardized, &set); err != nil {
		return nil, fmt.Errorf("fixtures %s: %w", path, err)
	}
	return &set, nil
}

// Write stores set as indented JSON, replacing path atomically.
func Write(path string, set *Set) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode fixtures: %w", err)
	}
	data = append(data, '\n')
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write fixtures: %w", err)
	}
	return nil
}

// Load clears both collections and inserts the set, tasks first.
func Load(ctx context.Context, tasks TaskStore, results ResultStore, set *Set) error {
	if err := results.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear results: %w", err)
	}
	if err := tasks.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	for _, t := range set.Tasks {
		if err := tasks.Import(ctx, t); err != nil {
			return err
		}
	}
	for _, r := range set.Results {
		if _, err := results.Create(ctx, r); err != nil {
			return fmt.Errorf("import result %s: %w", r.ID, err)
		}
	}
	return nil
}

// Dump collects every task and every result with its issues.
func Dump(ctx context.Context, tasks TaskStore, results ResultStore) (*Set, error) {
	allTasks, err := tasks.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	allResults, err := results.GetAll(ctx, everything)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	set := &Set{Tasks: allTasks, Results: make([]models.NewResult, 0, len(allResults))}
	for _, r := range allResults {
		set.Results = append(set.Results, models.NewResult{
			ID:      r.ID,
			Task:    r.Task,
			Date:    models.ParseDate(r.Date, time.Time{}),
			Count:   r.Count,
			Ignore:  r.Ignore,
			Results: r.Results,
		})
	}
	return set, nil
}
