package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
)

var (
	// ErrNotFound is returned by backends when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStorage is the neutral failure the task and result stores surface in
	// place of raw driver errors.
	ErrStorage = errors.New("storage failure")
)

// ResultQuery selects stored results. Zero From/To leave that side of the
// window open; both bounds are exclusive.
type ResultQuery struct {
	From   time.Time
	To     time.Time
	TaskID *objectid.ID
	Limit  int
}

// FromMillis is From in unix milliseconds, rounded down. Dates are stored at
// millisecond precision, so date_ms > FromMillis matches date > From.
func (q ResultQuery) FromMillis() int64 {
	ms := q.From.UnixMilli()
	if time.UnixMilli(ms).After(q.From) {
		ms--
	}
	return ms
}

// ToMillis is To in unix milliseconds, rounded up, so date_ms < ToMillis
// matches date < To.
func (q ResultQuery) ToMillis() int64 {
	ms := q.To.UnixMilli()
	if time.UnixMilli(ms).Before(q.To) {
		ms++
	}
	return ms
}

// TaskCollection is the persistence surface for tasks.
type TaskCollection interface {
	InsertTask(ctx context.Context, task *models.Task) error
	// ListTasks returns all tasks ordered by name, standard, url.
	ListTasks(ctx context.Context) ([]models.Task, error)
	FindTask(ctx context.Context, id objectid.ID) (*models.Task, error)
	// UpdateTask writes the update and appends the annotation in a single
	// statement, returning the number of matched tasks.
	UpdateTask(ctx context.Context, id objectid.ID, update models.TaskUpdate, annotation models.Annotation) (int64, error)
	AppendAnnotation(ctx context.Context, id objectid.ID, annotation models.Annotation) (int64, error)
	DeleteTask(ctx context.Context, id objectid.ID) (int64, error)
	DeleteAllTasks(ctx context.Context) error
}

// ResultCollection is the persistence surface for results.
type ResultCollection interface {
	InsertResult(ctx context.Context, result *models.Result) error
	// FindResults returns matching results, newest first.
	FindResults(ctx context.Context, q ResultQuery) ([]models.Result, error)
	// FindResult looks up one result, additionally scoped to taskID when non-nil.
	FindResult(ctx context.Context, id objectid.ID, taskID *objectid.ID) (*models.Result, error)
	DeleteResultsByTask(ctx context.Context, taskID objectid.ID) (int64, error)
	DeleteAllResults(ctx context.Context) error
}

// Backend is implemented by each database driver package.
type Backend interface {
	TaskCollection
	ResultCollection
	Close() error
}

// EncodeJSON marshals v for a nullable JSON column. Nil slices and maps encode
// as NULL so that absent fields stay absent.
func EncodeJSON(v any) (*string, error) {
	switch x := v.(type) {
	case []string:
		if x == nil {
			return nil, nil
		}
	case map[string]string:
		if x == nil {
			return nil, nil
		}
	case []models.Annotation:
		if x == nil {
			return nil, nil
		}
	case []models.Issue:
		if x == nil {
			return nil, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode json column: %w", err)
	}
	s := string(b)
	return &s, nil
}

// DecodeJSON unmarshals a nullable JSON column into dst, leaving dst untouched
// for NULL.
func DecodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode json column: %w", err)
	}
	return nil
}
