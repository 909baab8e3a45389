// Package result owns the result collection: creation, windowed queries and
// the summary and full output projections.
package result

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
	"a11ywatch/internal/storage"
)

// Store exposes the result operations over an exclusively owned collection.
type Store struct {
	results storage.ResultCollection
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for default dates and windows.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store backed by results.
func New(results storage.ResultCollection, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{results: results, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create persists a result and returns its summary projection. A zero date is
// stamped with the current time.
func (s *Store) Create(ctx context.Context, nr models.NewResult) (*models.ResultOutput, error) {
	taskID, err := objectid.Parse(nr.Task)
	if err != nil {
		s.logger.Warn("rejecting result with malformed task id", "op", "result.create", "task", nr.Task)
		return nil, fmt.Errorf("result task %q: %w", nr.Task, err)
	}
	id := objectid.New()
	if nr.ID != "" {
		if id, err = objectid.Parse(nr.ID); err != nil {
			return nil, fmt.Errorf("result id %q: %w", nr.ID, err)
		}
	}
	date := nr.Date
	if date.IsZero() {
		date = s.now()
	}
	r := &models.Result{
		ID:      id,
		Task:    taskID,
		Date:    time.UnixMilli(date.UnixMilli()).UTC(),
		Count:   nr.Count,
		Ignore:  nr.Ignore,
		Results: nr.Results,
	}
	if err := s.results.InsertResult(ctx, r); err != nil {
		s.logger.Error("result create failed", "op", "result.create", "task", nr.Task, "err", err)
		return nil, storage.ErrStorage
	}
	out := r.Output(false)
	return &out, nil
}

// Query returns results with from < date < to, newest first, scoped to
// f.Task when set. A malformed task id matches nothing.
func (s *Store) Query(ctx context.Context, f models.ResultFilter) ([]models.ResultOutput, error) {
	if f.Task == "" {
		return s.query(ctx, f, nil)
	}
	taskID, err := objectid.Parse(f.Task)
	if err != nil {
		s.logger.Warn("malformed task id in result query", "op", "result.query", "task", f.Task)
		return []models.ResultOutput{}, nil
	}
	return s.query(ctx, f, &taskID)
}

// GetAll is Query across every task.
func (s *Store) GetAll(ctx context.Context, f models.ResultFilter) ([]models.ResultOutput, error) {
	f.Task = ""
	return s.query(ctx, f, nil)
}

// GetByTaskID is Query scoped to taskID.
func (s *Store) GetByTaskID(ctx context.Context, taskID string, f models.ResultFilter) ([]models.ResultOutput, error) {
	id, err := objectid.Parse(taskID)
	if err != nil {
		s.logger.Warn("malformed task id in result query", "op", "result.getByTaskId", "task", taskID)
		return []models.ResultOutput{}, nil
	}
	f.Task = taskID
	return s.query(ctx, f, &id)
}

func (s *Store) query(ctx context.Context, f models.ResultFilter, taskID *objectid.ID) ([]models.ResultOutput, error) {
	from, to := f.Window(s.now())
	q := storage.ResultQuery{From: from, To: to, TaskID: taskID}
	if f.Limit > 0 {
		q.Limit = f.Limit
	}
	found, err := s.results.FindResults(ctx, q)
	if err != nil {
		s.logger.Error("result query failed", "op", "result.query", "task", f.Task, "err", err)
		return nil, storage.ErrStorage
	}
	out := make([]models.ResultOutput, 0, len(found))
	for i := range found {
		out = append(out, found[i].Output(f.Full))
	}
	return out, nil
}

// GetByID returns one result, or nil when id is malformed or unknown.
func (s *Store) GetByID(ctx context.Context, id string, full bool) (*models.ResultOutput, error) {
	rid, err := objectid.Parse(id)
	if err != nil {
		s.logger.Warn("malformed result id", "op", "result.getById", "id", id)
		return nil, nil
	}
	return s.find(ctx, "result.getById", rid, nil, full)
}

// GetByIDAndTaskID returns the result only when it belongs to taskID.
func (s *Store) GetByIDAndTaskID(ctx context.Context, id, taskID string, f models.ResultFilter) (*models.ResultOutput, error) {
	rid, err := objectid.Parse(id)
	if err != nil {
		s.logger.Warn("malformed result id", "op", "result.getByIdAndTaskId", "id", id)
		return nil, nil
	}
	tid, err := objectid.Parse(taskID)
	if err != nil {
		s.logger.Warn("malformed task id", "op", "result.getByIdAndTaskId", "task", taskID)
		return nil, nil
	}
	return s.find(ctx, "result.getByIdAndTaskId", rid, &tid, f.Full)
}

func (s *Store) find(ctx context.Context, op string, id objectid.ID, taskID *objectid.ID, full bool) (*models.ResultOutput, error) {
	r, err := s.results.FindResult(ctx, id, taskID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("result lookup failed", "op", op, "id", id.String(), "err", err)
		return nil, storage.ErrStorage
	}
	out := r.Output(full)
	return &out, nil
}

// DeleteByTaskID removes every result of a task. It returns nil when taskID is
// malformed, otherwise the number of removed results.
func (s *Store) DeleteByTaskID(ctx context.Context, taskID string) (*int64, error) {
	tid, err := objectid.Parse(taskID)
	if err != nil {
		s.logger.Warn("malformed task id", "op", "result.deleteByTaskId", "task", taskID)
		return nil, nil
	}
	n, err := s.results.DeleteResultsByTask(ctx, tid)
	if err != nil {
		s.logger.Error("result delete failed", "op", "result.deleteByTaskId", "task", taskID, "err", err)
		return nil, storage.ErrStorage
	}
	return &n, nil
}

// DeleteAll empties the collection.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.results.DeleteAllResults(ctx); err != nil {
		s.logger.Error("result clear failed", "op", "result.deleteAll", "err", err)
		return storage.ErrStorage
	}
	return nil
}
