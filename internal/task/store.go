// Package task owns the task collection and its edit history.
package task

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

// Store exposes the task operations over an exclusively owned collection.
type Store struct {
	tasks  storage.TaskCollection
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used to date annotations.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a Store backed by tasks.
func New(tasks storage.TaskCollection, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{tasks: tasks, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create assigns an id and persists the supplied fields as given.
func (s *Store) Create(ctx context.Context, nt models.NewTask) (*models.TaskOutput, error) {
	t := nt.Record(objectid.New())
	if err := s.tasks.InsertTask(ctx, t); err != nil {
		s.logger.Error("task create failed", "op", "task.create", "url", nt.URL, "err", err)
		return nil, storage.ErrStorage
	}
	out := t.Output()
	return &out, nil
}

// GetAll returns every task sorted by name, standard and url.
func (s *Store) GetAll(ctx context.Context) ([]models.TaskOutput, error) {
	tasks, err := s.tasks.ListTasks(ctx)
	if err != nil {
		s.logger.Error("task list failed", "op", "task.getAll", "err", err)
		return nil, storage.ErrStorage
	}
	out := make([]models.TaskOutput, 0, len(tasks))
	for i := range tasks {
		out = append(out, tasks[i].Output())
	}
	return out, nil
}

// GetByID returns the task, or nil when id is malformed or unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*models.TaskOutput, error) {
	tid, err := objectid.Parse(id)
	if err != nil {
		s.logger.Warn("malformed task id", "op", "task.getById", "id", id)
		return nil, nil
	}
	t, err := s.tasks.FindTask(ctx, tid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("task lookup failed", "op", "task.getById", "id", id, "err", err)
		return nil, storage.ErrStorage
	}
	out := t.Output()
	return &out, nil
}

// EditByID overwrites the editable fields and records an edit annotation in
// the same write. It returns the number of tasks matched.
func (s *Store) EditByID(ctx context.Context, id string, edits models.TaskEdits) (int64, error) {
	tid, err := objectid.Parse(id)
	if err != nil {
		s.logger.Warn("malformed task id", "op", "task.editById", "id", id)
		return 0, nil
	}
	annotation := models.Annotation{
		Type:    models.AnnotationEdit,
		Date:    s.now().UnixMilli(),
		Comment: edits.AnnotationComment(),
	}
	n, err := s.tasks.UpdateTask(ctx, tid, edits.Update(), annotation)
	if err != nil {
		s.logger.Error("task edit failed", "op", "task.editById", "id", id, "err", err)
		return 0, storage.ErrStorage
	}
	return n, nil
}

// AddAnnotation appends an annotation to the task's history.
func (s *Store) AddAnnotation(ctx context.Context, id string, a models.Annotation) (int64, error) {
	tid, err := objectid.Parse(id)
	if err != nil {
		s.logger.Warn("malformed task id", "op", "task.addAnnotation", "id", id)
		return 0, nil
	}
	n, err := s.tasks.AppendAnnotation(ctx, tid, a)
	if err != nil {
		s.logger.Error("annotation append failed", "op", "task.addAnnotation", "id", id, "err", err)
		return 0, storage.ErrStorage
	}
	return n, nil
}

// DeleteByID removes the task. Its results are left alone. It returns nil
// when id is malformed.
func (s *Store) DeleteByID(ctx context.Context, id string) (*int64, error) {
	tid, err := objectid.Parse(id)
	if err != nil {
		s.logger.Warn("malformed task id", "op", "task.deleteById", "id", id)
		return nil, nil
	}
	n, err := s.tasks.DeleteTask(ctx, tid)
	if err != nil {
		s.logger.Error("task delete failed", "op", "task.deleteById", "id", id, "err", err)
		return nil, storage.ErrStorage
	}
	return &n, nil
}

// Import stores a previously projected task under its original id.
func (s *Store) Import(ctx context.Context, out models.TaskOutput) error {
	tid, err := objectid.Parse(out.ID)
	if err != nil {
		return fmt.Errorf("import task %q: %w", out.ID, err)
	}
	if !models.ValidStandard(out.Standard) {
		return fmt.Errorf("import task %s: %w: unknown standard %q", out.ID, models.ErrValidation, out.Standard)
	}
	t := &models.Task{
		ID:          tid,
		Name:        out.Name,
		URL:         out.URL,
		Standard:    out.Standard,
		Timeout:     &out.Timeout,
		Wait:        &out.Wait,
		Ignore:      out.Ignore,
		Headers:     out.Headers,
		Annotations: out.Annotations,
	}
	if out.Username != "" {
		t.Username = &out.Username
	}
	if out.Password != "" {
		t.Password = &out.Password
	}
	if out.HideElements != "" {
		t.HideElements = &out.HideElements
	}
	if err := s.tasks.InsertTask(ctx, t); err != nil {
		s.logger.Error("task import failed", "op", "task.import", "id", out.ID, "err", err)
		return storage.ErrStorage
	}
	return nil
}

// DeleteAll empties the collection.
func (s *Store) DeleteAll(ctx context.Context) error {
	if err := s.tasks.DeleteAllTasks(ctx); err != nil {
		s.logger.Error("task clear failed", "op", "task.deleteAll", "err", err)
		return storage.ErrStorage
	}
	return nil
}
