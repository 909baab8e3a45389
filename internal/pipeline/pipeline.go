// Package pipeline turns a stored task into a stored result by running the
// checker against it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"a11ywatch/internal/checker"
	"a11ywatch/internal/models"
	"a11ywatch/internal/result"
	"a11ywatch/internal/runlog"
)

var (
	// ErrTaskNotFound is returned when the task could not be loaded.
	ErrTaskNotFound = errors.New("task not found")
	// ErrChecker is returned when the checker failed to start or to report.
	ErrChecker = errors.New("checker failed")
)

// Stage is a step of a run.
type Stage int

const (
	StageLoading Stage = iota
	StageInvoking
	StageConverting
	StagePersisting
	StageDone
	StageErrored
)

func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "loading"
	case StageInvoking:
		return "invoking"
	case StageConverting:
		return "converting"
	case StagePersisting:
		return "persisting"
	case StageDone:
		return "done"
	case StageErrored:
		return "errored"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// RunError reports the stage a run failed in.
type RunError struct {
	Stage  Stage
	TaskID string
	Err    error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run task %s: %s: %v", e.TaskID, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// TaskSource loads tasks by id.
type TaskSource interface {
	GetByID(ctx context.Context, id string) (*models.TaskOutput, error)
}

// ResultSink persists results.
type ResultSink interface {
	Create(ctx context.Context, nr models.NewResult) (*models.ResultOutput, error)
}

// Pipeline runs tasks one at a time per call; calls are independent.
type Pipeline struct {
	tasks   TaskSource
	results ResultSink
	checker checker.Runner
	log     runlog.Recorder
	logger  *slog.Logger
}

// New wires a Pipeline. rec may be nil.
func New(tasks TaskSource, results ResultSink, runner checker.Runner, rec runlog.Recorder, logger *slog.Logger) *Pipeline {
	return &Pipeline{tasks: tasks, results: results, checker: runner, log: rec, logger: logger}
}

// RunByID loads the task, runs the checker and stores the converted result.
func (p *Pipeline) RunByID(ctx context.Context, id string) (*models.ResultOutput, error) {
	p.record(ctx, id, StageLoading, "")
	task, err := p.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, p.fail(ctx, id, StageLoading, fmt.Errorf("%w: %v", ErrTaskNotFound, err))
	}
	if task == nil {
		return nil, p.fail(ctx, id, StageLoading, ErrTaskNotFound)
	}

	p.record(ctx, id, StageInvoking, task.URL)
	issues, err := p.checker.Run(ctx, task.URL, Options(task))
	if err != nil {
		return nil, p.fail(ctx, id, StageInvoking, fmt.Errorf("%w: %v", ErrChecker, err))
	}

	p.record(ctx, id, StageConverting, fmt.Sprintf("%d issues", len(issues)))
	conv := result.ConvertCheckerResults(issues)

	p.record(ctx, id, StagePersisting, "")
	out, err := p.results.Create(ctx, models.NewResult{
		Task:    task.ID,
		Count:   conv.Count,
		Ignore:  task.Ignore,
		Results: conv.Results,
	})
	if err != nil {
		return nil, p.fail(ctx, id, StagePersisting, err)
	}

	p.record(ctx, id, StageDone, "result "+out.ID)
	p.logger.Info("task run complete", "task", id, "result", out.ID, "total", out.Count.Total)
	return out, nil
}

// Options builds checker options from a projected task. Credentials are
// passed only when both username and password are present.
func Options(task *models.TaskOutput) checker.Options {
	opts := checker.Options{
		Standard:     task.Standard,
		Timeout:      task.Timeout,
		Wait:         task.Wait,
		Ignore:       task.Ignore,
		Headers:      task.Headers,
		HideElements: task.HideElements,
	}
	if task.Username != "" && task.Password != "" {
		opts.Username = task.Username
		opts.Password = task.Password
	}
	return opts
}

func (p *Pipeline) fail(ctx context.Context, id string, stage Stage, err error) error {
	runErr := &RunError{Stage: stage, TaskID: id, Err: err}
	p.record(ctx, id, StageErrored, runErr.Error())
	p.logger.Error("task run failed", "task", id, "stage", stage.String(), "err", err)
	return runErr
}

func (p *Pipeline) record(ctx context.Context, id string, stage Stage, detail string) {
	if p.log == nil {
		return
	}
	line := stage.String()
	if detail != "" {
		line += ": " + detail
	}
	if err := p.log.Append(ctx, id, line); err != nil {
		p.logger.Warn("run log append failed", "task", id, "err", err)
	}
}
