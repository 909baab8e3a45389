package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a11ywatch/internal/checker"
	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
	"a11ywatch/internal/result"
	"a11ywatch/internal/runlog"
	"a11ywatch/internal/storage/sqlite"
	"a11ywatch/internal/task"
)

type fakeChecker struct {
	issues []models.Issue
	err    error
	calls  int
	url    string
	opts   checker.Options
}

func (f *fakeChecker) Run(_ context.Context, url string, opts checker.Options) ([]models.Issue, error) {
	f.calls++
	f.url = url
	f.opts = opts
	return f.issues, f.err
}

type fixture struct {
	tasks   *task.Store
	results *result.Store
	log     *runlog.Memory
}

func setup(t *testing.T) fixture {
	t.Helper()
	backend, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "pipeline.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fixture{
		tasks:   task.New(backend, logger),
		results: result.New(backend, logger),
		log:     runlog.NewMemory(50),
	}
}

func (f fixture) pipeline(c checker.Runner) *Pipeline {
	return New(f.tasks, f.results, c, f.log, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRunByID(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.tasks.Create(ctx, models.NewTask{
		Name:     "home",
		URL:      "https://example.com",
		Standard: models.StandardWCAG2AA,
		Ignore:   []string{"notice-rule"},
		Username: "user",
		Headers:  map[string]string{"Cookie": "a=b"},
	})
	require.NoError(t, err)

	fc := &fakeChecker{issues: []models.Issue{
		{Type: "error"}, {Type: "error"}, {Type: "warning"},
		{Type: "notice"}, {Type: "notice"}, {Type: "notice"},
	}}
	out, err := f.pipeline(fc).RunByID(ctx, created.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, fc.calls)
	assert.Equal(t, "https://example.com", fc.url)
	assert.Equal(t, checker.Options{
		Standard: models.StandardWCAG2AA,
		Timeout:  30000,
		Ignore:   []string{"notice-rule"},
		Headers:  map[string]string{"Cookie": "a=b"},
	}, fc.opts, "half-set credentials are not passed")

	assert.Equal(t, created.ID, out.Task)
	assert.Equal(t, models.Count{Total: 6, Error: 2, Warning: 1, Notice: 3}, out.Count)
	assert.Equal(t, []string{"notice-rule"}, out.Ignore)

	stored, err := f.results.GetByTaskID(ctx, created.ID, models.ResultFilter{Full: true})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Len(t, stored[0].Results, 6)

	lines, err := f.log.Recent(ctx, created.ID, 10)
	require.NoError(t, err)
	var stages []string
	for _, line := range lines {
		// "2006-01-02 15:04:05 stage: detail"
		fields := strings.SplitN(line, " ", 3)
		stages = append(stages, strings.TrimSuffix(strings.Fields(fields[2])[0], ":"))
	}
	assert.Equal(t, []string{"loading", "invoking", "converting", "persisting", "done"}, stages)
}

func TestRunByIDUnknownTask(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	fc := &fakeChecker{}

	for _, id := range []string{objectid.New().String(), "not-an-id"} {
		_, err := f.pipeline(fc).RunByID(ctx, id)
		require.ErrorIs(t, err, ErrTaskNotFound)

		var runErr *RunError
		require.True(t, errors.As(err, &runErr))
		assert.Equal(t, StageLoading, runErr.Stage)
		assert.Equal(t, id, runErr.TaskID)
	}
	assert.Zero(t, fc.calls, "checker must not run for an unknown task")
}

func TestRunByIDCheckerFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t)

	created, err := f.tasks.Create(ctx, models.NewTask{Name: "x", URL: "https://example.com", Standard: models.StandardWCAG2A})
	require.NoError(t, err)

	fc := &fakeChecker{err: checker.ErrSetup}
	_, err = f.pipeline(fc).RunByID(ctx, created.ID)
	require.ErrorIs(t, err, ErrChecker)

	var runErr *RunError
	require.True(t, errors.As(err, &runErr))
	assert.Equal(t, StageInvoking, runErr.Stage)

	stored, err := f.results.GetByTaskID(ctx, created.ID, models.ResultFilter{})
	require.NoError(t, err)
	assert.Empty(t, stored, "no partial result is written")

	lines, err := f.log.Recent(ctx, created.ID, 1)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "errored")
}

func TestOptionsCredentials(t *testing.T) {
	opts := Options(&models.TaskOutput{Standard: "WCAG2AA", Timeout: 100, Wait: 10, Username: "u", Password: "p", HideElements: ".x"})
	assert.Equal(t, "u", opts.Username)
	assert.Equal(t, "p", opts.Password)
	assert.Equal(t, ".x", opts.HideElements)
	assert.Equal(t, 10, opts.Wait)

	opts = Options(&models.TaskOutput{Password: "p"})
	assert.Empty(t, opts.Username)
	assert.Empty(t, opts.Password)
}

func TestStageString(t *testing.T) {
	assert.Equal(t, "persisting", StagePersisting.String())
	assert.Equal(t, "errored", StageErrored.String())
	assert.Equal(t, "stage(42)", Stage(42).String())
}
