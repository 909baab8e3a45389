package fixture

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a11ywatch/internal/result"
	"a11ywatch/internal/storage/sqlite"
	"a11ywatch/internal/task"
)

const seed = `{
	// two tasks, three results
	"tasks": [
		{
			"id": "5f1e9c0a2b3c4d5e6f708192",
			"name": "Alpha",
			"url": "https://alpha.example.com",
			"timeout": 30000,
			"wait": 0,
			"standard": "WCAG2AA",
			"ignore": [],
		},
		{
			"id": "5f1e9c0a2b3c4d5e6f708193",
			"name": "Beta",
			"url": "https://beta.example.com",
			"timeout": 10000,
			"wait": 500,
			"standard": "Section508",
			"ignore": ["notice-rule"],
			"annotations": [{"type": "edit", "date": 1577836800000, "comment": "Edited task"}],
			"hideElements": ".ads",
		},
	],
	"results": [
		{
			"id": "5f1e9c0a2b3c4d5e6f7081a3",
			"task": "5f1e9c0a2b3c4d5e6f708193",
			"date": "2020-01-03T00:00:00.000Z",
			"count": {"total": 1, "error": 0, "warning": 0, "notice": 1},
			"ignore": ["notice-rule"],
			"results": [{"code": "c", "context": "<p>", "message": "m", "selector": "p", "type": "notice", "typeCode": 3}],
		},
		{
			"id": "5f1e9c0a2b3c4d5e6f7081a2",
			"task": "5f1e9c0a2b3c4d5e6f708192",
			"date": "2020-01-02T00:00:00.000Z",
			"count": {"total": 1, "error": 1, "warning": 0, "notice": 0},
			"ignore": [],
			"results": [{"code": "e", "context": "<img>", "message": "alt", "selector": "img", "type": "error", "typeCode": 1}],
		},
		{
			"id": "5f1e9c0a2b3c4d5e6f7081a1",
			"task": "5f1e9c0a2b3c4d5e6f708192",
			"date": "2020-01-01T00:00:00.000Z",
			"count": {"total": 0, "error": 0, "warning": 0, "notice": 0},
			"ignore": [],
			"results": [],
		},
	],
}`

func newStores(t *testing.T) (*task.Store, *result.Store) {
	t.Helper()
	backend, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "fixtures.db"))
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return task.New(backend, logger), result.New(backend, logger)
}

func TestLoadAndDumpRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "seed.jsonc")
	require.NoError(t, os.WriteFile(src, []byte(seed), 0o600))

	set, err := Read(src)
	require.NoError(t, err)
	require.Len(t, set.Tasks, 2)
	require.Len(t, set.Results, 3)

	tasks, results := newStores(t)
	require.NoError(t, Load(ctx, tasks, results, set))

	dumped, err := Dump(ctx, tasks, results)
	require.NoError(t, err)
	if diff := cmp.Diff(set, dumped); diff != "" {
		t.Errorf("dump differs from loaded fixtures (-want +got):\n%s", diff)
	}

	dst := filepath.Join(dir, "dump.json")
	require.NoError(t, Write(dst, dumped))
	again, err := Read(dst)
	require.NoError(t, err)
	// empty lists are omitted on write
	if diff := cmp.Diff(dumped, again, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("written fixtures differ (-want +got):\n%s", diff)
	}
}

func TestLoadReplacesExistingData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	src := filepath.Join(dir, "seed.jsonc")
	require.NoError(t, os.WriteFile(src, []byte(seed), 0o600))
	set, err := Read(src)
	require.NoError(t, err)

	tasks, results := newStores(t)
	require.NoError(t, Load(ctx, tasks, results, set))
	require.NoError(t, Load(ctx, tasks, results, set), "second load must not collide on ids")

	all, err := tasks.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tasks": [`), 0o600))
	_, err = Read(bad)
	require.Error(t, err)
}

func TestLoadRejectsBadTask(t *testing.T) {
	tasks, results := newStores(t)
	set := &Set{}
	require.NoError(t, Load(context.Background(), tasks, results, set))

	src := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"tasks":[{"id":"nope","name":"x","url":"https://x.test","standard":"WCAG2AA"}]}`), 0o600))
	set, err := Read(src)
	require.NoError(t, err)
	require.Error(t, Load(context.Background(), tasks, results, set))
}
