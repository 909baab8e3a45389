package mysql

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
	"a11ywatch/internal/storage"
)

// These tests need a disposable database:
// A11YWATCH_TEST_MYSQL_DSN="user:pass@tcp(127.0.0.1:3306)/a11ywatch_test?parseTime=true"
func newTestStore(t *testing.T) *MySQLStore {
	t.Helper()
	dsn := os.Getenv("A11YWATCH_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("A11YWATCH_TEST_MYSQL_DSN not set")
	}
	ctx := context.Background()
	store, err := New(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, store.DeleteAllTasks(ctx))
	require.NoError(t, store.DeleteAllResults(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

func TestMySQLTaskLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	wait := 250
	task := &models.Task{ID: objectid.New(), Name: "n", URL: "https://example.com", Standard: models.StandardWCAG2AA, Wait: &wait}
	require.NoError(t, store.InsertTask(ctx, task))

	n, err := store.UpdateTask(ctx, task.ID, models.TaskUpdate{Name: "renamed"},
		models.Annotation{Type: models.AnnotationEdit, Date: 1, Comment: "c"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := store.FindTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Name)
	assert.Nil(t, got.Wait)
	require.Len(t, got.Annotations, 1)

	n, err = store.DeleteTask(ctx, task.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.FindTask(ctx, task.ID)
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMySQLResults(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	taskID := objectid.New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.InsertResult(ctx, &models.Result{
			ID: objectid.New(), Task: taskID, Date: base.Add(time.Duration(i) * time.Second),
			Results: []models.Issue{{Type: models.IssueNotice}},
		}))
	}

	got, err := store.FindResults(ctx, storage.ResultQuery{TaskID: &taskID, Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Date.After(got[1].Date))
	assert.Len(t, got[0].Results, 1)
}
