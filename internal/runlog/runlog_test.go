package runlog

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a11ywatch/internal/objectid"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "task:abc:log", Key("abc"))
}

func TestMemoryTrimsToNewest(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(3)
	m.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }

	for i := 1; i <= 5; i++ {
		require.NoError(t, m.Append(ctx, "t1", fmt.Sprintf("line %d", i)))
	}
	require.NoError(t, m.Append(ctx, "t2", "other"))

	lines, err := m.Recent(ctx, "t1", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-01-02 03:04:05 line 3",
		"2024-01-02 03:04:05 line 4",
		"2024-01-02 03:04:05 line 5",
	}, lines)

	lines, err = m.Recent(ctx, "t1", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-02 03:04:05 line 5"}, lines)

	lines, err = m.Recent(ctx, "missing", 5)
	require.NoError(t, err)
	assert.Empty(t, lines)
	assert.NotNil(t, lines)

	lines, err = m.Recent(ctx, "t1", 0)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestMemoryConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(1000)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Append(ctx, "t", "x")
		}()
	}
	wg.Wait()
	lines, err := m.Recent(ctx, "t", 1000)
	require.NoError(t, err)
	assert.Len(t, lines, 50)
}

// Needs a scratch server: A11YWATCH_TEST_REDIS_ADDR=127.0.0.1:6379
func TestRedisRecorder(t *testing.T) {
	addr := os.Getenv("A11YWATCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("A11YWATCH_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, RedisOptions{Addr: addr, MaxLines: 2})
	require.NoError(t, err)
	defer r.Close()

	taskID := objectid.New().String()
	t.Cleanup(func() { r.client.Del(context.Background(), Key(taskID)) })

	for _, line := range []string{"loading", "invoking", "done"} {
		require.NoError(t, r.Append(ctx, taskID, line))
	}
	lines, err := r.Recent(ctx, taskID, 10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], " invoking"))
	assert.True(t, strings.HasSuffix(lines[1], " done"))
}
