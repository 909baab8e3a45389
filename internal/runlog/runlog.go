// Package runlog keeps a short per-task history of pipeline activity.
package runlog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultMaxLines is how many lines are retained per task.
const DefaultMaxLines = 100

// Recorder appends and reads run log lines.
type Recorder interface {
	Append(ctx context.Context, taskID, line string) error
	// Recent returns up to n of the newest lines, oldest first.
	Recent(ctx context.Context, taskID string, n int) ([]string, error)
}

// Key returns the list key holding taskID's log.
func Key(taskID string) string {
	return "task:" + taskID + ":log"
}

func stamp(now time.Time, line string) string {
	return now.UTC().Format("2006-01-02 15:04:05") + " " + line
}

// Redis stores each task's log in a capped Redis list.
type Redis struct {
	client   *redis.Client
	maxLines int64
	now      func() time.Time
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	MaxLines int
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	maxLines := opts.MaxLines
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Redis{client: client, maxLines: int64(maxLines), now: time.Now}, nil
}

// Append pushes a timestamped line and trims the list to the newest lines.
func (r *Redis) Append(ctx context.Context, taskID, line string) error {
	key := Key(taskID)
	pipe := r.client.TxPipeline()
	pipe.RPush(ctx, key, stamp(r.now(), line))
	pipe.LTrim(ctx, key, -r.maxLines, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// Recent reads the last n lines.
func (r *Redis) Recent(ctx context.Context, taskID string, n int) ([]string, error) {
	if n <= 0 {
		return []string{}, nil
	}
	lines, err := r.client.LRange(ctx, Key(taskID), int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}
	return lines, nil
}

// Close releases the connection pool.
func (r *Redis) Close() error { return r.client.Close() }

// Memory is an in-process Recorder used when no Redis server is configured.
type Memory struct {
	mu       sync.Mutex
	logs     map[string][]string
	maxLines int
	now      func() time.Time
}

// NewMemory creates an empty Memory recorder.
func NewMemory(maxLines int) *Memory {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &Memory{logs: make(map[string][]string), maxLines: maxLines, now: time.Now}
}

// Append implements Recorder.
func (m *Memory) Append(_ context.Context, taskID, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := append(m.logs[taskID], stamp(m.now(), line))
	if len(lines) > m.maxLines {
		lines = append([]string(nil), lines[len(lines)-m.maxLines:]...)
	}
	m.logs[taskID] = lines
	return nil
}

// Recent implements Recorder.
func (m *Memory) Recent(_ context.Context, taskID string, n int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines := m.logs[taskID]
	if n < len(lines) {
		lines = lines[len(lines)-n:]
	}
	if n <= 0 {
		lines = nil
	}
	return append([]string{}, lines...), nil
}
