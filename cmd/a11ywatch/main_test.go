package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"a11ywatch/internal/config"
	"a11ywatch/internal/runlog"
)

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("DATABASE_DRIVER", "postgres")

	cfg, err := loadConfig([]string{"--port", "9100", "--interval", "5m", "--workers", "4", "--db-driver", "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, "9100", cfg.HTTPPort)
	assert.Equal(t, config.Duration(5*time.Minute), cfg.RunInterval)
	assert.Equal(t, 4, cfg.MaxConcurrency)
	assert.Equal(t, config.DriverSQLite, cfg.DatabaseDriver)
}

func TestLoadConfigValidatesAfterFlags(t *testing.T) {
	_, err := loadConfig([]string{"--workers", "0"})
	require.Error(t, err)

	_, err = loadConfig([]string{"--no-such-flag"})
	require.Error(t, err)
}

func TestRunLogKind(t *testing.T) {
	assert.Equal(t, "memory", runLogKind(runlog.NewMemory(1)))
}

type slowScheduler struct {
	took time.Duration
}

func (s slowScheduler) Stop() { time.Sleep(s.took) }

type recordingServer struct {
	ctxErr error
	err    error
}

func (r *recordingServer) Shutdown(ctx context.Context) error {
	r.ctxErr = ctx.Err()
	return r.err
}

func TestShutdownGivesServerItsOwnGrace(t *testing.T) {
	grace := 20 * time.Millisecond
	server := &recordingServer{}

	require.NoError(t, shutdown(slowScheduler{took: 2 * grace}, server, grace))
	assert.NoError(t, server.ctxErr, "server shutdown started with an expired context")
}

func TestShutdownReportsServerError(t *testing.T) {
	boom := errors.New("boom")
	err := shutdown(slowScheduler{}, &recordingServer{err: boom}, time.Second)
	require.ErrorIs(t, err, boom)
}
