package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `{
	"tasks": [
		{"id": "5f1e9c0a2b3c4d5e6f708192", "name": "Alpha", "url": "https://alpha.example.com", "timeout": 30000, "wait": 0, "standard": "WCAG2AA", "ignore": []},
	],
	"results": [
		{"id": "5f1e9c0a2b3c4d5e6f7081a1", "task": "5f1e9c0a2b3c4d5e6f708192", "date": "2020-01-01T00:00:00.000Z",
		 "count": {"total": 0, "error": 0, "warning": 0, "notice": 0}, "results": []},
	],
}`

func TestLoadThenDump(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "fixtures.db")
	src := filepath.Join(dir, "seed.jsonc")
	dst := filepath.Join(dir, "dump.json")
	require.NoError(t, os.WriteFile(src, []byte(seed), 0o600))

	var out, errOut bytes.Buffer
	code := run([]string{"--db-driver", "sqlite", "--db-url", db, "load", src}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "loaded 1 tasks and 1 results")

	out.Reset()
	code = run([]string{"--db-url", db, "dump", dst}, &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "dumped 1 tasks and 1 results")

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Contains(t, string(data), "5f1e9c0a2b3c4d5e6f7081a1")
}

func TestUsageErrors(t *testing.T) {
	var out, errOut bytes.Buffer
	assert.Equal(t, 2, run([]string{"load"}, &out, &errOut))
	assert.Contains(t, errOut.String(), "usage:")

	errOut.Reset()
	db := filepath.Join(t.TempDir(), "x.db")
	assert.Equal(t, 2, run([]string{"--db-url", db, "explode", "file"}, &out, &errOut))
	assert.Contains(t, errOut.String(), `unknown command "explode"`)

	assert.Equal(t, 1, run([]string{"--db-driver", "oracle", "load", "file"}, &out, &errOut))
}
