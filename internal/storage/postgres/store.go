package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
	"a11ywatch/internal/storage"
)

// PostgresStore implements storage.Backend for PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

var _ storage.Backend = (*PostgresStore)(nil)

// New creates a PostgresStore, checks the connection and runs migrations.
func New(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	store := &PostgresStore{db: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		url           TEXT NOT NULL,
		standard      TEXT NOT NULL,
		timeout       INTEGER,
		wait          INTEGER,
		ignore_rules  JSONB,
		username      TEXT,
		password      TEXT,
		headers       JSONB,
		hide_elements TEXT,
		annotations   JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_name_url_standard ON tasks (name, url, standard);

	CREATE TABLE IF NOT EXISTS results (
		id            TEXT PRIMARY KEY,
		task_id       TEXT NOT NULL,
		date_ms       BIGINT NOT NULL,
		count_total   INTEGER NOT NULL DEFAULT 0,
		count_error   INTEGER NOT NULL DEFAULT 0,
		count_warning INTEGER NOT NULL DEFAULT 0,
		count_notice  INTEGER NOT NULL DEFAULT 0,
		ignore_rules  JSONB,
		results       JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_results_date ON results (date_ms);
	CREATE INDEX IF NOT EXISTS idx_results_task_id_date ON results (task_id, date_ms DESC);
	`
	_, err := s.db.Exec(ctx, schema)
	return err
}

const taskColumns = `id, name, url, standard, timeout, wait, ignore_rules, username, password, headers, hide_elements, annotations`

const resultColumns = `id, task_id, date_ms, count_total, count_error, count_warning, count_notice, ignore_rules, results`

func scanTask(row pgx.Row) (*models.Task, error) {
	var (
		t                            models.Task
		id                           string
		ignore, headers, annotations []byte
	)
	err := row.Scan(&id, &t.Name, &t.URL, &t.Standard, &t.Timeout, &t.Wait, &ignore,
		&t.Username, &t.Password, &headers, &t.HideElements, &annotations)
	if err != nil {
		return nil, err
	}
	if t.ID, err = objectid.Parse(id); err != nil {
		return nil, fmt.Errorf("stored task id %q: %w", id, err)
	}
	if err := storage.DecodeJSON(ignore, &t.Ignore); err != nil {
		return nil, err
	}
	if err := storage.DecodeJSON(headers, &t.Headers); err != nil {
		return nil, err
	}
	if err := storage.DecodeJSON(annotations, &t.Annotations); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanResult(row pgx.Row) (*models.Result, error) {
	var (
		r               models.Result
		id, taskID      string
		dateMS          int64
		ignore, results []byte
	)
	err := row.Scan(&id, &taskID, &dateMS, &r.Count.Total, &r.Count.Error, &r.Count.Warning,
		&r.Count.Notice, &ignore, &results)
	if err != nil {
		return nil, err
	}
	if r.ID, err = objectid.Parse(id); err != nil {
		return nil, fmt.Errorf("stored result id %q: %w", id, err)
	}
	if r.Task, err = objectid.Parse(taskID); err != nil {
		return nil, fmt.Errorf("stored result task id %q: %w", taskID, err)
	}
	r.Date = time.UnixMilli(dateMS).UTC()
	if err := storage.DecodeJSON(ignore, &r.Ignore); err != nil {
		return nil, err
	}
	if err := storage.DecodeJSON(results, &r.Results); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertTask implements storage.TaskCollection.
func (s *PostgresStore) InsertTask(ctx context.Context, t *models.Task) error {
	ignore, err := storage.EncodeJSON(t.Ignore)
	if err != nil {
		return err
	}
	headers, err := storage.EncodeJSON(t.Headers)
	if err != nil {
		return err
	}
	annotations, err := storage.EncodeJSON(t.Annotations)
	if err != nil {
		return err
	}
	query := `INSERT INTO tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10::jsonb, $11, $12::jsonb)`
	_, err = s.db.Exec(ctx, query, t.ID.String(), t.Name, t.URL, t.Standard, t.Timeout, t.Wait,
		ignore, t.Username, t.Password, headers, t.HideElements, annotations)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// ListTasks implements storage.TaskCollection.
func (s *PostgresStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY name, standard, url`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// FindTask implements storage.TaskCollection.
func (s *PostgresStore) FindTask(ctx context.Context, id objectid.ID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = $1`
	t, err := scanTask(s.db.QueryRow(ctx, query, id.String()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by id: %w", err)
	}
	return t, nil
}

// UpdateTask implements storage.TaskCollection.
func (s *PostgresStore) UpdateTask(ctx context.Context, id objectid.ID, u models.TaskUpdate, a models.Annotation) (int64, error) {
	ignore, err := storage.EncodeJSON(u.Ignore)
	if err != nil {
		return 0, err
	}
	annotation, err := storage.EncodeJSON(a)
	if err != nil {
		return 0, err
	}
	query := `
	UPDATE tasks SET
		name = $1, timeout = $2, wait = $3, username = $4, password = $5,
		ignore_rules = COALESCE($6::jsonb, ignore_rules),
		annotations = COALESCE(annotations, '[]'::jsonb) || jsonb_build_array($7::jsonb)
	WHERE id = $8`
	tag, err := s.db.Exec(ctx, query, u.Name, u.Timeout, u.Wait, u.Username, u.Password,
		ignore, annotation, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to update task: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AppendAnnotation implements storage.TaskCollection.
func (s *PostgresStore) AppendAnnotation(ctx context.Context, id objectid.ID, a models.Annotation) (int64, error) {
	annotation, err := storage.EncodeJSON(a)
	if err != nil {
		return 0, err
	}
	query := `UPDATE tasks SET annotations = COALESCE(annotations, '[]'::jsonb) || jsonb_build_array($1::jsonb) WHERE id = $2`
	tag, err := s.db.Exec(ctx, query, annotation, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to append annotation: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteTask implements storage.TaskCollection.
func (s *PostgresStore) DeleteTask(ctx context.Context, id objectid.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete task: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllTasks implements storage.TaskCollection.
func (s *PostgresStore) DeleteAllTasks(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	return nil
}

// InsertResult implements storage.ResultCollection.
func (s *PostgresStore) InsertResult(ctx context.Context, r *models.Result) error {
	ignore, err := storage.EncodeJSON(r.Ignore)
	if err != nil {
		return err
	}
	results, err := storage.EncodeJSON(r.Results)
	if err != nil {
		return err
	}
	query := `INSERT INTO results (` + resultColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb)`
	_, err = s.db.Exec(ctx, query, r.ID.String(), r.Task.String(), r.Date.UnixMilli(),
		r.Count.Total, r.Count.Error, r.Count.Warning, r.Count.Notice, ignore, results)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// FindResults implements storage.ResultCollection.
func (s *PostgresStore) FindResults(ctx context.Context, q storage.ResultQuery) ([]models.Result, error) {
	var args []any
	qb := strings.Builder{}
	qb.WriteString("SELECT " + resultColumns + " FROM results WHERE 1=1")
	if !q.From.IsZero() {
		args = append(args, q.FromMillis())
		fmt.Fprintf(&qb, " AND date_ms > $%d", len(args))
	}
	if !q.To.IsZero() {
		args = append(args, q.ToMillis())
		fmt.Fprintf(&qb, " AND date_ms < $%d", len(args))
	}
	if q.TaskID != nil {
		args = append(args, q.TaskID.String())
		fmt.Fprintf(&qb, " AND task_id = $%d", len(args))
	}
	qb.WriteString(" ORDER BY date_ms DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		fmt.Fprintf(&qb, " LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()

	results := []models.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// FindResult implements storage.ResultCollection.
func (s *PostgresStore) FindResult(ctx context.Context, id objectid.ID, taskID *objectid.ID) (*models.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE id = $1`
	args := []any{id.String()}
	if taskID != nil {
		query += ` AND task_id = $2`
		args = append(args, taskID.String())
	}
	r, err := scanResult(s.db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result by id: %w", err)
	}
	return r, nil
}

// DeleteResultsByTask implements storage.ResultCollection.
func (s *PostgresStore) DeleteResultsByTask(ctx context.Context, taskID objectid.ID) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM results WHERE task_id = $1`, taskID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete results: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllResults implements storage.ResultCollection.
func (s *PostgresStore) DeleteAllResults(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM results`); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}
