package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
	"a11ywatch/internal/storage"
)

// SQLiteStore implements storage.Backend for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ storage.Backend = (*SQLiteStore)(nil)

// New opens the database file and runs migrations.
func New(ctx context.Context, dataSourceName string) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dataSourceName, "?") {
		sep = "&"
	}
	dsn := dataSourceName + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// SQLite serializes writers; one connection avoids SQLITE_BUSY between our own statements.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	store := &SQLiteStore{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS tasks (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	url           TEXT NOT NULL,
	standard      TEXT NOT NULL,
	timeout       INTEGER,
	wait          INTEGER,
	ignore_rules  TEXT,
	username      TEXT,
	password      TEXT,
	headers       TEXT,
	hide_elements TEXT,
	annotations   TEXT
);
CREATE INDEX IF NOT EXISTS idx_tasks_name_url_standard ON tasks (name, url, standard);

CREATE TABLE IF NOT EXISTS results (
	id            TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	date_ms       INTEGER NOT NULL,
	count_total   INTEGER NOT NULL DEFAULT 0,
	count_error   INTEGER NOT NULL DEFAULT 0,
	count_warning INTEGER NOT NULL DEFAULT 0,
	count_notice  INTEGER NOT NULL DEFAULT 0,
	ignore_rules  TEXT,
	results       TEXT
);
CREATE INDEX IF NOT EXISTS idx_results_date ON results (date_ms);
CREATE INDEX IF NOT EXISTS idx_results_task_id_date ON results (task_id, date_ms DESC);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

const taskColumns = `id, name, url, standard, timeout, wait, ignore_rules, username, password, headers, hide_elements, annotations`

const resultColumns = `id, task_id, date_ms, count_total, count_error, count_warning, count_notice, ignore_rules, results`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var (
		t                                models.Task
		id                               string
		timeout, wait                    sql.NullInt64
		ignore, headers, annotations     sql.NullString
		username, password, hideElements sql.NullString
	)
	err := row.Scan(&id, &t.Name, &t.URL, &t.Standard, &timeout, &wait, &ignore,
		&username, &password, &headers, &hideElements, &annotations)
	if err != nil {
		return nil, err
	}
	if t.ID, err = objectid.Parse(id); err != nil {
		return nil, fmt.Errorf("stored task id %q: %w", id, err)
	}
	t.Timeout = nullInt(timeout)
	t.Wait = nullInt(wait)
	t.Username = nullString(username)
	t.Password = nullString(password)
	t.HideElements = nullString(hideElements)
	if err := decodeColumn(ignore, &t.Ignore); err != nil {
		return nil, err
	}
	if err := decodeColumn(headers, &t.Headers); err != nil {
		return nil, err
	}
	if err := decodeColumn(annotations, &t.Annotations); err != nil {
		return nil, err
	}
	return &t, nil
}

func scanResult(row rowScanner) (*models.Result, error) {
	var (
		r               models.Result
		id, taskID      string
		dateMS          int64
		ignore, results sql.NullString
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
	if err := decodeColumn(ignore, &r.Ignore); err != nil {
		return nil, err
	}
	if err := decodeColumn(results, &r.Results); err != nil {
		return nil, err
	}
	return &r, nil
}

// InsertTask saves a new task.
func (s *SQLiteStore) InsertTask(ctx context.Context, t *models.Task) error {
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
	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, t.ID.String(), t.Name, t.URL, t.Standard, t.Timeout, t.Wait,
		ignore, t.Username, t.Password, headers, t.HideElements, annotations)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ListTasks retrieves all tasks ordered by name, standard and url.
func (s *SQLiteStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks ORDER BY name, standard, url`
	rows, err := s.db.QueryContext(ctx, query)
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

// FindTask retrieves a single task by id.
func (s *SQLiteStore) FindTask(ctx context.Context, id objectid.ID) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`
	t, err := scanTask(s.db.QueryRowContext(ctx, query, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by id: %w", err)
	}
	return t, nil
}

// UpdateTask applies an edit and appends its annotation in one statement.
func (s *SQLiteStore) UpdateTask(ctx context.Context, id objectid.ID, u models.TaskUpdate, a models.Annotation) (int64, error) {
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
	name = ?, timeout = ?, wait = ?, username = ?, password = ?,
	ignore_rules = COALESCE(?, ignore_rules),
	annotations = json_insert(COALESCE(annotations, '[]'), '$[#]', json(?))
WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, u.Name, u.Timeout, u.Wait, u.Username, u.Password,
		ignore, annotation, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to update task: %w", err)
	}
	return res.RowsAffected()
}

// AppendAnnotation pushes an annotation onto a task's history.
func (s *SQLiteStore) AppendAnnotation(ctx context.Context, id objectid.ID, a models.Annotation) (int64, error) {
	annotation, err := storage.EncodeJSON(a)
	if err != nil {
		return 0, err
	}
	query := `UPDATE tasks SET annotations = json_insert(COALESCE(annotations, '[]'), '$[#]', json(?)) WHERE id = ?`
	res, err := s.db.ExecContext(ctx, query, annotation, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to append annotation: %w", err)
	}
	return res.RowsAffected()
}

// DeleteTask removes a task. Its results are left in place.
func (s *SQLiteStore) DeleteTask(ctx context.Context, id objectid.ID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete task: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAllTasks empties the tasks table.
func (s *SQLiteStore) DeleteAllTasks(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	return nil
}

// InsertResult saves a new result.
func (s *SQLiteStore) InsertResult(ctx context.Context, r *models.Result) error {
	ignore, err := storage.EncodeJSON(r.Ignore)
	if err != nil {
		return err
	}
	results, err := storage.EncodeJSON(r.Results)
	if err != nil {
		return err
	}
	query := `INSERT INTO results (` + resultColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, r.ID.String(), r.Task.String(), r.Date.UnixMilli(),
		r.Count.Total, r.Count.Error, r.Count.Warning, r.Count.Notice, ignore, results)
	if err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// FindResults retrieves results inside the query window, newest first.
func (s *SQLiteStore) FindResults(ctx context.Context, q storage.ResultQuery) ([]models.Result, error) {
	var args []any
	qb := strings.Builder{}
	qb.WriteString("SELECT " + resultColumns + " FROM results WHERE 1=1")
	if !q.From.IsZero() {
		args = append(args, q.FromMillis())
		qb.WriteString(" AND date_ms > ?")
	}
	if !q.To.IsZero() {
		args = append(args, q.ToMillis())
		qb.WriteString(" AND date_ms < ?")
	}
	if q.TaskID != nil {
		args = append(args, q.TaskID.String())
		qb.WriteString(" AND task_id = ?")
	}
	qb.WriteString(" ORDER BY date_ms DESC, id DESC")
	if q.Limit > 0 {
		args = append(args, q.Limit)
		qb.WriteString(" LIMIT ?")
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	defer rows.Close()
	results := []models.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, *r)
	}
	return results, rows.Err()
}

// FindResult retrieves one result, optionally scoped to a task.
func (s *SQLiteStore) FindResult(ctx context.Context, id objectid.ID, taskID *objectid.ID) (*models.Result, error) {
	query := `SELECT ` + resultColumns + ` FROM results WHERE id = ?`
	args := []any{id.String()}
	if taskID != nil {
		query += ` AND task_id = ?`
		args = append(args, taskID.String())
	}
	r, err := scanResult(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result by id: %w", err)
	}
	return r, nil
}

// DeleteResultsByTask removes every result of a task.
func (s *SQLiteStore) DeleteResultsByTask(ctx context.Context, taskID objectid.ID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM results WHERE task_id = ?`, taskID.String())
	if err != nil {
		return 0, fmt.Errorf("failed to delete results: %w", err)
	}
	return res.RowsAffected()
}

// DeleteAllResults empties the results table.
func (s *SQLiteStore) DeleteAllResults(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM results`); err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func decodeColumn(v sql.NullString, dst any) error {
	if !v.Valid {
		return nil
	}
	return storage.DecodeJSON([]byte(v.String), dst)
}
