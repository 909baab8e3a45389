package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"a11ywatch/internal/models"
	"a11ywatch/internal/objectid"
	"a11ywatch/internal/storage"
)

// appendAnnotation pushes one JSON object onto the annotations array, creating it when NULL.
const appendAnnotation = "JSON_ARRAY_APPEND(COALESCE(annotations, JSON_ARRAY()), '$', CAST(? AS JSON))"

// MySQLStore implements storage.Backend on MySQL through gorm.
type MySQLStore struct {
	db *gorm.DB
}

var _ storage.Backend = (*MySQLStore)(nil)

type taskRow struct {
	ID           string `gorm:"primaryKey;size:24"`
	Name         string `gorm:"size:191;not null;index:idx_tasks_name_url_standard,priority:1"`
	URL          string `gorm:"size:512;not null;index:idx_tasks_name_url_standard,priority:2"`
	Standard     string `gorm:"size:32;not null;index:idx_tasks_name_url_standard,priority:3"`
	Timeout      *int
	Wait         *int
	IgnoreRules  datatypes.JSON
	Username     *string `gorm:"size:255"`
	Password     *string `gorm:"size:255"`
	Headers      datatypes.JSON
	HideElements *string `gorm:"size:1024"`
	Annotations  datatypes.JSON
}

func (taskRow) TableName() string { return "tasks" }

type resultRow struct {
	ID           string `gorm:"primaryKey;size:24"`
	TaskID       string `gorm:"size:24;not null;index:idx_results_task_id_date,priority:1"`
	DateMS       int64  `gorm:"column:date_ms;not null;index:idx_results_date;index:idx_results_task_id_date,priority:2,sort:desc"`
	CountTotal   int    `gorm:"not null;default:0"`
	CountError   int    `gorm:"not null;default:0"`
	CountWarning int    `gorm:"not null;default:0"`
	CountNotice  int    `gorm:"not null;default:0"`
	IgnoreRules  datatypes.JSON
	Results      datatypes.JSON
}

func (resultRow) TableName() string { return "results" }

// New opens the MySQL database described by dsn and migrates the schema.
func New(ctx context.Context, dsn string) (*MySQLStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open mysql database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unable to access mysql pool: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&taskRow{}, &resultRow{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &MySQLStore{db: db}, nil
}

// Close closes the underlying connection pool.
func (s *MySQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func jsonColumn(v any) (datatypes.JSON, error) {
	s, err := storage.EncodeJSON(v)
	if err != nil || s == nil {
		return nil, err
	}
	return datatypes.JSON(*s), nil
}

func newTaskRow(t *models.Task) (*taskRow, error) {
	row := &taskRow{
		ID:           t.ID.String(),
		Name:         t.Name,
		URL:          t.URL,
		Standard:     t.Standard,
		Timeout:      t.Timeout,
		Wait:         t.Wait,
		Username:     t.Username,
		Password:     t.Password,
		HideElements: t.HideElements,
	}
	var err error
	if row.IgnoreRules, err = jsonColumn(t.Ignore); err != nil {
		return nil, err
	}
	if row.Headers, err = jsonColumn(t.Headers); err != nil {
		return nil, err
	}
	if row.Annotations, err = jsonColumn(t.Annotations); err != nil {
		return nil, err
	}
	return row, nil
}

func (row *taskRow) task() (*models.Task, error) {
	id, err := objectid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("stored task id %q: %w", row.ID, err)
	}
	t := &models.Task{
		ID:           id,
		Name:         row.Name,
		URL:          row.URL,
		Standard:     row.Standard,
		Timeout:      row.Timeout,
		Wait:         row.Wait,
		Username:     row.Username,
		Password:     row.Password,
		HideElements: row.HideElements,
	}
	if err := storage.DecodeJSON(row.IgnoreRules, &t.Ignore); err != nil {
		return nil, err
	}
	if err := storage.DecodeJSON(row.Headers, &t.Headers); err != nil {
		return nil, err
	}
	if err := storage.DecodeJSON(row.Annotations, &t.Annotations); err != nil {
		return nil, err
	}
	return t, nil
}

func newResultRow(r *models.Result) (*resultRow, error) {
	row := &resultRow{
		ID:           r.ID.String(),
		TaskID:       r.Task.String(),
		DateMS:       r.Date.UnixMilli(),
		CountTotal:   r.Count.Total,
		CountError:   r.Count.Error,
		CountWarning: r.Count.Warning,
		CountNotice:  r.Count.Notice,
	}
	var err error
	if row.IgnoreRules, err = jsonColumn(r.Ignore); err != nil {
		return nil, err
	}
	if row.Results, err = jsonColumn(r.Results); err != nil {
		return nil, err
	}
	return row, nil
}

func (row *resultRow) result() (*models.Result, error) {
	id, err := objectid.Parse(row.ID)
	if err != nil {
		return nil, fmt.Errorf("stored result id %q: %w", row.ID, err)
	}
	taskID, err := objectid.Parse(row.TaskID)
	if err != nil {
		return nil, fmt.Errorf("stored result task id %q: %w", row.TaskID, err)
	}
	r := &models.Result{
		ID:   id,
		Task: taskID,
		Date: time.UnixMilli(row.DateMS).UTC(),
		Count: models.Count{
			Total:   row.CountTotal,
			Error:   row.CountError,
			Warning: row.CountWarning,
			Notice:  row.CountNotice,
		},
	}
	if err := storage.DecodeJSON(row.IgnoreRules, &r.Ignore); err != nil {
		return nil, err
	}
	if err := storage.DecodeJSON(row.Results, &r.Results); err != nil {
		return nil, err
	}
	return r, nil
}

// InsertTask implements storage.TaskCollection.
func (s *MySQLStore) InsertTask(ctx context.Context, t *models.Task) error {
	row, err := newTaskRow(t)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ListTasks implements storage.TaskCollection.
func (s *MySQLStore) ListTasks(ctx context.Context) ([]models.Task, error) {
	var rows []taskRow
	if err := s.db.WithContext(ctx).Order("name, standard, url").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	tasks := make([]models.Task, 0, len(rows))
	for i := range rows {
		t, err := rows[i].task()
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// FindTask implements storage.TaskCollection.
func (s *MySQLStore) FindTask(ctx context.Context, id objectid.ID) (*models.Task, error) {
	var row taskRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id.String()).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task by id: %w", err)
	}
	return row.task()
}

// UpdateTask implements storage.TaskCollection.
func (s *MySQLStore) UpdateTask(ctx context.Context, id objectid.ID, u models.TaskUpdate, a models.Annotation) (int64, error) {
	annotation, err := storage.EncodeJSON(a)
	if err != nil {
		return 0, err
	}
	updates := map[string]any{
		"name":        u.Name,
		"timeout":     u.Timeout,
		"wait":        u.Wait,
		"username":    u.Username,
		"password":    u.Password,
		"annotations": gorm.Expr(appendAnnotation, *annotation),
	}
	if u.Ignore != nil {
		ignore, err := jsonColumn(u.Ignore)
		if err != nil {
			return 0, err
		}
		updates["ignore_rules"] = ignore
	}
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id.String()).Updates(updates)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update task: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AppendAnnotation implements storage.TaskCollection.
func (s *MySQLStore) AppendAnnotation(ctx context.Context, id objectid.ID, a models.Annotation) (int64, error) {
	annotation, err := storage.EncodeJSON(a)
	if err != nil {
		return 0, err
	}
	res := s.db.WithContext(ctx).Model(&taskRow{}).Where("id = ?", id.String()).
		Update("annotations", gorm.Expr(appendAnnotation, *annotation))
	if res.Error != nil {
		return 0, fmt.Errorf("failed to append annotation: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteTask implements storage.TaskCollection.
func (s *MySQLStore) DeleteTask(ctx context.Context, id objectid.ID) (int64, error) {
	res := s.db.WithContext(ctx).Where("id = ?", id.String()).Delete(&taskRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete task: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAllTasks implements storage.TaskCollection.
func (s *MySQLStore) DeleteAllTasks(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&taskRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear tasks: %w", err)
	}
	return nil
}

// InsertResult implements storage.ResultCollection.
func (s *MySQLStore) InsertResult(ctx context.Context, r *models.Result) error {
	row, err := newResultRow(r)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create result: %w", err)
	}
	return nil
}

// FindResults implements storage.ResultCollection.
func (s *MySQLStore) FindResults(ctx context.Context, q storage.ResultQuery) ([]models.Result, error) {
	tx := s.db.WithContext(ctx).Model(&resultRow{})
	if !q.From.IsZero() {
		tx = tx.Where("date_ms > ?", q.FromMillis())
	}
	if !q.To.IsZero() {
		tx = tx.Where("date_ms < ?", q.ToMillis())
	}
	if q.TaskID != nil {
		tx = tx.Where("task_id = ?", q.TaskID.String())
	}
	tx = tx.Order("date_ms DESC, id DESC")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []resultRow
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list results: %w", err)
	}
	results := make([]models.Result, 0, len(rows))
	for i := range rows {
		r, err := rows[i].result()
		if err != nil {
			return nil, err
		}
		results = append(results, *r)
	}
	return results, nil
}

// FindResult implements storage.ResultCollection.
func (s *MySQLStore) FindResult(ctx context.Context, id objectid.ID, taskID *objectid.ID) (*models.Result, error) {
	tx := s.db.WithContext(ctx).Where("id = ?", id.String())
	if taskID != nil {
		tx = tx.Where("task_id = ?", taskID.String())
	}
	var row resultRow
	err := tx.First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result by id: %w", err)
	}
	return row.result()
}

// DeleteResultsByTask implements storage.ResultCollection.
func (s *MySQLStore) DeleteResultsByTask(ctx context.Context, taskID objectid.ID) (int64, error) {
	res := s.db.WithContext(ctx).Where("task_id = ?", taskID.String()).Delete(&resultRow{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete results: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// DeleteAllResults implements storage.ResultCollection.
func (s *MySQLStore) DeleteAllResults(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("1 = 1").Delete(&resultRow{}).Error; err != nil {
		return fmt.Errorf("failed to clear results: %w", err)
	}
	return nil
}
