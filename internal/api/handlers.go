package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"a11ywatch/internal/models"
	"a11ywatch/internal/runlog"
	"a11ywatch/internal/scheduler"
	"a11ywatch/internal/urlutil"
)

// TaskService is the part of the task store the API uses.
type TaskService interface {
	Create(ctx context.Context, nt models.NewTask) (*models.TaskOutput, error)
	GetAll(ctx context.Context) ([]models.TaskOutput, error)
	GetByID(ctx context.Context, id string) (*models.TaskOutput, error)
	EditByID(ctx context.Context, id string, edits models.TaskEdits) (int64, error)
	DeleteByID(ctx context.Context, id string) (*int64, error)
}

// ResultService is the part of the result store the API uses.
type ResultService interface {
	GetAll(ctx context.Context, f models.ResultFilter) ([]models.ResultOutput, error)
	GetByTaskID(ctx context.Context, taskID string, f models.ResultFilter) ([]models.ResultOutput, error)
	GetByIDAndTaskID(ctx context.Context, id, taskID string, f models.ResultFilter) (*models.ResultOutput, error)
	DeleteByTaskID(ctx context.Context, taskID string) (*int64, error)
}

// RunQueue accepts one-off task runs.
type RunQueue interface {
	Enqueue(ctx context.Context, taskID string) error
}

// defaultLogLines is how many run log lines GET /tasks/:id/log returns.
const defaultLogLines = 100

// Handlers holds dependencies for the API handlers.
type Handlers struct {
	tasks   TaskService
	results ResultService
	runs    RunQueue
	runLog  runlog.Recorder
	logger  *slog.Logger
}

// NewHandlers creates a new Handlers struct.
func NewHandlers(tasks TaskService, results ResultService, runs RunQueue, runLog runlog.Recorder, logger *slog.Logger) *Handlers {
	return &Handlers{tasks: tasks, results: results, runs: runs, runLog: runLog, logger: logger}
}

// taskWithResult is a task with its newest full result attached.
type taskWithResult struct {
	models.TaskOutput
	LastResult *models.ResultOutput `json:"last_result"`
}

func abortWith(c *gin.Context, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	c.AbortWithStatusJSON(status, gin.H{"code": status, "error": msg})
}

func (h *Handlers) internalError(c *gin.Context, op string, err error) {
	h.logger.Error("request failed", "op", op, "request_id", c.GetString(requestIDKey), "err", err)
	abortWith(c, http.StatusInternalServerError, "")
}

func queryBool(c *gin.Context, key string) (bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func bindFilter(c *gin.Context) (models.ResultFilter, bool) {
	var f models.ResultFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		abortWith(c, http.StatusBadRequest, err.Error())
		return f, false
	}
	if f.Limit < 0 {
		abortWith(c, http.StatusBadRequest, "limit cannot be negative")
		return f, false
	}
	return f, true
}

// loadTask writes a 404 or 500 and returns nil when the task cannot be served.
func (h *Handlers) loadTask(c *gin.Context) *models.TaskOutput {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.internalError(c, "task.get", err)
		return nil
	}
	if task == nil {
		abortWith(c, http.StatusNotFound, "")
		return nil
	}
	return task
}

func (h *Handlers) lastResult(ctx context.Context, taskID string) (*models.ResultOutput, error) {
	results, err := h.results.GetByTaskID(ctx, taskID, models.ResultFilter{Limit: 1, Full: true})
	if err != nil || len(results) == 0 {
		return nil, err
	}
	return &results[0], nil
}

// Healthz reports liveness.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ListTasks handles GET /tasks.
func (h *Handlers) ListTasks(c *gin.Context) {
	lastres, err := queryBool(c, "lastres")
	if err != nil {
		abortWith(c, http.StatusBadRequest, "lastres must be a boolean")
		return
	}
	tasks, err := h.tasks.GetAll(c.Request.Context())
	if err != nil {
		h.internalError(c, "task.list", err)
		return
	}
	if !lastres {
		c.JSON(http.StatusOK, tasks)
		return
	}
	out := make([]taskWithResult, 0, len(tasks))
	for _, t := range tasks {
		last, err := h.lastResult(c.Request.Context(), t.ID)
		if err != nil {
			h.internalError(c, "task.list", err)
			return
		}
		out = append(out, taskWithResult{TaskOutput: t, LastResult: last})
	}
	c.JSON(http.StatusOK, out)
}

// CreateTask handles POST /tasks.
func (h *Handlers) CreateTask(c *gin.Context) {
	var nt models.NewTask
	if err := c.ShouldBindJSON(&nt); err != nil {
		abortWith(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := nt.Validate(); err != nil {
		abortWith(c, http.StatusBadRequest, err.Error())
		return
	}
	normalized, err := urlutil.NormalizePage(nt.URL)
	if err != nil {
		abortWith(c, http.StatusBadRequest, err.Error())
		return
	}
	nt.URL = normalized

	task, err := h.tasks.Create(c.Request.Context(), nt)
	if err != nil {
		h.internalError(c, "task.create", err)
		return
	}
	c.Header("Location", "/tasks/"+task.ID)
	c.JSON(http.StatusCreated, task)
}

// GetTask handles GET /tasks/:id.
func (h *Handlers) GetTask(c *gin.Context) {
	lastres, err := queryBool(c, "lastres")
	if err != nil {
		abortWith(c, http.StatusBadRequest, "lastres must be a boolean")
		return
	}
	task := h.loadTask(c)
	if task == nil {
		return
	}
	if !lastres {
		c.JSON(http.StatusOK, task)
		return
	}
	last, err := h.lastResult(c.Request.Context(), task.ID)
	if err != nil {
		h.internalError(c, "task.get", err)
		return
	}
	c.JSON(http.StatusOK, taskWithResult{TaskOutput: *task, LastResult: last})
}

// EditTask handles PATCH /tasks/:id.
func (h *Handlers) EditTask(c *gin.Context) {
	var edits models.TaskEdits
	if err := c.ShouldBindJSON(&edits); err != nil {
		abortWith(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := edits.Validate(); err != nil {
		abortWith(c, http.StatusBadRequest, err.Error())
		return
	}
	task := h.loadTask(c)
	if task == nil {
		return
	}
	n, err := h.tasks.EditByID(c.Request.Context(), task.ID, edits)
	if err != nil {
		h.internalError(c, "task.edit", err)
		return
	}
	if n < 1 {
		h.internalError(c, "task.edit", errors.New("task vanished during edit"))
		return
	}
	updated := h.loadTask(c)
	if updated == nil {
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteTask handles DELETE /tasks/:id. The task's results go with it.
func (h *Handlers) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	n, err := h.tasks.DeleteByID(c.Request.Context(), id)
	if err != nil {
		h.internalError(c, "task.delete", err)
		return
	}
	if n == nil || *n == 0 {
		abortWith(c, http.StatusNotFound, "")
		return
	}
	if _, err := h.results.DeleteByTaskID(c.Request.Context(), id); err != nil {
		h.internalError(c, "task.delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// RunTask handles POST /tasks/:id/run.
func (h *Handlers) RunTask(c *gin.Context) {
	err := h.runs.Enqueue(c.Request.Context(), c.Param("id"))
	switch {
	case err == nil:
		c.Status(http.StatusAccepted)
	case errors.Is(err, scheduler.ErrUnknownTask):
		abortWith(c, http.StatusNotFound, "")
	case errors.Is(err, scheduler.ErrQueueFull):
		abortWith(c, http.StatusServiceUnavailable, "run queue is full, try again later")
	default:
		h.internalError(c, "task.run", err)
	}
}

// ListTaskResults handles GET /tasks/:id/results.
func (h *Handlers) ListTaskResults(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	task := h.loadTask(c)
	if task == nil {
		return
	}
	results, err := h.results.GetByTaskID(c.Request.Context(), task.ID, f)
	if err != nil {
		h.internalError(c, "result.list", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// GetTaskResult handles GET /tasks/:id/results/:rid.
func (h *Handlers) GetTaskResult(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	res, err := h.results.GetByIDAndTaskID(c.Request.Context(), c.Param("rid"), c.Param("id"), f)
	if err != nil {
		h.internalError(c, "result.get", err)
		return
	}
	if res == nil {
		abortWith(c, http.StatusNotFound, "")
		return
	}
	c.JSON(http.StatusOK, res)
}

// ListResults handles GET /tasks/results.
func (h *Handlers) ListResults(c *gin.Context) {
	f, ok := bindFilter(c)
	if !ok {
		return
	}
	results, err := h.results.GetAll(c.Request.Context(), f)
	if err != nil {
		h.internalError(c, "result.listAll", err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// TaskLog handles GET /tasks/:id/log.
func (h *Handlers) TaskLog(c *gin.Context) {
	lines := defaultLogLines
	if raw := c.Query("lines"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 {
			abortWith(c, http.StatusBadRequest, "lines must be a positive integer")
			return
		}
		lines = v
	}
	task := h.loadTask(c)
	if task == nil {
		return
	}
	logs, err := h.runLog.Recent(c.Request.Context(), task.ID, lines)
	if err != nil {
		h.internalError(c, "task.log", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"task": task.ID, "logs": logs})
}
