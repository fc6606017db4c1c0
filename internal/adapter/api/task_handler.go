package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/port"
	"github.com/fieldops/dispatch/internal/core/service"
)

// TaskHandler exposes the dashboard's task operations.
type TaskHandler struct {
	tasks      port.TaskRepository
	assignment *service.Assignment
	lifecycle  *service.Lifecycle
	log        *zap.Logger
}

func NewTaskHandler(
	tasks port.TaskRepository,
	assignment *service.Assignment,
	lifecycle *service.Lifecycle,
	log *zap.Logger,
) *TaskHandler {
	return &TaskHandler{
		tasks:      tasks,
		assignment: assignment,
		lifecycle:  lifecycle,
		log:        log,
	}
}

// CreateTaskRequest is the dashboard's new-task payload.
type CreateTaskRequest struct {
	Title     string           `json:"title" binding:"required"`
	Type      string           `json:"type"`
	Priority  string           `json:"priority"`
	CreatorID string           `json:"creator_id" binding:"required"`
	Skills    []string         `json:"skills"`
	Location  *domain.GeoPoint `json:"location"`
	Deadline  *time.Time       `json:"deadline"`
}

// Create registers a new task in DRAFT.
func (h *TaskHandler) Create(c *gin.Context) {
	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	priority := domain.TaskPriority(req.Priority)
	switch priority {
	case domain.TaskPriorityUrgent, domain.TaskPriorityHigh,
		domain.TaskPriorityNormal, domain.TaskPriorityLow:
	case "":
		priority = domain.TaskPriorityNormal
	default:
		Error(c, http.StatusBadRequest, "invalid priority", req.Priority)
		return
	}

	now := time.Now()
	id := uuid.New().String()
	task := &domain.Task{
		ID:        id,
		ShortCode: domain.ShortCodeFromID(id),
		Title:     req.Title,
		Type:      req.Type,
		Priority:  priority,
		CreatorID: req.CreatorID,
		Skills:    req.Skills,
		Location:  req.Location,
		Deadline:  req.Deadline,
		Status:    domain.TaskStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.tasks.Create(c.Request.Context(), task); err != nil {
		DomainError(c, err)
		return
	}
	Success(c, task)
}

// Get returns one task by id.
func (h *TaskHandler) Get(c *gin.Context) {
	task, err := h.tasks.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		DomainError(c, err)
		return
	}
	Success(c, task)
}

// AssignRequest names a worker, or leaves WorkerID empty to let the scorer
// choose.
type AssignRequest struct {
	WorkerID string `json:"worker_id"`
	ActorID  string `json:"actor_id" binding:"required"`
}

// Assign dispatches the task to a worker.
func (h *TaskHandler) Assign(c *gin.Context) {
	var req AssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	result, err := h.assignment.Assign(c.Request.Context(), c.Param("id"), req.WorkerID, req.ActorID)
	if err != nil {
		DomainError(c, err)
		return
	}
	Success(c, result)
}

// StatusRequest drives a manual lifecycle transition.
type StatusRequest struct {
	Status  string `json:"status" binding:"required"`
	ActorID string `json:"actor_id" binding:"required"`
	Reason  string `json:"reason"`
}

// UpdateStatus moves the task through the privileged dashboard path.
func (h *TaskHandler) UpdateStatus(c *gin.Context) {
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	task, err := h.lifecycle.Transition(c.Request.Context(),
		c.Param("id"), domain.TaskStatus(req.Status), req.ActorID, req.Reason)
	if err != nil {
		DomainError(c, err)
		return
	}
	Success(c, task)
}
