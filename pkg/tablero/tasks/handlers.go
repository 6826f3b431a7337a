package tasks

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/dcastano/tablero/pkg/tablero/notify"
	"github.com/dcastano/tablero/pkg/tablero/projects"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Handler handles task-related requests
type Handler struct {
	db     *gorm.DB
	engine *notify.Engine
}

// NewHandler creates a new tasks handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, engine: notify.NewEngine()}
}

// CreateTaskRequest represents the request to create a task
type CreateTaskRequest struct {
	Title       string `json:"title" binding:"required,min=3"`
	Description string `json:"description" binding:"required,min=5"`
	DueDate     string `json:"due_date" binding:"required"`
	Assignees   []uint `json:"assignees"`
}

// UpdateTaskRequest represents the request to update a task
type UpdateTaskRequest struct {
	Title       string  `json:"title" binding:"required,min=3"`
	Description string  `json:"description" binding:"required,min=5"`
	DueDate     string  `json:"due_date" binding:"required"`
	Status      string  `json:"status" binding:"required,oneof=pendiente en_progreso completada"`
	Assignees   *[]uint `json:"assignees"`
}

// TaskResponse represents a task in API responses
type TaskResponse struct {
	ID          uint   `json:"id"`
	ProjectID   uint   `json:"project_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     string `json:"due_date"`
	Status      string `json:"status"`
	Assignees   []uint `json:"assignees"`
}

func (h *Handler) taskResponse(t *models.Task) TaskResponse {
	var assignments []models.TaskAssignment
	h.db.Where("task_id = ?", t.ID).Order("user_id").Find(&assignments)

	assignees := make([]uint, len(assignments))
	for i, a := range assignments {
		assignees[i] = a.UserID
	}
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		DueDate:     t.DueDate.Format(dateLayout),
		Status:      string(t.Status),
		Assignees:   assignees,
	}
}

// today returns the current date truncated to midnight UTC
func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// resolveAssignees validates the requested assignee IDs against the project
// member candidate set and deduplicates them. Defaults to the actor when the
// request names nobody.
func resolveAssignees(db *gorm.DB, projectID uint, requested []uint, actorID uint) ([]uint, *gin.H) {
	if len(requested) == 0 {
		return []uint{actorID}, nil
	}

	members, err := projects.Members(db, projectID)
	if err != nil {
		return nil, &gin.H{"error": "Failed to fetch members"}
	}
	candidates := make(map[uint]bool, len(members))
	for _, m := range members {
		candidates[m.ID] = true
	}

	seen := make(map[uint]bool, len(requested))
	var assignees []uint
	for _, id := range requested {
		if !candidates[id] {
			return nil, &gin.H{"error": "El usuario asignado no pertenece al proyecto", "field": "assignees"}
		}
		if !seen[id] {
			seen[id] = true
			assignees = append(assignees, id)
		}
	}
	return assignees, nil
}

// List returns the tasks of a project visible to the current user
// @Summary List tasks
// @Description Get the tasks of a project
// @Tags tasks
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} TaskResponse
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks [get]
func (h *Handler) List(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return
	}

	project, err := authz.VisibleProject(h.db, actor, uint(projectID))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			authz.NotFound(c, "Project")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
		return
	}

	var tasks []models.Task
	if err := h.db.Where("project_id = ?", project.ID).Order("id").Find(&tasks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tasks"})
		return
	}

	responses := make([]TaskResponse, len(tasks))
	for i := range tasks {
		responses[i] = h.taskResponse(&tasks[i])
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a task in a project. Any project member can create tasks;
// the creator is assigned by default when no assignees are given.
// @Summary Create a task
// @Description Create a task; assignees default to the creator
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body CreateTaskRequest true "Task details"
// @Success 201 {object} TaskResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks [post]
func (h *Handler) Create(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return
	}

	project, err := authz.VisibleProject(h.db, actor, uint(projectID))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			authz.NotFound(c, "Project")
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
		return
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dueDate, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid due date", "field": "due_date"})
		return
	}
	// Evaluated at submission time, never stored
	if dueDate.Before(today()) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "La fecha límite no puede estar en el pasado", "field": "due_date"})
		return
	}

	assignees, vErr := resolveAssignees(h.db, project.ID, req.Assignees, actor.ID)
	if vErr != nil {
		c.JSON(http.StatusBadRequest, *vErr)
		return
	}

	var actorUser models.User
	if err := h.db.First(&actorUser, actor.ID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var task models.Task
	err = h.db.Transaction(func(tx *gorm.DB) error {
		task = models.Task{
			ProjectID:   project.ID,
			Title:       req.Title,
			Description: req.Description,
			DueDate:     dueDate,
			Status:      models.StatusPendiente,
		}
		if err := tx.Create(&task).Error; err != nil {
			return err
		}

		for _, userID := range assignees {
			assignment := models.TaskAssignment{TaskID: task.ID, UserID: userID}
			if err := tx.Create(&assignment).Error; err != nil {
				return err
			}
		}

		_, err := h.engine.Fanout(tx, notify.TaskCreated(actorUser, &task))
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create task"})
		return
	}

	c.JSON(http.StatusCreated, h.taskResponse(&task))
}

// Get returns a task scoped to a visible project
// @Summary Get a task
// @Description Get a task of a visible project
// @Tags tasks
// @Produce json
// @Param id path int true "Project ID"
// @Param taskId path int true "Task ID"
// @Success 200 {object} TaskResponse
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks/{taskId} [get]
func (h *Handler) Get(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	_, task, ok := h.loadTask(c, actor)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.taskResponse(task))
}

// Update edits a task (assignee, administrador or superuser). Assignees are
// replaced when the request carries the field.
// @Summary Update a task
// @Description Update a task's fields, status and assignee set
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param taskId path int true "Task ID"
// @Param request body UpdateTaskRequest true "Task details"
// @Success 200 {object} TaskResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks/{taskId} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project, task, ok := h.loadTask(c, actor)
	if !ok {
		return
	}

	allowed, err := authz.AuthorizeTask(h.db, actor, project, task)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		authz.Deny(c, actor, authz.ActionEditTask, "/projects/"+c.Param("id")+"/tasks")
		return
	}

	var req UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	dueDate, err := time.Parse(dateLayout, req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid due date", "field": "due_date"})
		return
	}

	// An absent field keeps the current assignees; an explicit empty list is
	// rejected so a task never ends up with nobody responsible for it.
	var newAssignees []uint
	if req.Assignees != nil {
		if len(*req.Assignees) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "La tarea debe tener al menos un asignado", "field": "assignees"})
			return
		}
		var vErr *gin.H
		newAssignees, vErr = resolveAssignees(h.db, project.ID, *req.Assignees, actor.ID)
		if vErr != nil {
			c.JSON(http.StatusBadRequest, *vErr)
			return
		}
	}

	var actorUser models.User
	if err := h.db.First(&actorUser, actor.ID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		task.Title = req.Title
		task.Description = req.Description
		task.DueDate = dueDate
		task.Status = models.TaskStatus(req.Status)
		if err := tx.Save(task).Error; err != nil {
			return err
		}

		if req.Assignees != nil {
			if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskAssignment{}).Error; err != nil {
				return err
			}
			for _, userID := range newAssignees {
				assignment := models.TaskAssignment{TaskID: task.ID, UserID: userID}
				if err := tx.Create(&assignment).Error; err != nil {
					return err
				}
			}
		}

		_, err := h.engine.Fanout(tx, notify.TaskUpdated(actorUser, task))
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update task"})
		return
	}

	c.JSON(http.StatusOK, h.taskResponse(task))
}

// Delete removes a task with its comments and assignments (assignee,
// administrador or superuser)
// @Summary Delete a task
// @Description Delete a task and everything attached to it
// @Tags tasks
// @Produce json
// @Param id path int true "Project ID"
// @Param taskId path int true "Task ID"
// @Success 200 {object} map[string]string "Task deleted"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks/{taskId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project, task, ok := h.loadTask(c, actor)
	if !ok {
		return
	}

	allowed, err := authz.AuthorizeTask(h.db, actor, project, task)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		authz.Deny(c, actor, authz.ActionEditTask, "/projects/"+c.Param("id")+"/tasks")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id = ?", task.ID).Delete(&models.TaskAssignment{}).Error; err != nil {
			return err
		}
		return tx.Delete(task).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete task"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Task deleted"})
}

// loadTask resolves the visibility-scoped (project, task) pair from the
// route, answering 404 for anything absent or invisible
func (h *Handler) loadTask(c *gin.Context, actor authz.Actor) (*models.Project, *models.Task, bool) {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return nil, nil, false
	}
	taskID, err := strconv.ParseUint(c.Param("taskId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return nil, nil, false
	}

	project, task, err := authz.VisibleTask(h.db, actor, uint(projectID), uint(taskID))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			authz.NotFound(c, "Task")
			return nil, nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch task"})
		return nil, nil, false
	}
	return project, task, true
}

// RegisterRoutes registers task routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects/:id/tasks", h.List)
	rg.POST("/projects/:id/tasks", h.Create)
	rg.GET("/projects/:id/tasks/:taskId", h.Get)
	rg.PUT("/projects/:id/tasks/:taskId", h.Update)
	rg.DELETE("/projects/:id/tasks/:taskId", h.Delete)
	rg.GET("/projects/:id/tasks/:taskId/comments", h.ListComments)
	rg.POST("/projects/:id/tasks/:taskId/comments", h.AddComment)
}
