package tasks

import (
	"net/http"

	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/dcastano/tablero/pkg/tablero/notify"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AddCommentRequest represents the request to comment on a task
type AddCommentRequest struct {
	Body string `json:"body" binding:"required,min=2,max=300"`
}

// CommentResponse represents a comment in API responses
type CommentResponse struct {
	ID        uint   `json:"id"`
	TaskID    uint   `json:"task_id"`
	AuthorID  uint   `json:"author_id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
}

func commentResponse(cm *models.Comment) CommentResponse {
	return CommentResponse{
		ID:        cm.ID,
		TaskID:    cm.TaskID,
		AuthorID:  cm.AuthorID,
		Body:      cm.Body,
		CreatedAt: cm.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// ListComments returns the comments of a task, oldest first
// @Summary List comments
// @Description Get the comments of a task in chronological order
// @Tags tasks
// @Produce json
// @Param id path int true "Project ID"
// @Param taskId path int true "Task ID"
// @Success 200 {array} CommentResponse
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks/{taskId}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	_, task, ok := h.loadTask(c, actor)
	if !ok {
		return
	}

	var comments []models.Comment
	if err := h.db.Where("task_id = ?", task.ID).Order("created_at").Find(&comments).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch comments"})
		return
	}

	responses := make([]CommentResponse, len(comments))
	for i := range comments {
		responses[i] = commentResponse(&comments[i])
	}
	c.JSON(http.StatusOK, responses)
}

// AddComment adds a comment to a task and notifies the task's assignees,
// commenter excluded
// @Summary Comment on a task
// @Description Add a comment; assignees other than the commenter are notified
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param taskId path int true "Task ID"
// @Param request body AddCommentRequest true "Comment body"
// @Success 201 {object} CommentResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Task not found"
// @Security BearerAuth
// @Router /projects/{id}/tasks/{taskId}/comments [post]
func (h *Handler) AddComment(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	_, task, ok := h.loadTask(c, actor)
	if !ok {
		return
	}

	var req AddCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var actorUser models.User
	if err := h.db.First(&actorUser, actor.ID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var comment models.Comment
	err := h.db.Transaction(func(tx *gorm.DB) error {
		comment = models.Comment{
			TaskID:   task.ID,
			AuthorID: actor.ID,
			Body:     req.Body,
		}
		if err := tx.Create(&comment).Error; err != nil {
			return err
		}

		_, err := h.engine.Fanout(tx, notify.CommentAdded(actorUser, task, &comment))
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add comment"})
		return
	}

	c.JSON(http.StatusCreated, commentResponse(&comment))
}
