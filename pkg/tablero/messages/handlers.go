package messages

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/dcastano/tablero/pkg/tablero/notify"
	"github.com/dcastano/tablero/pkg/tablero/projects"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles messaging requests
type Handler struct {
	db     *gorm.DB
	engine *notify.Engine
}

// NewHandler creates a new messages handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, engine: notify.NewEngine()}
}

// SendMessageRequest represents the request to send a message
type SendMessageRequest struct {
	RecipientID uint   `json:"recipient_id" binding:"required"`
	ProjectID   *uint  `json:"project_id"`
	Body        string `json:"body" binding:"required,min=2,max=500"`
}

// ReplyRequest represents the request to reply to a message
type ReplyRequest struct {
	Body string `json:"body" binding:"required,min=2,max=500"`
}

// MessageResponse represents a message in API responses
type MessageResponse struct {
	ID          uint   `json:"id"`
	SenderID    uint   `json:"sender_id"`
	RecipientID uint   `json:"recipient_id"`
	ProjectID   *uint  `json:"project_id,omitempty"`
	Body        string `json:"body"`
	CreatedAt   string `json:"created_at"`
}

// UserSummary represents another user in the inbox payload
type UserSummary struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// ProjectSummary represents a visible project in the inbox payload
type ProjectSummary struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
}

// InboxResponse is the flat inbox snapshot payload. Unread counts the
// notifications that were pending when the inbox was opened.
type InboxResponse struct {
	Messages []MessageResponse `json:"messages"`
	Users    []UserSummary     `json:"users"`
	Projects []ProjectSummary  `json:"projects"`
	Unread   int64             `json:"unread"`
}

// NotificationResponse represents a notification in API responses
type NotificationResponse struct {
	ID        uint   `json:"id"`
	ProjectID *uint  `json:"project_id,omitempty"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

const timeLayout = "2006-01-02T15:04:05Z"

func messageResponse(m *models.Message) MessageResponse {
	return MessageResponse{
		ID:          m.ID,
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		ProjectID:   m.ProjectID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt.UTC().Format(timeLayout),
	}
}

// RecipientCandidates returns the users a sender may address: the project's
// members when a project scope is given, every user otherwise. The sender is
// excluded from the candidate set rather than rejected after the fact.
func RecipientCandidates(db *gorm.DB, projectID *uint, senderID uint) ([]models.User, error) {
	var candidates []models.User
	if projectID != nil {
		members, err := projects.Members(db, *projectID)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if m.ID != senderID {
				candidates = append(candidates, m)
			}
		}
		return candidates, nil
	}

	err := db.Where("id <> ?", senderID).Order("id").Find(&candidates).Error
	return candidates, err
}

// Send creates a directed message and notifies the recipient
// @Summary Send a message
// @Description Send a directed message, optionally scoped to a project
// @Tags messages
// @Accept json
// @Produce json
// @Param request body SendMessageRequest true "Message details"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Project or recipient not found"
// @Security BearerAuth
// @Router /messages [post]
func (h *Handler) Send(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.ProjectID != nil {
		if _, err := authz.VisibleProject(h.db, actor, *req.ProjectID); err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				authz.NotFound(c, "Project")
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
			return
		}
	}

	candidates, err := RecipientCandidates(h.db, req.ProjectID, actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipients"})
		return
	}
	valid := false
	for _, u := range candidates {
		if u.ID == req.RecipientID {
			valid = true
			break
		}
	}
	if !valid {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Destinatario no válido", "field": "recipient_id"})
		return
	}

	var actorUser models.User
	if err := h.db.First(&actorUser, actor.ID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var msg models.Message
	err = h.db.Transaction(func(tx *gorm.DB) error {
		msg = models.Message{
			SenderID:    actor.ID,
			RecipientID: req.RecipientID,
			ProjectID:   req.ProjectID,
			Body:        req.Body,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		_, err := h.engine.Fanout(tx, notify.MessageSent(actorUser, &msg))
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, messageResponse(&msg))
}

// Reply answers an existing message: the recipient is pre-filled with the
// original sender and the project scope carries over
// @Summary Reply to a message
// @Description Reply to a received message, preserving its project scope
// @Tags messages
// @Accept json
// @Produce json
// @Param id path int true "Message ID"
// @Param request body ReplyRequest true "Reply body"
// @Success 201 {object} MessageResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "Message not found"
// @Security BearerAuth
// @Router /messages/{id}/reply [post]
func (h *Handler) Reply(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	messageID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message ID"})
		return
	}

	// Only the recipient of the original message can reply to it
	var original models.Message
	if err := h.db.Where("id = ? AND recipient_id = ?", messageID, actor.ID).First(&original).Error; err != nil {
		authz.NotFound(c, "Message")
		return
	}

	var req ReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var actorUser models.User
	if err := h.db.First(&actorUser, actor.ID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var msg models.Message
	err = h.db.Transaction(func(tx *gorm.DB) error {
		msg = models.Message{
			SenderID:    actor.ID,
			RecipientID: original.SenderID,
			ProjectID:   original.ProjectID,
			Body:        req.Body,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}

		_, err := h.engine.Fanout(tx, notify.MessageSent(actorUser, &msg))
		return err
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, messageResponse(&msg))
}

// ListProjectMessages returns a project's message board, oldest first
// @Summary List project messages
// @Description Get the messages scoped to a project in chronological order
// @Tags messages
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} MessageResponse
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id}/messages [get]
func (h *Handler) ListProjectMessages(c *gin.Context) {
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

	var msgs []models.Message
	if err := h.db.Where("project_id = ?", project.ID).Order("created_at").Find(&msgs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	responses := make([]MessageResponse, len(msgs))
	for i := range msgs {
		responses[i] = messageResponse(&msgs[i])
	}
	c.JSON(http.StatusOK, responses)
}

// ListReceived returns messages addressed to the current user, newest first
// @Summary List received messages
// @Description Get the current user's received messages
// @Tags messages
// @Produce json
// @Success 200 {array} MessageResponse
// @Security BearerAuth
// @Router /messages/received [get]
func (h *Handler) ListReceived(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	h.listMailbox(c, "recipient_id = ?", actor.ID)
}

// ListSent returns messages sent by the current user, newest first
// @Summary List sent messages
// @Description Get the current user's sent messages
// @Tags messages
// @Produce json
// @Success 200 {array} MessageResponse
// @Security BearerAuth
// @Router /messages/sent [get]
func (h *Handler) ListSent(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	h.listMailbox(c, "sender_id = ?", actor.ID)
}

// listMailbox computes a mailbox as a filtered query over the single message
// table; messages are never duplicated per mailbox
func (h *Handler) listMailbox(c *gin.Context, cond string, userID uint) {
	var msgs []models.Message
	if err := h.db.Where(cond, userID).Order("created_at DESC").Find(&msgs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	responses := make([]MessageResponse, len(msgs))
	for i := range msgs {
		responses[i] = messageResponse(&msgs[i])
	}
	c.JSON(http.StatusOK, responses)
}

// Inbox returns the inbox snapshot and, as a side effect, marks all of the
// caller's unread notifications as read
// @Summary Inbox snapshot
// @Description Get the last 5 received messages, all other users and all visible projects; marks unread notifications read
// @Tags messages
// @Produce json
// @Success 200 {object} InboxResponse
// @Security BearerAuth
// @Router /inbox [get]
func (h *Handler) Inbox(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)

	var msgs []models.Message
	if err := h.db.Where("recipient_id = ?", actor.ID).
		Order("created_at DESC").Limit(5).Find(&msgs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	var others []models.User
	if err := h.db.Where("id <> ?", actor.ID).Order("id").Find(&others).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	visible, err := authz.VisibleProjects(h.db, actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch projects"})
		return
	}

	unread, err := notify.UnreadCount(h.db, actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	// Opening the inbox consumes the unread state
	if err := notify.MarkAllRead(h.db, actor.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notifications"})
		return
	}

	resp := InboxResponse{
		Messages: make([]MessageResponse, len(msgs)),
		Users:    make([]UserSummary, len(others)),
		Projects: make([]ProjectSummary, len(visible)),
		Unread:   unread,
	}
	for i := range msgs {
		resp.Messages[i] = messageResponse(&msgs[i])
	}
	for i, u := range others {
		resp.Users[i] = UserSummary{ID: u.ID, Email: u.Email, Name: u.Name}
	}
	for i, p := range visible {
		resp.Projects[i] = ProjectSummary{ID: p.ID, Title: p.Title}
	}
	c.JSON(http.StatusOK, resp)
}

// ListNotifications returns the caller's notifications with the unread count
// @Summary List notifications
// @Description Get the current user's notifications, newest first
// @Tags messages
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /notifications [get]
func (h *Handler) ListNotifications(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)

	var notifications []models.Notification
	if err := h.db.Where("user_id = ?", actor.ID).Order("created_at DESC").Find(&notifications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	unread, err := notify.UnreadCount(h.db, actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	responses := make([]NotificationResponse, len(notifications))
	for i, n := range notifications {
		responses[i] = NotificationResponse{
			ID:        n.ID,
			ProjectID: n.ProjectID,
			Body:      n.Body,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.UTC().Format(timeLayout),
		}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": responses, "unread": unread})
}

// ListRecipients returns the candidate recipients for the current user,
// optionally narrowed to a project's members
// @Summary List recipient candidates
// @Description Get the users the current user may message, sender excluded
// @Tags messages
// @Produce json
// @Param project_id query int false "Project scope"
// @Success 200 {array} UserSummary
// @Security BearerAuth
// @Router /messages/recipients [get]
func (h *Handler) ListRecipients(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)

	var projectRef *uint
	if raw := c.Query("project_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
			return
		}
		pid := uint(parsed)
		if _, err := authz.VisibleProject(h.db, actor, pid); err != nil {
			if errors.Is(err, authz.ErrNotFound) {
				authz.NotFound(c, "Project")
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
			return
		}
		projectRef = &pid
	}

	candidates, err := RecipientCandidates(h.db, projectRef, actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch recipients"})
		return
	}

	summaries := make([]UserSummary, len(candidates))
	for i, u := range candidates {
		summaries[i] = UserSummary{ID: u.ID, Email: u.Email, Name: u.Name}
	}
	c.JSON(http.StatusOK, summaries)
}

// RegisterRoutes registers messaging routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/messages", h.Send)
	rg.POST("/messages/:id/reply", h.Reply)
	rg.GET("/messages/received", h.ListReceived)
	rg.GET("/messages/sent", h.ListSent)
	rg.GET("/messages/recipients", h.ListRecipients)
	rg.GET("/projects/:id/messages", h.ListProjectMessages)
	rg.GET("/inbox", h.Inbox)
	rg.GET("/notifications", h.ListNotifications)
}
