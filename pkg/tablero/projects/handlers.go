package projects

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/dcastano/tablero/pkg/tablero/notify"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Handler handles project-related requests
type Handler struct {
	db     *gorm.DB
	engine *notify.Engine
}

// NewHandler creates a new projects handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db, engine: notify.NewEngine()}
}

// CreateProjectRequest represents the request to create a project
type CreateProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" binding:"required"`
	EndDate     string `json:"end_date" binding:"required"`
}

// UpdateProjectRequest represents the request to update a project
type UpdateProjectRequest struct {
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	StartDate   string `json:"start_date" binding:"required"`
	EndDate     string `json:"end_date" binding:"required"`
}

// ProjectResponse represents a project in API responses
type ProjectResponse struct {
	ID          uint     `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	StartDate   string   `json:"start_date"`
	EndDate     string   `json:"end_date"`
	CreatorID   uint     `json:"creator_id"`
	Roles       []string `json:"roles,omitempty"`
}

// MemberResponse represents a project member in API responses
type MemberResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func projectResponse(p *models.Project, roles []models.Role) ProjectResponse {
	resp := ProjectResponse{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		StartDate:   p.StartDate.Format(dateLayout),
		EndDate:     p.EndDate.Format(dateLayout),
		CreatorID:   p.CreatorID,
	}
	for _, r := range roles {
		resp.Roles = append(resp.Roles, string(r))
	}
	return resp
}

// parseDates validates the date pair. The ordering error is attached to the
// whole form, not a single field.
func parseDates(start, end string) (time.Time, time.Time, *gin.H) {
	startDate, err := time.Parse(dateLayout, start)
	if err != nil {
		return time.Time{}, time.Time{}, &gin.H{"error": "Invalid start date", "field": "start_date"}
	}
	endDate, err := time.Parse(dateLayout, end)
	if err != nil {
		return time.Time{}, time.Time{}, &gin.H{"error": "Invalid end date", "field": "end_date"}
	}
	if endDate.Before(startDate) {
		return time.Time{}, time.Time{}, &gin.H{"error": "La fecha de fin no puede ser anterior a la fecha de inicio"}
	}
	return startDate, endDate, nil
}

// List returns all projects visible to the current user
// @Summary List projects
// @Description Get all projects the current user can see
// @Tags projects
// @Produce json
// @Success 200 {array} ProjectResponse
// @Security BearerAuth
// @Router /projects [get]
func (h *Handler) List(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)

	visible, err := authz.VisibleProjects(h.db, actor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch projects"})
		return
	}

	responses := make([]ProjectResponse, len(visible))
	for i := range visible {
		roles, err := authz.ResolveRoles(h.db, actor.ID, visible[i].ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch projects"})
			return
		}
		responses[i] = projectResponse(&visible[i], roles)
	}

	c.JSON(http.StatusOK, responses)
}

// Create creates a new project with the creator as administrador
// @Summary Create a project
// @Description Create a project; the creator receives an administrador membership
// @Tags projects
// @Accept json
// @Produce json
// @Param request body CreateProjectRequest true "Project details"
// @Success 201 {object} ProjectResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Security BearerAuth
// @Router /projects [post]
func (h *Handler) Create(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)

	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startDate, endDate, vErr := parseDates(req.StartDate, req.EndDate)
	if vErr != nil {
		c.JSON(http.StatusBadRequest, *vErr)
		return
	}

	var actorUser models.User
	if err := h.db.First(&actorUser, actor.ID).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	var project models.Project
	err := h.db.Transaction(func(tx *gorm.DB) error {
		project = models.Project{
			Title:       req.Title,
			Description: req.Description,
			StartDate:   startDate,
			EndDate:     endDate,
			CreatorID:   actor.ID,
		}
		if err := tx.Create(&project).Error; err != nil {
			return err
		}

		// Creator gets an administrador membership
		membership := models.Membership{
			UserID:    actor.ID,
			ProjectID: project.ID,
			Role:      models.RoleAdministrador,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return err
		}

		_, err := h.engine.Fanout(tx, notify.ProjectCreated(actorUser, &project))
		return err
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, projectResponse(&project, []models.Role{models.RoleAdministrador}))
}

// Get returns a specific project
// @Summary Get a project
// @Description Get a project visible to the current user
// @Tags projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} ProjectResponse
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id} [get]
func (h *Handler) Get(c *gin.Context) {
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

	roles, err := authz.ResolveRoles(h.db, actor.ID, project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
		return
	}

	c.JSON(http.StatusOK, projectResponse(project, roles))
}

// Update edits a project (creator, administrador or superuser)
// @Summary Update a project
// @Description Update a project's title, description and dates
// @Tags projects
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body UpdateProjectRequest true "Project details"
// @Success 200 {object} ProjectResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id} [put]
func (h *Handler) Update(c *gin.Context) {
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

	allowed, err := authz.Authorize(h.db, actor, project, authz.ActionEditProject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		authz.Deny(c, actor, authz.ActionEditProject, "/projects")
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	startDate, endDate, vErr := parseDates(req.StartDate, req.EndDate)
	if vErr != nil {
		c.JSON(http.StatusBadRequest, *vErr)
		return
	}

	project.Title = req.Title
	project.Description = req.Description
	project.StartDate = startDate
	project.EndDate = endDate

	if err := h.db.Save(project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	roles, _ := authz.ResolveRoles(h.db, actor.ID, project.ID)
	c.JSON(http.StatusOK, projectResponse(project, roles))
}

// Delete removes a project and everything scoped to it, in one transaction
// @Summary Delete a project
// @Description Hard-delete a project and cascade to its tasks, groups, memberships, messages and notifications
// @Tags projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {object} map[string]string "Project deleted"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
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

	allowed, err := authz.Authorize(h.db, actor, project, authz.ActionDeleteProject)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return
	}
	if !allowed {
		authz.Deny(c, actor, authz.ActionDeleteProject, "/projects")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return CascadeDelete(tx, project.ID)
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete project"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}

// CascadeDelete hard-deletes a project and every row scoped to it. Must run
// inside a transaction so the cascade is atomic.
func CascadeDelete(tx *gorm.DB, projectID uint) error {
	var taskIDs []uint
	if err := tx.Model(&models.Task{}).Where("project_id = ?", projectID).Pluck("id", &taskIDs).Error; err != nil {
		return err
	}

	if len(taskIDs) > 0 {
		if err := tx.Where("task_id IN ?", taskIDs).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("task_id IN ?", taskIDs).Delete(&models.TaskAssignment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("project_id = ?", projectID).Delete(&models.Task{}).Error; err != nil {
			return err
		}
	}

	if err := tx.Where("project_id = ?", projectID).Delete(&models.Membership{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&models.Group{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&models.Message{}).Error; err != nil {
		return err
	}
	if err := tx.Where("project_id = ?", projectID).Delete(&models.Notification{}).Error; err != nil {
		return err
	}
	return tx.Delete(&models.Project{}, projectID).Error
}

// ListMembers returns the member candidate set of a project: every user the
// project's memberships reference, without duplicates.
// @Summary List project members
// @Description Get the users belonging to a project
// @Tags projects
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} MemberResponse
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
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

	users, err := Members(h.db, project.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	members := make([]MemberResponse, len(users))
	for i, u := range users {
		members[i] = MemberResponse{ID: u.ID, Email: u.Email, Name: u.Name}
	}
	c.JSON(http.StatusOK, members)
}

// Members returns the distinct users holding a membership in the project.
// This is the candidate set for task assignment and message recipients.
func Members(db *gorm.DB, projectID uint) ([]models.User, error) {
	var users []models.User
	err := db.Joins("JOIN memberships ON memberships.user_id = users.id").
		Where("memberships.project_id = ?", projectID).
		Distinct("users.*").
		Order("users.id").
		Find(&users).Error
	return users, err
}

// RegisterRoutes registers project routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/projects", h.List)
	rg.POST("/projects", h.Create)
	rg.GET("/projects/:id", h.Get)
	rg.PUT("/projects/:id", h.Update)
	rg.DELETE("/projects/:id", h.Delete)
	rg.GET("/projects/:id/members", h.ListMembers)
}
