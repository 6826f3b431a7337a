package groups

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles group management requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name string `json:"name" binding:"required,min=3"`
}

// AssignMemberRequest represents the request to assign a user to a group
// with a project role
type AssignMemberRequest struct {
	UserID uint   `json:"user_id" binding:"required"`
	Role   string `json:"role" binding:"required,oneof=administrador miembro invitado"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID          uint   `json:"id"`
	Name        string `json:"name"`
	ProjectID   *uint  `json:"project_id,omitempty"`
	MemberCount int    `json:"member_count"`
}

// MembershipResponse represents a membership in API responses
type MembershipResponse struct {
	ID        uint   `json:"id"`
	UserID    uint   `json:"user_id"`
	ProjectID uint   `json:"project_id"`
	GroupID   *uint  `json:"group_id,omitempty"`
	Role      string `json:"role"`
}

func groupResponse(db *gorm.DB, g *models.Group) GroupResponse {
	var memberCount int64
	db.Model(&models.Membership{}).Where("group_id = ?", g.ID).Count(&memberCount)
	return GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		ProjectID:   g.ProjectID,
		MemberCount: int(memberCount),
	}
}

// loadProjectForManage applies the visibility filter, then the manage_groups
// role check. Returns nil after writing the response when either fails.
func (h *Handler) loadProjectForManage(c *gin.Context, actor authz.Actor) *models.Project {
	projectID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid project ID"})
		return nil
	}

	project, err := authz.VisibleProject(h.db, actor, uint(projectID))
	if err != nil {
		if errors.Is(err, authz.ErrNotFound) {
			authz.NotFound(c, "Project")
			return nil
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch project"})
		return nil
	}

	allowed, err := authz.Authorize(h.db, actor, project, authz.ActionManageGroups)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
		return nil
	}
	if !allowed {
		authz.Deny(c, actor, authz.ActionManageGroups, "/projects")
		return nil
	}
	return project
}

// List returns the groups of a project (administrador or superuser)
// @Summary List groups
// @Description Get the groups of a project
// @Tags groups
// @Produce json
// @Param id path int true "Project ID"
// @Success 200 {array} GroupResponse
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Project not found"
// @Security BearerAuth
// @Router /projects/{id}/groups [get]
func (h *Handler) List(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project := h.loadProjectForManage(c, actor)
	if project == nil {
		return
	}

	var groups []models.Group
	if err := h.db.Where("project_id = ?", project.ID).Order("id").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupResponse, len(groups))
	for i := range groups {
		responses[i] = groupResponse(h.db, &groups[i])
	}
	c.JSON(http.StatusOK, responses)
}

// Create creates a group in a project (administrador or superuser)
// @Summary Create a group
// @Description Create a group in a project; names are unique within the project
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 409 {object} map[string]string "Duplicate group name"
// @Security BearerAuth
// @Router /projects/{id}/groups [post]
func (h *Handler) Create(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project := h.loadProjectForManage(c, actor)
	if project == nil {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Friendly pre-check; the unique index is the real enforcement
	var existing models.Group
	if err := h.db.Where("name = ? AND project_id = ?", req.Name, project.ID).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Ya existe un grupo con ese nombre en el proyecto", "field": "name"})
		return
	}

	pid := project.ID
	group := models.Group{Name: req.Name, ProjectID: &pid}
	if err := h.db.Create(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Ya existe un grupo con ese nombre en el proyecto", "field": "name"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, GroupResponse{ID: group.ID, Name: group.Name, ProjectID: group.ProjectID})
}

// Delete removes a group, nullifying the group reference on memberships that
// pointed at it
// @Summary Delete a group
// @Description Delete a group; memberships keep their role with a null group
// @Tags groups
// @Produce json
// @Param id path int true "Project ID"
// @Param groupId path int true "Group ID"
// @Success 200 {object} map[string]string "Group deleted"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /projects/{id}/groups/{groupId} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project := h.loadProjectForManage(c, actor)
	if project == nil {
		return
	}

	groupID, err := strconv.ParseUint(c.Param("groupId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var group models.Group
	if err := h.db.Where("id = ? AND project_id = ?", groupID, project.ID).First(&group).Error; err != nil {
		authz.NotFound(c, "Group")
		return
	}

	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Membership{}).Where("group_id = ?", group.ID).
			Update("group_id", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&group).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete group"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
}

// AssignMember assigns a user to a group with a project role, creating the
// membership row. Duplicate (user, project, group) triples are rejected.
// @Summary Assign a user to a group
// @Description Create a membership for the user in the project through the group
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Project ID"
// @Param groupId path int true "Group ID"
// @Param request body AssignMemberRequest true "Assignment details"
// @Success 201 {object} MembershipResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 409 {object} map[string]string "Duplicate membership"
// @Security BearerAuth
// @Router /projects/{id}/groups/{groupId}/members [post]
func (h *Handler) AssignMember(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project := h.loadProjectForManage(c, actor)
	if project == nil {
		return
	}

	groupID, err := strconv.ParseUint(c.Param("groupId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var group models.Group
	if err := h.db.Where("id = ? AND project_id = ?", groupID, project.ID).First(&group).Error; err != nil {
		authz.NotFound(c, "Group")
		return
	}

	var req AssignMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var targetUser models.User
	if err := h.db.First(&targetUser, req.UserID).Error; err != nil {
		authz.NotFound(c, "User")
		return
	}

	// Friendly pre-check for the duplicate triple
	var existing models.Membership
	if err := h.db.Where("user_id = ? AND project_id = ? AND group_id = ?", targetUser.ID, project.ID, group.ID).
		First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "El usuario ya pertenece a este grupo"})
		return
	}

	gid := group.ID
	membership := models.Membership{
		UserID:    targetUser.ID,
		ProjectID: project.ID,
		GroupID:   &gid,
		Role:      models.Role(req.Role),
	}
	if err := h.db.Create(&membership).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "El usuario ya pertenece a este grupo"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assign user"})
		return
	}

	c.JSON(http.StatusCreated, MembershipResponse{
		ID:        membership.ID,
		UserID:    membership.UserID,
		ProjectID: membership.ProjectID,
		GroupID:   membership.GroupID,
		Role:      string(membership.Role),
	})
}

// ListMembers returns the memberships held through a group
// @Summary List group members
// @Description Get the memberships assigned through a group
// @Tags groups
// @Produce json
// @Param id path int true "Project ID"
// @Param groupId path int true "Group ID"
// @Success 200 {array} MembershipResponse
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /projects/{id}/groups/{groupId}/members [get]
func (h *Handler) ListMembers(c *gin.Context) {
	actor, _ := authz.ActorFrom(c)
	project := h.loadProjectForManage(c, actor)
	if project == nil {
		return
	}

	groupID, err := strconv.ParseUint(c.Param("groupId"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var group models.Group
	if err := h.db.Where("id = ? AND project_id = ?", groupID, project.ID).First(&group).Error; err != nil {
		authz.NotFound(c, "Group")
		return
	}

	var memberships []models.Membership
	if err := h.db.Where("group_id = ?", group.ID).Order("id").Find(&memberships).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch members"})
		return
	}

	responses := make([]MembershipResponse, len(memberships))
	for i, m := range memberships {
		responses[i] = MembershipResponse{
			ID:        m.ID,
			UserID:    m.UserID,
			ProjectID: m.ProjectID,
			GroupID:   m.GroupID,
			Role:      string(m.Role),
		}
	}
	c.JSON(http.StatusOK, responses)
}

// RegisterRoutes registers group routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/groups", h.ListGeneral)
	rg.POST("/groups", h.CreateGeneral)
	rg.GET("/projects/:id/groups", h.List)
	rg.POST("/projects/:id/groups", h.Create)
	rg.DELETE("/projects/:id/groups/:groupId", h.Delete)
	rg.GET("/projects/:id/groups/:groupId/members", h.ListMembers)
	rg.POST("/projects/:id/groups/:groupId/members", h.AssignMember)
}
