package groups

import (
	"errors"
	"net/http"

	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// General groups belong to no project. They are managed by superusers and by
// anyone holding an administrador membership somewhere, the same global gate
// that opens user administration.

// requireGeneralManage applies the global management gate for project-less
// groups. Returns false after writing the response when the actor is denied.
func (h *Handler) requireGeneralManage(c *gin.Context) (authz.Actor, bool) {
	actor, ok := authz.ActorFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return actor, false
	}

	allowed := actor.Superuser
	if !allowed {
		anyAdmin, err := authz.IsAnyAdmin(h.db, actor.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check permissions"})
			return actor, false
		}
		allowed = anyAdmin
	}
	if !allowed {
		authz.Deny(c, actor, authz.ActionManageGroups, "/projects")
		return actor, false
	}
	return actor, true
}

// ListGeneral returns the groups that belong to no project
// @Summary List general groups
// @Description Get the project-less groups; requires an administrador membership or superuser
// @Tags groups
// @Produce json
// @Success 200 {array} GroupResponse
// @Failure 403 {object} map[string]string "Permission denied"
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) ListGeneral(c *gin.Context) {
	if _, ok := h.requireGeneralManage(c); !ok {
		return
	}

	var groups []models.Group
	if err := h.db.Where("project_id IS NULL").Order("id").Find(&groups).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch groups"})
		return
	}

	responses := make([]GroupResponse, len(groups))
	for i := range groups {
		responses[i] = groupResponse(h.db, &groups[i])
	}
	c.JSON(http.StatusOK, responses)
}

// CreateGeneral creates a group with no project. Name uniqueness among
// project-less groups is checked here: sqlite treats NULLs as distinct in the
// unique index, so this pre-check is the enforcement for the null scope.
// @Summary Create a general group
// @Description Create a project-less group; names are unique among general groups
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 409 {object} map[string]string "Duplicate group name"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) CreateGeneral(c *gin.Context) {
	if _, ok := h.requireGeneralManage(c); !ok {
		return
	}

	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.Group
	if err := h.db.Where("name = ? AND project_id IS NULL", req.Name).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Ya existe un grupo general con ese nombre", "field": "name"})
		return
	}

	group := models.Group{Name: req.Name}
	if err := h.db.Create(&group).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.JSON(http.StatusConflict, gin.H{"error": "Ya existe un grupo general con ese nombre", "field": "name"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create group"})
		return
	}

	c.JSON(http.StatusCreated, GroupResponse{ID: group.ID, Name: group.Name})
}
