package admin

import (
	"net/http"

	"github.com/dcastano/tablero/pkg/tablero/auth"
	"github.com/dcastano/tablero/pkg/tablero/authz"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handler handles user administration requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID          uint   `json:"id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Superuser   bool   `json:"superuser"`
	CreatedAt   string `json:"created_at"`
	Projects    int64  `json:"project_count"`
	Memberships int64  `json:"membership_count"`
}

func (h *Handler) userResponse(user *models.User) UserResponse {
	var projectCount, membershipCount int64
	h.db.Model(&models.Project{}).Where("creator_id = ?", user.ID).Count(&projectCount)
	h.db.Model(&models.Membership{}).Where("user_id = ?", user.ID).Count(&membershipCount)

	return UserResponse{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Superuser:   user.Superuser,
		CreatedAt:   user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Projects:    projectCount,
		Memberships: membershipCount,
	}
}

// requireUserAdmin gates user administration: superuser, or an administrador
// membership in any project. The gate is global, not scoped to one project.
func (h *Handler) requireUserAdmin(c *gin.Context) (authz.Actor, bool) {
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
		authz.Deny(c, actor, authz.ActionCreateUser, "/projects")
		return actor, false
	}
	return actor, true
}

// ListUsers returns all users (administradores and superusers)
// @Summary List users
// @Description Get all users; requires an administrador membership or superuser
// @Tags admin
// @Produce json
// @Success 200 {array} UserResponse
// @Failure 403 {object} map[string]string "Permission denied"
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	if _, ok := h.requireUserAdmin(c); !ok {
		return
	}

	query := h.db.Order("id")

	// Optional search by email or name
	if search := c.Query("q"); search != "" {
		query = query.Where("email LIKE ? OR name LIKE ?", "%"+search+"%", "%"+search+"%")
	}

	var users []models.User
	if err := query.Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i := range users {
		responses[i] = h.userResponse(&users[i])
	}
	c.JSON(http.StatusOK, responses)
}

// CreateUser creates a user account (administradores and superusers)
// @Summary Create a user
// @Description Create a user account; requires an administrador membership or superuser
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User details"
// @Success 201 {object} UserResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Permission denied"
// @Failure 409 {object} map[string]string "Email already registered"
// @Security BearerAuth
// @Router /admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	if _, ok := h.requireUserAdmin(c); !ok {
		return
	}

	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var existing models.User
	if err := h.db.Where("email = ?", req.Email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         req.Name,
	}
	if err := h.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	c.JSON(http.StatusCreated, h.userResponse(&user))
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/admin/users", h.ListUsers)
	rg.POST("/admin/users", h.CreateUser)
}
