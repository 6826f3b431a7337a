// Package authz resolves whether an actor may perform an action on a project
// or task. Roles are never stored as flags; they are recomputed from the
// membership set on every check. The visibility filter (membership existence,
// independent of role) composes before any role-based rule: an invisible
// project is indistinguishable from an absent one.
package authz

import (
	"errors"
	"net/http"

	"github.com/dcastano/tablero/pkg/tablero/auth"
	"github.com/dcastano/tablero/pkg/tablero/models"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrNotFound is returned for entities that do not exist or are outside the
// actor's visible scope. Callers must not distinguish the two cases.
var ErrNotFound = errors.New("not found")

// Action is a named operation subject to authorization
type Action string

const (
	ActionEditProject   Action = "edit_project"
	ActionDeleteProject Action = "delete_project"
	ActionManageGroups  Action = "manage_groups"
	ActionManageTasks   Action = "manage_tasks"
	ActionEditTask      Action = "edit_task"
	ActionCreateUser    Action = "create_user"
)

// Actor is the acting identity, passed explicitly into every check rather
// than read from ambient state.
type Actor struct {
	ID        uint
	Superuser bool
}

// ActorFrom builds an Actor from the authenticated request context
func ActorFrom(c *gin.Context) (Actor, bool) {
	userID, ok := auth.GetUserID(c)
	if !ok {
		return Actor{}, false
	}
	return Actor{ID: userID, Superuser: auth.IsSuperuser(c)}, true
}

// ResolveRoles returns the distinct roles the user holds in the project,
// computed from the membership set. A user assigned through several groups
// may hold more than one role.
func ResolveRoles(db *gorm.DB, userID, projectID uint) ([]models.Role, error) {
	var memberships []models.Membership
	if err := db.Where("user_id = ? AND project_id = ?", userID, projectID).Find(&memberships).Error; err != nil {
		return nil, err
	}

	seen := make(map[models.Role]bool)
	var roles []models.Role
	for _, m := range memberships {
		if !seen[m.Role] {
			seen[m.Role] = true
			roles = append(roles, m.Role)
		}
	}
	return roles, nil
}

// HasRole reports whether role is among roles
func HasRole(roles []models.Role, role models.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsProjectAdmin reports whether the user holds an administrador membership
// in the project
func IsProjectAdmin(db *gorm.DB, userID, projectID uint) (bool, error) {
	roles, err := ResolveRoles(db, userID, projectID)
	if err != nil {
		return false, err
	}
	return HasRole(roles, models.RoleAdministrador), nil
}

// IsAnyAdmin reports whether the user holds an administrador membership in
// any project. User creation is gated on this globally, not per-project.
func IsAnyAdmin(db *gorm.DB, userID uint) (bool, error) {
	var count int64
	err := db.Model(&models.Membership{}).
		Where("user_id = ? AND role = ?", userID, models.RoleAdministrador).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// VisibleProject loads a project after applying the visibility filter: the
// actor must hold at least one membership in it, whatever the role.
// Superusers see every project. Absent and invisible projects both yield
// ErrNotFound. Visibility is derived on every read, never stored, so losing
// the last membership loses the project on the next lookup.
func VisibleProject(db *gorm.DB, actor Actor, projectID uint) (*models.Project, error) {
	var project models.Project
	if err := db.First(&project, projectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if actor.Superuser {
		return &project, nil
	}

	var count int64
	err := db.Model(&models.Membership{}).
		Where("user_id = ? AND project_id = ?", actor.ID, projectID).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, ErrNotFound
	}
	return &project, nil
}

// VisibleProjects returns every project the actor can see
func VisibleProjects(db *gorm.DB, actor Actor) ([]models.Project, error) {
	var projects []models.Project
	if actor.Superuser {
		if err := db.Order("id").Find(&projects).Error; err != nil {
			return nil, err
		}
		return projects, nil
	}

	err := db.Joins("JOIN memberships ON memberships.project_id = projects.id").
		Where("memberships.user_id = ?", actor.ID).
		Distinct("projects.*").
		Order("projects.id").
		Find(&projects).Error
	if err != nil {
		return nil, err
	}
	return projects, nil
}

// VisibleTask loads a task scoped to a visible project. The project lookup
// runs first so task existence never leaks through an invisible project.
func VisibleTask(db *gorm.DB, actor Actor, projectID, taskID uint) (*models.Project, *models.Task, error) {
	project, err := VisibleProject(db, actor, projectID)
	if err != nil {
		return nil, nil, err
	}

	var task models.Task
	if err := db.Where("id = ? AND project_id = ?", taskID, projectID).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}
	return project, &task, nil
}

// Authorize evaluates a project-level action for an actor on an already
// visible project. The rules are an OR: any one of them allows.
func Authorize(db *gorm.DB, actor Actor, project *models.Project, action Action) (bool, error) {
	if actor.Superuser {
		return true, nil
	}

	switch action {
	case ActionEditProject, ActionDeleteProject:
		if project.CreatorID == actor.ID {
			return true, nil
		}
		return IsProjectAdmin(db, actor.ID, project.ID)
	case ActionManageGroups, ActionManageTasks, ActionEditTask:
		return IsProjectAdmin(db, actor.ID, project.ID)
	case ActionCreateUser:
		return IsAnyAdmin(db, actor.ID)
	}
	return false, nil
}

// AuthorizeTask evaluates edit rights on a task: administrador membership,
// superuser, or being among the task's assigned users.
func AuthorizeTask(db *gorm.DB, actor Actor, project *models.Project, task *models.Task) (bool, error) {
	allowed, err := Authorize(db, actor, project, ActionEditTask)
	if err != nil {
		return false, err
	}
	if allowed {
		return true, nil
	}

	var count int64
	err = db.Model(&models.TaskAssignment{}).
		Where("task_id = ? AND user_id = ?", task.ID, actor.ID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Deny writes the standard denial response: a warning payload with a
// fallback location the client should navigate to. Denials never surface as
// hard failures.
func Deny(c *gin.Context, actor Actor, action Action, fallback string) {
	log.WithFields(log.Fields{
		"user_id": actor.ID,
		"action":  string(action),
	}).Warn("authorization denied")

	c.JSON(http.StatusForbidden, gin.H{
		"warning":  "No tienes permiso para realizar esta acción",
		"fallback": fallback,
	})
}

// NotFound writes the standard not-found response used for both absent and
// invisible entities
func NotFound(c *gin.Context, entity string) {
	c.JSON(http.StatusNotFound, gin.H{"error": entity + " not found"})
}
