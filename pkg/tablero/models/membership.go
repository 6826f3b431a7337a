package models

import "time"

// Role represents a user's role within a project
type Role string

const (
	RoleAdministrador Role = "administrador"
	RoleMiembro       Role = "miembro"
	RoleInvitado      Role = "invitado"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdministrador, RoleMiembro, RoleInvitado:
		return true
	}
	return false
}

// Membership ties a user to a project with a role, optionally through a
// group. The unique index over (user, project, group) is the real enforcement
// of the one-membership-per-triple invariant; handler-level existence checks
// are only a friendly pre-check.
type Membership struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_member_scope" json:"user_id"`
	ProjectID uint      `gorm:"not null;uniqueIndex:idx_member_scope" json:"project_id"`
	GroupID   *uint     `gorm:"uniqueIndex:idx_member_scope" json:"group_id,omitempty"`
	Role      Role      `gorm:"type:varchar(20);default:'miembro'" json:"role"`

	// Relationships
	User    User    `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Project Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Group   *Group  `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}
