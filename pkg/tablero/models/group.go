package models

import "time"

// Group is a named subset of users scoped to a project, used for visibility
// and bulk membership. ProjectID is nil for "general" groups that are not
// tied to any project.
type Group struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Name      string    `gorm:"not null;uniqueIndex:idx_group_project_name" json:"name"`
	ProjectID *uint     `gorm:"uniqueIndex:idx_group_project_name" json:"project_id,omitempty"`

	// Relationships
	Project *Project     `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Members []Membership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}
