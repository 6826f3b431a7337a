package models

import "time"

// Project is the top-level container for tasks, groups and messages.
// Deleting a project hard-deletes everything scoped to it.
type Project struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `gorm:"not null" json:"start_date"`
	EndDate     time.Time `gorm:"not null" json:"end_date"`
	CreatorID   uint      `gorm:"not null;index" json:"creator_id"`

	// Relationships
	Creator     User         `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Groups      []Group      `gorm:"foreignKey:ProjectID" json:"groups,omitempty"`
	Tasks       []Task       `gorm:"foreignKey:ProjectID" json:"tasks,omitempty"`
	Memberships []Membership `gorm:"foreignKey:ProjectID" json:"memberships,omitempty"`
}
