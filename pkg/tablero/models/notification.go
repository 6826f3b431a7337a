package models

import "time"

// Notification is an alert surfaced to one user about activity they are
// involved in. Rows are created exclusively by the fan-out engine, never by a
// user-facing handler. DedupKey is a structured tuple derived from the
// originating event; the unique index over (user, key) makes fan-out
// idempotent under retried mutations.
type Notification struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;index;uniqueIndex:idx_notification_dedup" json:"user_id"`
	ProjectID *uint     `gorm:"index" json:"project_id,omitempty"`
	Body      string    `gorm:"not null" json:"body"`
	Read      bool      `gorm:"default:false" json:"read"`
	DedupKey  string    `gorm:"not null;uniqueIndex:idx_notification_dedup" json:"-"`

	// Relationships
	User    User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Project *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
}
