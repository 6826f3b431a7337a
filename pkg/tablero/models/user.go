package models

import "time"

// User represents an account in the system. Credentials and sessions are
// owned by the auth subsystem; the tracker core only reads identity and the
// superuser flag.
type User struct {
	ID           uint      `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `json:"-"`
	Name         string    `gorm:"not null" json:"name"`
	Superuser    bool      `gorm:"default:false" json:"superuser"`

	// Relationships
	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}
