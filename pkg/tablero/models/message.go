package models

import "time"

// Message is a directed user-to-user message, optionally scoped to a project.
// Messages are stored once; "received" and "sent" mailboxes are filtered
// queries over this table. CreatedAt is immutable after insert.
type Message struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	SenderID    uint      `gorm:"not null;index" json:"sender_id"`
	RecipientID uint      `gorm:"not null;index" json:"recipient_id"`
	ProjectID   *uint     `gorm:"index" json:"project_id,omitempty"`
	Body        string    `gorm:"not null" json:"body"`

	// Relationships
	Sender    User     `gorm:"foreignKey:SenderID" json:"sender,omitempty"`
	Recipient User     `gorm:"foreignKey:RecipientID" json:"recipient,omitempty"`
	Project   *Project `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
}
