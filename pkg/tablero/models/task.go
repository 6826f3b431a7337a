package models

import "time"

// TaskStatus represents the state of a task
type TaskStatus string

const (
	StatusPendiente  TaskStatus = "pendiente"
	StatusEnProgreso TaskStatus = "en_progreso"
	StatusCompletada TaskStatus = "completada"
)

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPendiente, StatusEnProgreso, StatusCompletada:
		return true
	}
	return false
}

// Task belongs to exactly one project and carries a set of assigned users
// through TaskAssignment rows.
type Task struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ProjectID   uint       `gorm:"not null;index" json:"project_id"`
	Title       string     `gorm:"not null" json:"title"`
	Description string     `json:"description"`
	DueDate     time.Time  `gorm:"not null" json:"due_date"`
	Status      TaskStatus `gorm:"type:varchar(20);default:'pendiente'" json:"status"`

	// Relationships
	Project     Project          `gorm:"foreignKey:ProjectID" json:"project,omitempty"`
	Assignments []TaskAssignment `gorm:"foreignKey:TaskID" json:"assignments,omitempty"`
	Comments    []Comment        `gorm:"foreignKey:TaskID" json:"comments,omitempty"`
}

// TaskAssignment is the many-to-many relationship between tasks and users.
// The unique index gives the assignee set its set semantics.
type TaskAssignment struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	TaskID    uint      `gorm:"not null;uniqueIndex:idx_task_user" json:"task_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_task_user" json:"user_id"`

	// Relationships
	Task Task `gorm:"foreignKey:TaskID" json:"task,omitempty"`
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
