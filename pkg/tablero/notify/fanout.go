// Package notify computes the audience for state-changing events and emits
// deduplicated notification rows. Notifications are only ever created here,
// inline in the transaction of the mutation that triggered them.
package notify

import (
	"errors"
	"fmt"

	"github.com/dcastano/tablero/pkg/tablero/models"
	"gorm.io/gorm"
)

// EventKind identifies the mutation that triggered a fan-out
type EventKind string

const (
	EventProjectCreated EventKind = "project_created"
	EventTaskCreated    EventKind = "task_created"
	EventTaskUpdated    EventKind = "task_updated"
	EventCommentAdded   EventKind = "comment_added"
	EventMessageSent    EventKind = "message_sent"
)

// Event describes one state change. SubjectID identifies the entity the
// event is about and, together with kind, actor and project, forms the dedup
// key. TaskID carries the parent task for comment events, where the subject
// is the comment itself.
type Event struct {
	Kind         EventKind
	Actor        models.User
	ProjectID    uint // 0 means no project scope
	SubjectID    uint
	TaskID       uint
	RecipientID  uint // only for message events
	SubjectTitle string
}

// ProjectCreated builds the event for a freshly created project
func ProjectCreated(actor models.User, project *models.Project) Event {
	return Event{
		Kind:         EventProjectCreated,
		Actor:        actor,
		ProjectID:    project.ID,
		SubjectID:    project.ID,
		SubjectTitle: project.Title,
	}
}

// TaskCreated builds the event for a freshly created task
func TaskCreated(actor models.User, task *models.Task) Event {
	return Event{
		Kind:         EventTaskCreated,
		Actor:        actor,
		ProjectID:    task.ProjectID,
		SubjectID:    task.ID,
		TaskID:       task.ID,
		SubjectTitle: task.Title,
	}
}

// TaskUpdated builds the event for an edited task
func TaskUpdated(actor models.User, task *models.Task) Event {
	return Event{
		Kind:         EventTaskUpdated,
		Actor:        actor,
		ProjectID:    task.ProjectID,
		SubjectID:    task.ID,
		TaskID:       task.ID,
		SubjectTitle: task.Title,
	}
}

// CommentAdded builds the event for a new comment on a task
func CommentAdded(actor models.User, task *models.Task, comment *models.Comment) Event {
	return Event{
		Kind:         EventCommentAdded,
		Actor:        actor,
		ProjectID:    task.ProjectID,
		SubjectID:    comment.ID,
		TaskID:       task.ID,
		SubjectTitle: task.Title,
	}
}

// MessageSent builds the event for a direct message
func MessageSent(actor models.User, msg *models.Message) Event {
	ev := Event{
		Kind:        EventMessageSent,
		Actor:       actor,
		SubjectID:   msg.ID,
		RecipientID: msg.RecipientID,
	}
	if msg.ProjectID != nil {
		ev.ProjectID = *msg.ProjectID
	}
	return ev
}

// DedupKey is the structured identity of an event: kind, actor, subject
// entity and project. Reproducible from the event alone, so a retried
// mutation regenerates the same key and the existence check holds.
func (ev Event) DedupKey() string {
	return fmt.Sprintf("%s:%d:%d:%d", ev.Kind, ev.Actor.ID, ev.SubjectID, ev.ProjectID)
}

// Body renders the notification text. Deterministic over (kind, actor,
// subject) so the same event always produces the same row.
func (ev Event) Body() string {
	switch ev.Kind {
	case EventProjectCreated:
		return fmt.Sprintf("Has creado el proyecto '%s'", ev.SubjectTitle)
	case EventTaskCreated:
		return fmt.Sprintf("%s te asignó la tarea '%s'", ev.Actor.Name, ev.SubjectTitle)
	case EventTaskUpdated:
		return fmt.Sprintf("%s actualizó la tarea '%s'", ev.Actor.Name, ev.SubjectTitle)
	case EventCommentAdded:
		return fmt.Sprintf("%s comentó en la tarea '%s'", ev.Actor.Name, ev.SubjectTitle)
	case EventMessageSent:
		return fmt.Sprintf("Nuevo mensaje de %s", ev.Actor.Name)
	}
	return ""
}

// Engine fans out notifications for events
type Engine struct{}

// NewEngine creates a fan-out engine
func NewEngine() *Engine {
	return &Engine{}
}

// Fanout computes the audience for the event and inserts one notification
// per recipient, skipping recipients that already hold a notification with
// the same dedup key. The unique index on (user_id, dedup_key) backstops the
// existence check under concurrent retries. Runs inside the caller's
// transaction so the mutation and its notifications commit or roll back
// together.
func (e *Engine) Fanout(tx *gorm.DB, ev Event) ([]models.Notification, error) {
	audience, err := e.audience(tx, ev)
	if err != nil {
		return nil, err
	}

	key := ev.DedupKey()
	body := ev.Body()

	var projectRef *uint
	if ev.ProjectID != 0 {
		pid := ev.ProjectID
		projectRef = &pid
	}

	var created []models.Notification
	for _, userID := range audience {
		var count int64
		err := tx.Model(&models.Notification{}).
			Where("user_id = ? AND dedup_key = ?", userID, key).
			Count(&count).Error
		if err != nil {
			return nil, err
		}
		if count > 0 {
			continue
		}

		n := models.Notification{
			UserID:    userID,
			ProjectID: projectRef,
			Body:      body,
			DedupKey:  key,
		}
		if err := tx.Create(&n).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				continue
			}
			return nil, err
		}
		created = append(created, n)
	}
	return created, nil
}

// audience returns the user IDs to notify, per event kind
func (e *Engine) audience(tx *gorm.DB, ev Event) ([]uint, error) {
	switch ev.Kind {
	case EventProjectCreated:
		return []uint{ev.Actor.ID}, nil
	case EventTaskCreated:
		// every assignee, the actor included when self-assigned
		return taskAssignees(tx, ev.TaskID, 0)
	case EventTaskUpdated:
		return taskAssignees(tx, ev.TaskID, ev.Actor.ID)
	case EventCommentAdded:
		return taskAssignees(tx, ev.TaskID, ev.Actor.ID)
	case EventMessageSent:
		return []uint{ev.RecipientID}, nil
	}
	return nil, fmt.Errorf("unknown event kind %q", ev.Kind)
}

// taskAssignees returns the assignee IDs of a task, excluding excludeID when
// non-zero
func taskAssignees(tx *gorm.DB, taskID, excludeID uint) ([]uint, error) {
	var assignments []models.TaskAssignment
	if err := tx.Where("task_id = ?", taskID).Order("user_id").Find(&assignments).Error; err != nil {
		return nil, err
	}

	var ids []uint
	for _, a := range assignments {
		if excludeID != 0 && a.UserID == excludeID {
			continue
		}
		ids = append(ids, a.UserID)
	}
	return ids, nil
}

// UnreadCount returns the number of unread notifications for a user
func UnreadCount(db *gorm.DB, userID uint) (int64, error) {
	var count int64
	err := db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkAllRead marks every unread notification of the user as read
func MarkAllRead(db *gorm.DB, userID uint) error {
	return db.Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true).Error
}
