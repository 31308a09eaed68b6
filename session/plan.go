package session

import (
	"github.com/google/uuid"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusActive    TaskStatus = "active"
	StatusCompleted TaskStatus = "completed"
)

// PlanTask is one entry of the project plan shown to the model.
type PlanTask struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status TaskStatus `json:"status"`
}

// NewTask creates a pending task with a fresh ID.
func NewTask(title string) PlanTask {
	return PlanTask{ID: uuid.NewString(), Title: title, Status: StatusPending}
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted:
		return true
	}
	return false
}
