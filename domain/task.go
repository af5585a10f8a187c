package domain

import (
	"strings"
	"time"
)

// Status is the board column a task lives in. The zero value means "no status given".
type Status string

const (
	StatusTodo  Status = "TODO"
	StatusDoing Status = "DOING"
	StatusDone  Status = "DONE"
)

// Statuses lists the board columns in display order.
var Statuses = [...]Status{StatusTodo, StatusDoing, StatusDone}

// ParseStatus accepts a status name in any letter case.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(raw))); s {
	case StatusTodo, StatusDoing, StatusDone:
		return s, true
	}
	return "", false
}

// Valid reports whether s is one of the three board columns.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusDoing, StatusDone:
		return true
	}
	return false
}

// Next returns the status that follows s on the board. DONE has no successor.
func (s Status) Next() (Status, bool) {
	switch s {
	case StatusTodo:
		return StatusDoing, true
	case StatusDoing:
		return StatusDone, true
	}
	return "", false
}

// Label is the human readable column title.
func (s Status) Label() string {
	switch s {
	case StatusTodo:
		return "To do"
	case StatusDoing:
		return "In progress"
	case StatusDone:
		return "Done"
	}
	return string(s)
}

// Task mirrors the task record served by the tasks API.
type Task struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      Status    `json:"status"`
	AssigneeID  *int64    `json:"assigneeId"`
	CreatedByID int64     `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
}

// DescriptionText returns the description or "" when absent.
func (t Task) DescriptionText() string {
	if t.Description == nil {
		return ""
	}
	return *t.Description
}

// AssignedTo reports whether the task is assigned to the given user.
func (t Task) AssignedTo(userID int64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// Ref returns the movable part of the task.
func (t Task) Ref() TaskRef {
	return TaskRef{ID: t.ID, Status: t.Status, AssigneeID: t.AssigneeID}
}

// TaskRef is the subset of a task needed to decide whether it may move.
// It doubles as the drag payload.
type TaskRef struct {
	ID         int64  `json:"id"`
	Status     Status `json:"status"`
	AssigneeID *int64 `json:"assigneeId"`
}

// NewTask carries the fields accepted when creating a task.
type NewTask struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Status      Status `json:"status,omitempty"`
	AssigneeID  *int64 `json:"assigneeId,omitempty"`
}

// TaskEdit is a full edit form for an existing task. Update turns it into a TaskPatch
// by comparing against the last known task.
type TaskEdit struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	AssigneeID  *int64 `json:"assigneeId"`
}

// Edit returns the edit form prefilled with t.
func (t Task) Edit() TaskEdit {
	edit := TaskEdit{Title: t.Title, Description: t.DescriptionText(), Status: t.Status}
	if t.AssigneeID != nil {
		edit.AssigneeID = Int64(*t.AssigneeID)
	}
	return edit
}

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
