package board

import (
	"strings"

	"taskflow/domain"
)

// Filter narrows the board. The zero value shows every task.
type Filter struct {
	Query       string        `json:"query"`
	Status      domain.Status `json:"status,omitempty"`
	MyTasksOnly bool          `json:"myTasksOnly"`
}

// Active reports whether any criterion differs from the default.
func (f Filter) Active() bool {
	return f.Query != "" || f.Status != "" || f.MyTasksOnly
}

// Match reports whether task passes every active criterion for actor.
func (f Filter) Match(task domain.Task, actor domain.Actor) bool {
	if f.Query != "" {
		q := strings.ToLower(f.Query)
		if !strings.Contains(strings.ToLower(task.Title), q) &&
			!strings.Contains(strings.ToLower(task.DescriptionText()), q) {
			return false
		}
	}
	if f.Status != "" && task.Status != f.Status {
		return false
	}
	if f.MyTasksOnly && !task.AssignedTo(actor.ID) {
		return false
	}
	return true
}

// Apply keeps the tasks matching f, preserving their order.
func (f Filter) Apply(tasks []domain.Task, actor domain.Actor) []domain.Task {
	if !f.Active() {
		return append([]domain.Task(nil), tasks...)
	}
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t, actor) {
			out = append(out, t)
		}
	}
	return out
}
