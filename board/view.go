package board

import (
	"time"

	"taskflow/domain"
	"taskflow/permission"
	"taskflow/userdir"
)

// Card is one task as rendered on the board.
type Card struct {
	domain.Task
	Assignee   userdir.Display `json:"assignee"`
	Creator    userdir.Display `json:"creator"`
	Draggable  bool            `json:"draggable"`
	Editable   bool            `json:"editable"`
	Deletable  bool            `json:"deletable"`
	NextStatus domain.Status   `json:"nextStatus,omitempty"`
}

// Column is one status bucket.
type Column struct {
	Status domain.Status `json:"status"`
	Label  string        `json:"label"`
	Count  int           `json:"count"`
	Cards  []Card        `json:"cards"`
}

// View is the render-ready board.
type View struct {
	Columns   []Column  `json:"columns"`
	Filter    Filter    `json:"filter"`
	Filtered  bool      `json:"filtered"`
	Total     int       `json:"total"`
	Shown     int       `json:"shown"`
	NoResults bool      `json:"noResults"`
	CanCreate bool      `json:"canCreate"`
	Stale     bool      `json:"stale"`
	LoadedAt  time.Time `json:"loadedAt,omitempty"`
}

// Column returns the bucket for status.
func (v View) Column(status domain.Status) Column {
	for _, c := range v.Columns {
		if c.Status == status {
			return c
		}
	}
	return Column{Status: status, Label: status.Label()}
}

// Labeler resolves user ids to display labels.
type Labeler interface {
	Display(id *int64) userdir.Display
}

// Partition groups tasks into the three status buckets keeping their relative order.
// Tasks with an unknown status are left out.
func Partition(tasks []domain.Task) map[domain.Status][]domain.Task {
	out := make(map[domain.Status][]domain.Task, len(domain.Statuses))
	for _, s := range domain.Statuses {
		out[s] = []domain.Task{}
	}
	for _, t := range tasks {
		if bucket, ok := out[t.Status]; ok {
			out[t.Status] = append(bucket, t)
		}
	}
	return out
}

func buildView(all []domain.Task, filter Filter, actor domain.Actor, users Labeler) View {
	shown := filter.Apply(all, actor)
	buckets := Partition(shown)

	v := View{
		Filter:    filter,
		Filtered:  filter.Active(),
		Total:     len(all),
		Shown:     len(shown),
		NoResults: len(shown) == 0 && len(all) > 0,
		CanCreate: permission.CanCreateTask(actor.Role),
		Columns:   make([]Column, 0, len(domain.Statuses)),
	}
	for _, s := range domain.Statuses {
		tasks := buckets[s]
		col := Column{Status: s, Label: s.Label(), Count: len(tasks), Cards: make([]Card, 0, len(tasks))}
		for _, t := range tasks {
			col.Cards = append(col.Cards, buildCard(t, actor, users))
		}
		v.Columns = append(v.Columns, col)
	}
	return v
}

func buildCard(t domain.Task, actor domain.Actor, users Labeler) Card {
	ref := t.Ref()
	c := Card{
		Task:      t,
		Draggable: permission.CanMoveTask(actor, ref, ""),
		Editable:  permission.CanEdit(actor, ref),
		Deletable: permission.CanDelete(actor.Role),
	}
	if next, ok := t.Status.Next(); ok && permission.CanMoveTask(actor, ref, next) {
		c.NextStatus = next
	}
	if users != nil {
		c.Assignee = users.Display(t.AssigneeID)
		creator := t.CreatedByID
		c.Creator = users.Display(&creator)
	}
	return c
}
