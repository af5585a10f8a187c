package audit

import (
	"strings"

	"taskflow/domain"
)

// ActionAll matches every action.
const ActionAll = "ALL"

// Filter narrows the audit view. The zero value matches everything.
type Filter struct {
	Action string `json:"action"`
	Query  string `json:"query"`
}

// Match reports whether e passes the action and free-text criteria.
func (f Filter) Match(e Entry) bool {
	if f.Action != "" && f.Action != ActionAll && string(e.Action) != f.Action {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	return q == "" || strings.Contains(e.Haystack(), q)
}

// Counts are the per-action totals of the unfiltered entries.
type Counts struct {
	Total  int `json:"total"`
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
}

// Count tallies entries by action.
func Count(entries []domain.AuditLogEntry) Counts {
	c := Counts{Total: len(entries)}
	for _, e := range entries {
		switch e.Action {
		case domain.ActionCreate:
			c.Create++
		case domain.ActionUpdate:
			c.Update++
		case domain.ActionDelete:
			c.Delete++
		}
	}
	return c
}
