package domain

import "time"

// Action is the kind of change an audit entry records.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Actions lists the audited actions in display order.
var Actions = [...]Action{ActionCreate, ActionUpdate, ActionDelete}

// ParseAction accepts an action name in upper case only, matching the API.
func ParseAction(raw string) (Action, bool) {
	switch a := Action(raw); a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return a, true
	}
	return "", false
}

// AuditLogEntry is one immutable audit record. OldData and NewData are the raw JSON
// snapshots exactly as served and may be empty, "null" or malformed.
type AuditLogEntry struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Action    Action    `json:"action"`
	Entity    string    `json:"entity"`
	EntityID  int64     `json:"entityId"`
	OldData   string    `json:"oldData"`
	NewData   string    `json:"newData"`
	Timestamp time.Time `json:"timestamp"`
}

// AuditScope selects which audit entries the API returns.
type AuditScope string

const (
	AuditScopeAll  AuditScope = "all"
	AuditScopeMine AuditScope = "mine"
)
