package audit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskflow/domain"
	"taskflow/userdir"
)

var actionVerbs = map[domain.Action]string{
	domain.ActionCreate: "created",
	domain.ActionUpdate: "updated",
	domain.ActionDelete: "deleted",
}

// Verb returns the past-tense verb for an action.
func Verb(a domain.Action) string {
	if v, ok := actionVerbs[a]; ok {
		return v
	}
	return strings.ToLower(string(a))
}

// Users resolves audit actors and user foreign keys.
type Users interface {
	UserLabeler
	Display(id *int64) userdir.Display
}

// Entry is one audit record ready to render.
type Entry struct {
	ID            int64           `json:"id"`
	Action        domain.Action   `json:"action"`
	Entity        string          `json:"entity"`
	EntityID      int64           `json:"entityId"`
	Timestamp     time.Time       `json:"timestamp"`
	Actor         userdir.Display `json:"actor"`
	Verb          string          `json:"verb"`
	Title         string          `json:"title"`
	Diff          Diff            `json:"diff"`
	ChangedFields []string        `json:"changedFields"`
	ChangeSummary string          `json:"changeSummary"`
	Time          string          `json:"time"`
	Ago           string          `json:"ago"`

	haystack string
}

// BuildEntry parses the snapshots of e and derives everything the audit view shows.
func BuildEntry(e domain.AuditLogEntry, h Humanizer, users Users, now time.Time) Entry {
	before := ParseSnapshot(e.OldData)
	after := ParseSnapshot(e.NewData)

	title := after.Title()
	if title == "" {
		title = before.Title()
	}
	changed := ChangedLabels(before, after)

	uid := e.UserID
	out := Entry{
		ID:            e.ID,
		Action:        e.Action,
		Entity:        e.Entity,
		EntityID:      e.EntityID,
		Timestamp:     e.Timestamp,
		Verb:          Verb(e.Action),
		Title:         title,
		Diff:          ComputeDiff(e.Action, before, after, h),
		ChangedFields: changed,
		ChangeSummary: ChangeSummary(changed),
		Time:          e.Timestamp.In(h.location()).Format("15:04"),
		Ago:           TimeAgo(e.Timestamp, now, h.location()),
	}
	if users != nil {
		out.Actor = users.Display(&uid)
	} else {
		out.Actor = userdir.Display{Initials: fmt.Sprintf("#%d", uid), Label: fmt.Sprintf("User #%d", uid)}
	}
	out.haystack = strings.ToLower(strings.Join([]string{
		out.Actor.Label,
		string(e.Action),
		e.Entity,
		strconv.FormatInt(e.EntityID, 10),
		title,
		strings.Join(changed, ", "),
	}, " "))
	return out
}

// Haystack is the lower-cased text searched by free-text filters.
func (e Entry) Haystack() string {
	return e.haystack
}

func (h Humanizer) location() *time.Location {
	if h.Location == nil {
		return time.Local
	}
	return h.Location
}

// TimeAgo renders the age of t relative to now, falling back to a date after 30 days.
func TimeAgo(t, now time.Time, loc *time.Location) string {
	secs := int64(now.Sub(t) / time.Second)
	switch {
	case secs < 60:
		return "just now"
	case secs < 3600:
		return fmt.Sprintf("%dm ago", secs/60)
	case secs < 86400:
		return fmt.Sprintf("%dh ago", secs/3600)
	case secs < 30*86400:
		return fmt.Sprintf("%dd ago", secs/86400)
	}
	return t.In(loc).Format("Jan 2, 2006")
}
