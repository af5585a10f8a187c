package audit

import (
	"sort"
	"time"

	"taskflow/domain"
)

// DefaultDayLayout formats day headings older than yesterday.
const DefaultDayLayout = "Mon, Jan 2, 2006"

const dayKeyLayout = "2006-01-02"

// DayGroup is the entries of one local calendar day.
type DayGroup struct {
	Key     string  `json:"key"`
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Entries []Entry `json:"entries"`
}

// SortNewestFirst orders entries by descending timestamp. Ties keep their input order.
func SortNewestFirst(entries []domain.AuditLogEntry) []domain.AuditLogEntry {
	out := append([]domain.AuditLogEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// DayKey returns the local calendar date of t as YYYY-MM-DD.
func DayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dayKeyLayout)
}

// DayLabel names the day identified by key relative to now: "Today", "Yesterday" or the
// date rendered with layout. Comparison is by calendar date, not elapsed hours.
func DayLabel(key string, now time.Time, loc *time.Location, layout string) string {
	local := now.In(loc)
	y, m, d := local.Date()
	if key == local.Format(dayKeyLayout) {
		return "Today"
	}
	if key == time.Date(y, m, d-1, 12, 0, 0, 0, loc).Format(dayKeyLayout) {
		return "Yesterday"
	}
	day, err := time.ParseInLocation(dayKeyLayout, key, loc)
	if err != nil {
		return key
	}
	if layout == "" {
		layout = DefaultDayLayout
	}
	return day.Format(layout)
}

// GroupByDay buckets entries by local day, keeping the order in which days first appear.
func GroupByDay(entries []Entry, now time.Time, loc *time.Location, layout string) []DayGroup {
	var groups []DayGroup
	index := map[string]int{}
	for _, e := range entries {
		key := DayKey(e.Timestamp, loc)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Key: key, Label: DayLabel(key, now, loc, layout)})
		}
		groups[i].Entries = append(groups[i].Entries, e)
		groups[i].Count++
	}
	return groups
}
