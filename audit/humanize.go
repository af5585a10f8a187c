package audit

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

var fieldLabels = map[string]string{
	"id":          "ID",
	"title":       "Title",
	"description": "Description",
	"status":      "Status",
	"assigneeId":  "Assignee",
	"createdById": "Created by",
	"createdAt":   "Created at",
}

// hiddenFields never produce diff rows.
var hiddenFields = map[string]bool{"id": true, "createdAt": true, "createdById": true}

// FieldLabel returns the display label of a snapshot key, or the key itself.
func FieldLabel(key string) string {
	if l, ok := fieldLabels[key]; ok {
		return l
	}
	return key
}

// UserLabeler resolves a user id to its display label.
type UserLabeler interface {
	Label(id int64) string
}

// Humanizer turns snapshot values into display text.
type Humanizer struct {
	Users    UserLabeler
	Location *time.Location
	Layout   string
}

// DefaultDateTimeLayout is used when Humanizer.Layout is empty.
const DefaultDateTimeLayout = "Jan 2, 2006, 3:04:05 PM"

// Value renders the value of key.
func (h Humanizer) Value(key string, v any) string {
	if v == nil {
		return "None"
	}
	switch key {
	case "assigneeId", "createdById":
		if id, ok := toInt64(v); ok && h.Users != nil {
			return h.Users.Label(id)
		}
	case "createdAt":
		if t, ok := toTime(v); ok {
			return h.FormatTime(t)
		}
	}
	return coerce(v)
}

// FormatTime renders t in the humanizer's location and layout.
func (h Humanizer) FormatTime(t time.Time) string {
	loc := h.Location
	if loc == nil {
		loc = time.Local
	}
	layout := h.Layout
	if layout == "" {
		layout = DefaultDateTimeLayout
	}
	return t.In(loc).Format(layout)
}

func coerce(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case json.Number:
		return val.String()
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func toInt64(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) {
			return 0, false
		}
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, true
		}
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		return toInt64(f)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// toTime accepts RFC 3339 strings and epoch numbers. Numbers below 1e12 are seconds.
func toTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		return t, err == nil
	case float64:
		if math.Abs(val) < 1e12 {
			sec, frac := math.Modf(val)
			return time.Unix(int64(sec), int64(frac*1e9)), true
		}
		return time.UnixMilli(int64(val)), true
	case json.Number:
		if n, err := val.Int64(); err == nil {
			if n > -1e12 && n < 1e12 {
				return time.Unix(n, 0), true
			}
			return time.UnixMilli(n), true
		}
		f, err := val.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return toTime(f)
	case time.Time:
		return val, true
	}
	return time.Time{}, false
}
