package audit

import (
	"fmt"
	"strings"

	"taskflow/domain"
)

// RowKind marks a diff row as an added or removed value.
type RowKind string

const (
	RowAdded   RowKind = "added"
	RowRemoved RowKind = "removed"
)

// Row is one line of a field-level diff.
type Row struct {
	Kind  RowKind `json:"kind"`
	Field string  `json:"field"`
	Label string  `json:"label"`
	Value string  `json:"value"`
}

// Diff is the field-level change set of one audit entry.
type Diff struct {
	Rows []Row `json:"rows"`
	// NoVisibleChanges is set for an update whose snapshots differ only in hidden fields.
	NoVisibleChanges bool `json:"noVisibleChanges"`
}

// Empty reports whether there is nothing to show, not even the no-change marker.
func (d Diff) Empty() bool {
	return len(d.Rows) == 0 && !d.NoVisibleChanges
}

// ComputeDiff builds the diff of an audit entry. A create lists the new snapshot and a
// delete lists the old one. An update needs both snapshots and lists old then new values
// for every visible field that changed.
func ComputeDiff(action domain.Action, before, after *Snapshot, h Humanizer) Diff {
	var d Diff
	switch action {
	case domain.ActionCreate:
		d.Rows = listRows(after, RowAdded, h)
	case domain.ActionDelete:
		d.Rows = listRows(before, RowRemoved, h)
	case domain.ActionUpdate:
		if before == nil || after == nil {
			return d
		}
		for _, key := range ChangedFields(before, after) {
			oldVal, _ := before.Get(key)
			newVal, _ := after.Get(key)
			label := FieldLabel(key)
			d.Rows = append(d.Rows,
				Row{Kind: RowRemoved, Field: key, Label: label, Value: h.Value(key, oldVal)},
				Row{Kind: RowAdded, Field: key, Label: label, Value: h.Value(key, newVal)},
			)
		}
		d.NoVisibleChanges = len(d.Rows) == 0
	}
	return d
}

func listRows(s *Snapshot, kind RowKind, h Humanizer) []Row {
	if s == nil {
		return nil
	}
	var rows []Row
	for _, key := range s.Keys() {
		if hiddenFields[key] {
			continue
		}
		v, _ := s.Get(key)
		rows = append(rows, Row{Kind: kind, Field: key, Label: FieldLabel(key), Value: h.Value(key, v)})
	}
	return rows
}

// ChangedFields returns the visible keys whose canonical values differ, in first-seen order
// over before then after. Both snapshots are required.
func ChangedFields(before, after *Snapshot) []string {
	if before == nil || after == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, key := range append(before.Keys(), after.Keys()...) {
		if seen[key] || hiddenFields[key] {
			continue
		}
		seen[key] = true
		oldVal, oldOK := before.Get(key)
		newVal, newOK := after.Get(key)
		if canonical(oldVal, oldOK) != canonical(newVal, newOK) {
			out = append(out, key)
		}
	}
	return out
}

// ChangedLabels maps changed keys to their display labels.
func ChangedLabels(before, after *Snapshot) []string {
	keys := ChangedFields(before, after)
	labels := make([]string, 0, len(keys))
	for _, k := range keys {
		labels = append(labels, FieldLabel(k))
	}
	return labels
}

// ChangeSummary renders "N field(s) changed" and lists the labels when there are at most three.
func ChangeSummary(labels []string) string {
	switch n := len(labels); {
	case n == 0:
		return "No field changes"
	case n == 1:
		return "1 field changed: " + labels[0]
	case n <= 3:
		return fmt.Sprintf("%d fields changed: %s", n, strings.Join(labels, ", "))
	default:
		return fmt.Sprintf("%d fields changed", n)
	}
}
