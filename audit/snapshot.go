package audit

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/bytedance/sonic/ast"
)

// Snapshot is a parsed audit payload. Keys keep the order they had in the source JSON.
type Snapshot struct {
	keys   []string
	values map[string]any
}

// ParseSnapshot parses raw audit JSON. Empty input, a literal null, malformed JSON and
// anything other than an object all yield nil. Numbers are kept as json.Number so large
// ids survive intact.
func ParseSnapshot(raw string) *Snapshot {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" || !sonic.Valid([]byte(raw)) {
		return nil
	}
	root, err := sonic.GetFromString(raw)
	if err != nil || root.Type() != ast.V_OBJECT {
		return nil
	}

	s := &Snapshot{values: map[string]any{}}
	var valueErr error
	err = root.ForEach(func(path ast.Sequence, node *ast.Node) bool {
		if path.Key == nil {
			return true
		}
		v, err := node.InterfaceUseNumber()
		if err != nil {
			valueErr = err
			return false
		}
		key := *path.Key
		if _, seen := s.values[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.values[key] = v
		return true
	})
	if err != nil || valueErr != nil {
		return nil
	}
	return s
}

// NewSnapshot builds a snapshot from keys and values in the given order.
func NewSnapshot(pairs ...any) *Snapshot {
	s := &Snapshot{values: map[string]any{}}
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			continue
		}
		if _, seen := s.values[key]; !seen {
			s.keys = append(s.keys, key)
		}
		s.values[key] = pairs[i+1]
	}
	return s
}

// Keys returns the snapshot keys in source order.
func (s *Snapshot) Keys() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.keys...)
}

// Get returns the value stored under key.
func (s *Snapshot) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.values[key]
	return v, ok
}

// Title returns the title field when it is a non-empty value.
func (s *Snapshot) Title() string {
	v, ok := s.Get("title")
	if !ok || v == nil {
		return ""
	}
	return coerce(v)
}

// canonical serializes a value with sorted object keys so that equal values compare equal.
// Absent keys get their own marker, distinct from an explicit null.
func canonical(v any, present bool) string {
	if !present {
		return "\x00absent"
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return "\x00unencodable"
	}
	return string(data)
}
