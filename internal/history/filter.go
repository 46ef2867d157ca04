package history

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidFilter = errors.New("invalid history filter")

// Comparison operators understood by Filter.
const (
	OpEqual        = "="
	OpNotEqual     = "!="
	OpLess         = "<"
	OpLessEqual    = "<="
	OpGreater      = ">"
	OpGreaterEqual = ">="
)

// Filter selects runs by comparing one field with a value.
//
//	status:=:failed
//	started_at:<:2024-01-31
//	process:!=:import.customers
type Filter struct {
	Field string
	Op    string
	Value string
}

var fields = map[string]bool{
	"id": true, "process": true, "status": true, "error": true,
	"started_at": true, "ended_at": true,
}

var ops = map[string]bool{
	OpEqual: true, OpNotEqual: true, OpLess: true,
	OpLessEqual: true, OpGreater: true, OpGreaterEqual: true,
}

// ParseFilter reads a "field:op:value" expression. The value may itself
// contain colons.
func ParseFilter(expr string) (Filter, error) {
	parts := strings.SplitN(expr, ":", 3)
	if len(parts) != 3 {
		return Filter{}, fmt.Errorf("%w: %q (want field:op:value)", ErrInvalidFilter, expr)
	}
	f := Filter{Field: strings.TrimSpace(parts[0]), Op: strings.TrimSpace(parts[1]), Value: parts[2]}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}

func (f Filter) Validate() error {
	if !fields[f.Field] {
		return fmt.Errorf("%w: unknown field %q", ErrInvalidFilter, f.Field)
	}
	if !ops[f.Op] {
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Op)
	}
	if isTimeField(f.Field) {
		if _, err := parseTime(f.Value); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidFilter, f.Field, err)
		}
	}
	return nil
}

func (f Filter) String() string { return f.Field + ":" + f.Op + ":" + f.Value }

// Match reports whether r satisfies the filter. Time fields compare
// chronologically, the others lexically.
func (f Filter) Match(r Run) (bool, error) {
	if err := f.Validate(); err != nil {
		return false, err
	}
	var cmp int
	switch f.Field {
	case "started_at", "ended_at":
		t := r.StartedAt
		if f.Field == "ended_at" {
			t = r.EndedAt
		}
		want, _ := parseTime(f.Value)
		cmp = t.Compare(want)
	default:
		cmp = strings.Compare(stringField(r, f.Field), f.Value)
	}

	switch f.Op {
	case OpEqual:
		return cmp == 0, nil
	case OpNotEqual:
		return cmp != 0, nil
	case OpLess:
		return cmp < 0, nil
	case OpLessEqual:
		return cmp <= 0, nil
	case OpGreater:
		return cmp > 0, nil
	default:
		return cmp >= 0, nil
	}
}

func stringField(r Run, field string) string {
	switch field {
	case "id":
		return r.ID
	case "process":
		return r.Process
	case "status":
		return string(r.Status)
	default:
		return r.Error
	}
}

func isTimeField(field string) bool {
	return field == "started_at" || field == "ended_at"
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}
