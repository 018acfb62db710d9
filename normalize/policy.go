package normalize

import "github.com/florinutz/binsync/event"

// Policy decides which fields reach the index and how temporal values are
// written. A Policy is read-only after construction and safe to share.
type Policy struct {
	exclude map[string]struct{}
}

// NewPolicy returns a policy that strips the named fields from every
// document body. Empty names are ignored.
func NewPolicy(exclude ...string) Policy {
	set := make(map[string]struct{}, len(exclude))
	for _, f := range exclude {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return Policy{exclude: set}
}

// Excludes reports whether field is stripped from document bodies.
func (p Policy) Excludes(field string) bool {
	_, ok := p.exclude[field]
	return ok
}

// Apply returns a copy of row with excluded fields removed and temporal values
// rewritten to their canonical string form. The input row is not modified.
func (p Policy) Apply(row event.Row) event.Row {
	if row == nil {
		return nil
	}
	out := make(event.Row, len(row))
	for k, v := range row {
		if p.Excludes(k) {
			continue
		}
		out[k] = Canonical(v)
	}
	return out
}

// Canonical rewrites dates as YYYY-MM-DD and datetimes as
// YYYY-MM-DD HH:MM:SS strings. Other values are returned unchanged.
func Canonical(v event.Value) event.Value {
	switch v.Kind() {
	case event.KindDate:
		return event.StringValue(v.Time().Format(event.DateLayout))
	case event.KindDateTime:
		return event.StringValue(v.Time().Format(event.DateTimeLayout))
	default:
		return v
	}
}
