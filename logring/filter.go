package logring

import "strings"

// Filter selects records for the view. The zero value keeps everything.
type Filter struct {
	Threshold Severity
	// Target matches the normalised record target; empty matches all.
	Target string
	// Query is a case-insensitive substring of the display text; empty matches all.
	Query string
}

// DefaultFilter keeps every record.
func DefaultFilter() Filter {
	return Filter{Threshold: SeverityTrace}
}

func (f Filter) normalized() Filter {
	return Filter{
		Threshold: f.Threshold,
		Target:    NormalizeTarget(f.Target),
		Query:     strings.ToLower(f.Query),
	}
}

// Match reports whether r passes the filter.
func (f Filter) Match(r Record) bool {
	f = f.normalized()
	return f.match(r)
}

func (f Filter) match(r Record) bool {
	if r.Severity() < f.Threshold {
		return false
	}
	if f.Target != "" && r.TargetKey != f.Target {
		return false
	}
	if f.Query != "" && !strings.Contains(r.SearchText, f.Query) {
		return false
	}
	return true
}
