package registry

import (
	"slices"
	"strings"
)

// Filter is the set of browsing contexts a registration is scoped to.
// The zero Filter is session-wide.
type Filter struct {
	key      string
	contexts []string
	set      map[string]struct{}
}

// NewFilter builds a filter from context ids. Order and duplicates are
// ignored; no ids at all means session-wide.
func NewFilter(contexts ...string) Filter {
	set := make(map[string]struct{}, len(contexts))
	for _, c := range contexts {
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	if len(set) == 0 {
		return Filter{}
	}

	sorted := make([]string, 0, len(set))
	for c := range set {
		sorted = append(sorted, c)
	}
	slices.Sort(sorted)

	return Filter{
		key:      strings.Join(sorted, "\x00"),
		contexts: sorted,
		set:      set,
	}
}

// SessionWide reports whether the filter has no contexts.
func (f Filter) SessionWide() bool {
	return f.set == nil
}

// Key identifies the filter shape; equal sets have equal keys.
func (f Filter) Key() string {
	return f.key
}

// Contexts returns the sorted context ids, nil when session-wide.
func (f Filter) Contexts() []string {
	return slices.Clone(f.contexts)
}

// Contains reports whether context is in a scoped filter.
func (f Filter) Contains(context string) bool {
	_, ok := f.set[context]
	return ok
}

// Equal reports whether both filters have the same context set.
func (f Filter) Equal(other Filter) bool {
	return f.SessionWide() == other.SessionWide() && f.key == other.key
}

// Matches reports whether an event from the given context passes the filter.
// Session-wide filters pass everything, scoped filters need a known context.
func (f Filter) Matches(context string, hasContext bool) bool {
	if f.SessionWide() {
		return true
	}
	return hasContext && f.Contains(context)
}
