package secrets

import (
	"github.com/cipherhq/mcpc/internal/manifest"
)

// Reason classifies why an environment reference failed to resolve.
type Reason int

const (
	// ReasonUnset means the name is absent from the store or empty.
	ReasonUnset Reason = iota

	// ReasonSentinel means the value is still a placeholder sentinel.
	ReasonSentinel
)

// String returns the display form used in validation output.
func (r Reason) String() string {
	if r == ReasonSentinel {
		return "still a placeholder"
	}
	return "not set"
}

// Issue is one unresolved environment reference.
type Issue struct {
	// Var is the referenced variable name.
	Var string `json:"var"`

	// Reason classifies the failure.
	Reason Reason `json:"-"`

	// Detail is the human-readable reason.
	Detail string `json:"reason"`
}

// Report maps server keys to their unresolved environment references.
// An empty report means validation passed.
type Report struct {
	issues map[string][]Issue
	order  []string
}

// Validate checks every declared environment reference of every server
// against the store. It never mutates the registry or the store. Servers
// appear in the report in registry document order.
func Validate(reg *manifest.Registry, store *Store) *Report {
	report := &Report{issues: make(map[string][]Issue)}

	for _, key := range reg.Keys() {
		srv := reg.Get(key)
		for _, name := range srv.EnvRefs() {
			v, ok := store.Lookup(name)
			switch {
			case !ok || v == "":
				report.add(key, Issue{Var: name, Reason: ReasonUnset, Detail: ReasonUnset.String()})
			case store.IsSentinel(v):
				report.add(key, Issue{Var: name, Reason: ReasonSentinel, Detail: ReasonSentinel.String()})
			}
		}
	}
	return report
}

func (r *Report) add(server string, issue Issue) {
	if _, exists := r.issues[server]; !exists {
		r.order = append(r.order, server)
	}
	r.issues[server] = append(r.issues[server], issue)
}

// Empty reports whether every reference resolved.
func (r *Report) Empty() bool {
	return len(r.issues) == 0
}

// Servers returns the keys of servers with unresolved references, in
// registry document order.
func (r *Report) Servers() []string {
	return r.order
}

// Issues returns the unresolved references for one server. EnvRefs are
// sorted, so the slice order is deterministic.
func (r *Report) Issues(server string) []Issue {
	return r.issues[server]
}

// Total returns the total number of unresolved references.
func (r *Report) Total() int {
	n := 0
	for _, issues := range r.issues {
		n += len(issues)
	}
	return n
}
