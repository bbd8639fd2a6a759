// Package codeset provides the immutable registry of named clinical code sets
// the rule engine evaluates membership against.
package codeset

import (
	"sort"
	"strings"
)

// Set is a membership-only collection of normalized code strings.
type Set map[string]struct{}

// Contains reports membership of an already-normalized code.
func (s Set) Contains(code string) bool {
	_, ok := s[code]
	return ok
}

// Len returns the number of codes in the set.
func (s Set) Len() int { return len(s) }

// Registry maps a canonical code-set name (e.g. SEPTI2D_CODES) to its codes.
// Constructed once per run and read-only thereafter, which makes lock-free
// concurrent reads safe by construction.
type Registry struct {
	sets map[string]Set
}

// NewRegistry builds a registry from raw code lists. Every code is normalized
// on admission; empty values are dropped.
func NewRegistry(lists map[string][]string) *Registry {
	sets := make(map[string]Set, len(lists))
	for name, codes := range lists {
		set := make(Set, len(codes))
		for _, c := range codes {
			if n := NormalizeCode(c); n != "" {
				set[n] = struct{}{}
			}
		}
		sets[name] = set
	}
	return &Registry{sets: sets}
}

// Get returns the named code set. A missing name yields an empty set, never an
// error: membership tests against an unknown set are simply always false.
func (r *Registry) Get(name string) Set {
	if r == nil {
		return nil
	}
	return r.sets[name]
}

// Has reports whether the named code set was loaded.
func (r *Registry) Has(name string) bool {
	_, ok := r.sets[name]
	return ok
}

// Names returns the loaded code-set names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.sets))
	for n := range r.sets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NormalizeCode cleans a raw ICD code for registry admission and record
// comparison: decimal points stripped, uppercased, trimmed.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(raw, ".", "")))
}
