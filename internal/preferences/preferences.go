// Package preferences tracks which redaction categories are selected.
package preferences

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/raphaelgruber/redactomat/internal/catalog"
)

// ErrUnknownCategory is returned when an id is not in the catalog.
var ErrUnknownCategory = errors.New("unknown category")

// DefaultPolicy decides the selection applied when a new file is picked.
type DefaultPolicy string

const (
	// SelectAll selects every catalog category.
	SelectAll DefaultPolicy = "all"
	// SelectNone starts with an empty selection.
	SelectNone DefaultPolicy = "none"
)

// ParsePolicy parses "all" or "none".
func ParsePolicy(s string) (DefaultPolicy, error) {
	switch DefaultPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case SelectAll:
		return SelectAll, nil
	case SelectNone:
		return SelectNone, nil
	default:
		return "", fmt.Errorf("invalid default selection %q (want all or none)", s)
	}
}

// Set is the selection of categories drawn from one catalog.
// Every member is guaranteed to exist in the catalog.
type Set struct {
	catalog  *catalog.Catalog
	policy   DefaultPolicy
	selected map[string]struct{}
}

// New creates an empty set over the catalog.
func New(c *catalog.Catalog, policy DefaultPolicy) *Set {
	return &Set{
		catalog:  c,
		policy:   policy,
		selected: make(map[string]struct{}, c.Len()),
	}
}

// Catalog returns the catalog the set draws from.
func (s *Set) Catalog() *catalog.Catalog { return s.catalog }

// Policy returns the configured default-selection policy.
func (s *Set) Policy() DefaultPolicy { return s.policy }

// Toggle flips membership of id.
func (s *Set) Toggle(id string) error {
	if !s.catalog.Contains(id) {
		return fmt.Errorf("%w: %s", ErrUnknownCategory, id)
	}
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
	}
	return nil
}

// Select adds ids to the selection. Unknown ids leave the set untouched.
func (s *Set) Select(ids ...string) error {
	for _, id := range ids {
		if !s.catalog.Contains(id) {
			return fmt.Errorf("%w: %s", ErrUnknownCategory, id)
		}
	}
	for _, id := range ids {
		s.selected[id] = struct{}{}
	}
	return nil
}

// SelectAll selects the whole catalog.
func (s *Set) SelectAll() {
	for _, id := range s.catalog.IDs() {
		s.selected[id] = struct{}{}
	}
}

// DeselectAll clears the selection.
func (s *Set) DeselectAll() {
	clear(s.selected)
}

// Reset applies the default-selection policy.
func (s *Set) Reset() {
	s.DeselectAll()
	if s.policy == SelectAll {
		s.SelectAll()
	}
}

// Has reports whether id is selected.
func (s *Set) Has(id string) bool {
	_, ok := s.selected[id]
	return ok
}

// Len returns the number of selected categories.
func (s *Set) Len() int { return len(s.selected) }

// Empty reports whether nothing is selected.
func (s *Set) Empty() bool { return len(s.selected) == 0 }

// AllSelected reports whether every catalog category is selected.
func (s *Set) AllSelected() bool { return len(s.selected) == s.catalog.Len() }

// Current returns the selected ids in catalog order.
func (s *Set) Current() []string {
	ids := make([]string, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.catalog.Position(ids[i]) < s.catalog.Position(ids[j])
	})
	return ids
}

// Flags returns the upload preferences object: every catalog id mapped
// to whether it is selected.
func (s *Set) Flags() map[string]bool {
	flags := make(map[string]bool, s.catalog.Len())
	for _, id := range s.catalog.IDs() {
		flags[id] = s.Has(id)
	}
	return flags
}
