// Package catalog defines the categories of personal data that can be
// selected for redaction.
package catalog

import (
	"fmt"
	"strings"
)

// Category is a class of personal data the backend can redact.
type Category struct {
	ID          string `json:"id" yaml:"id"`
	Label       string `json:"label" yaml:"label"`
	Description string `json:"description" yaml:"description"`
}

// Catalog is an ordered, fixed set of categories.
type Catalog struct {
	name       string
	categories []Category
	index      map[string]int
}

// Catalog names accepted by Lookup.
const (
	Minimal  = "minimal"
	Extended = "extended"
)

// New builds a catalog. Duplicate or empty ids are rejected.
func New(name string, categories []Category) (*Catalog, error) {
	c := &Catalog{
		name:       name,
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}
	for _, cat := range categories {
		if cat.ID == "" {
			return nil, fmt.Errorf("catalog %s: category with empty id", name)
		}
		if _, dup := c.index[cat.ID]; dup {
			return nil, fmt.Errorf("catalog %s: duplicate category %q", name, cat.ID)
		}
		c.index[cat.ID] = len(c.categories)
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

func mustNew(name string, categories []Category) *Catalog {
	c, err := New(name, categories)
	if err != nil {
		panic(err)
	}
	return c
}

// Name returns the catalog name.
func (c *Catalog) Name() string { return c.name }

// Len returns the number of categories.
func (c *Catalog) Len() int { return len(c.categories) }

// Contains reports whether id is part of the catalog.
func (c *Catalog) Contains(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Get returns the category with the given id.
func (c *Catalog) Get(id string) (Category, bool) {
	i, ok := c.index[id]
	if !ok {
		return Category{}, false
	}
	return c.categories[i], true
}

// IDs returns all category ids in catalog order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.categories))
	for i, cat := range c.categories {
		ids[i] = cat.ID
	}
	return ids
}

// Categories returns a copy of the categories in catalog order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Position returns the catalog order of id, or -1.
func (c *Catalog) Position(id string) int {
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

var minimalCatalog = mustNew(Minimal, []Category{
	{ID: "emails", Label: "Email Addresses", Description: "Detect and anonymize email addresses"},
	{ID: "names", Label: "Names", Description: "Detect and anonymize personal names"},
	{ID: "phone_numbers", Label: "Phone Numbers", Description: "Detect and anonymize phone numbers"},
})

var extendedCatalog = mustNew(Extended, []Category{
	{ID: "phone_numbers", Label: "Phone Numbers", Description: "Detect and anonymize phone numbers in various formats"},
	{ID: "first_names", Label: "First Names", Description: "Detect and anonymize first names of individuals"},
	{ID: "last_names", Label: "Last Names", Description: "Detect and anonymize last names/family names"},
	{ID: "addresses", Label: "Addresses", Description: "Detect and anonymize physical addresses"},
	{ID: "social_security_numbers", Label: "Social Security Numbers", Description: "Detect and anonymize social security numbers and equivalent IDs"},
	{ID: "dates_of_birth", Label: "Dates of Birth", Description: "Detect and anonymize dates of birth and age information"},
	{ID: "account_numbers", Label: "Account Numbers", Description: "Detect and anonymize bank account numbers and banking information"},
	{ID: "email_addresses", Label: "Email Addresses", Description: "Detect and anonymize email addresses"},
	{ID: "case_numbers", Label: "Case Numbers", Description: "Detect and anonymize legal or administrative case numbers"},
})

// Lookup returns a built-in catalog by name.
func Lookup(name string) (*Catalog, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case Minimal, "":
		return minimalCatalog, nil
	case Extended:
		return extendedCatalog, nil
	default:
		return nil, fmt.Errorf("unknown catalog %q (want %s or %s)", name, Minimal, Extended)
	}
}
