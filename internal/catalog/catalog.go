// Package catalog provides the static resource catalog: a bidirectional
// mapping between resource identifiers and dense indices used by
// array-backed containers.
package catalog

import (
	"errors"
	"fmt"
	"strconv"
)

// ResourceID identifies a resource type. The catalog does not interpret
// the value beyond equality and ordering.
type ResourceID int

// NoResource is the reserved id meaning "no output" (warehouse recipes).
const NoResource ResourceID = 0

// DefaultStackLimit is applied to definitions that leave StackLimit unset.
const DefaultStackLimit = 999

// String returns the numeric form of the id.
func (id ResourceID) String() string {
	return strconv.Itoa(int(id))
}

// ResourceDef describes one catalog entry.
type ResourceDef struct {
	ID         ResourceID `json:"id" yaml:"id"`
	Key        string     `json:"key" yaml:"key"` // stable key, e.g. "iron_ore"
	Name       string     `json:"name,omitempty" yaml:"name"`
	StackLimit int        `json:"stackLimit,omitempty" yaml:"stack_limit"`
}

var (
	// ErrDuplicateID is returned when two definitions share an id.
	ErrDuplicateID = errors.New("catalog: duplicate resource id")
	// ErrDuplicateKey is returned when two definitions share a key.
	ErrDuplicateKey = errors.New("catalog: duplicate resource key")
	// ErrEmptyKey is returned for definitions without a key.
	ErrEmptyKey = errors.New("catalog: resource key cannot be empty")
)

// Catalog is immutable after construction. Index positions follow the
// order of the definitions passed to New.
type Catalog struct {
	defs  []ResourceDef
	byID  map[ResourceID]int
	byKey map[string]int
}

// New builds a catalog from an ordered list of definitions.
func New(defs ...ResourceDef) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]ResourceDef, 0, len(defs)),
		byID:  make(map[ResourceID]int, len(defs)),
		byKey: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		if d.Key == "" {
			return nil, fmt.Errorf("resource %d: %w", i, ErrEmptyKey)
		}
		if _, dup := c.byID[d.ID]; dup {
			return nil, fmt.Errorf("resource %q (id %d): %w", d.Key, d.ID, ErrDuplicateID)
		}
		if _, dup := c.byKey[d.Key]; dup {
			return nil, fmt.Errorf("resource %q: %w", d.Key, ErrDuplicateKey)
		}
		if d.StackLimit == 0 {
			d.StackLimit = DefaultStackLimit
		}
		if d.Name == "" {
			d.Name = d.Key
		}
		c.byID[d.ID] = len(c.defs)
		c.byKey[d.Key] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// MustNew is New for static tables; it panics on error.
func MustNew(defs ...ResourceDef) *Catalog {
	c, err := New(defs...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of resources.
func (c *Catalog) Len() int {
	return len(c.defs)
}

// Contains reports whether id is part of the catalog.
func (c *Catalog) Contains(id ResourceID) bool {
	_, ok := c.byID[id]
	return ok
}

// Def returns the definition for id.
func (c *Catalog) Def(id ResourceID) (ResourceDef, bool) {
	i, ok := c.byID[id]
	if !ok {
		return ResourceDef{}, false
	}
	return c.defs[i], true
}

// ByKey returns the definition registered under key.
func (c *Catalog) ByKey(key string) (ResourceDef, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return ResourceDef{}, false
	}
	return c.defs[i], true
}

// ToIndex maps id to its dense index.
func (c *Catalog) ToIndex(id ResourceID) (int, bool) {
	i, ok := c.byID[id]
	return i, ok
}

// FromIndex maps a dense index back to its id. It panics when the index
// is out of range, like a slice access.
func (c *Catalog) FromIndex(i int) ResourceID {
	return c.defs[i].ID
}

// KeyOf returns the stable key of id, or its numeric form when unknown.
func (c *Catalog) KeyOf(id ResourceID) string {
	if d, ok := c.Def(id); ok {
		return d.Key
	}
	return id.String()
}

// Defs returns a copy of the definitions in index order.
func (c *Catalog) Defs() []ResourceDef {
	out := make([]ResourceDef, len(c.defs))
	copy(out, c.defs)
	return out
}
