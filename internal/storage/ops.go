package storage

import (
	"github.com/gravitas-games/prodsim/internal/catalog"
)

// TryAddInstant places one unit of id without a transfer. It goes through
// reserve and commit so container accounting stays consistent.
func TryAddInstant(c Container, id catalog.ResourceID) bool {
	res, ok := c.TryReserveAdd(id)
	if !ok {
		return false
	}
	c.CommitAdd(res)
	return true
}

// TryConsume permanently removes amount units of id. It returns false
// without side effect when fewer than amount are held. A non-positive
// amount always succeeds.
func TryConsume(c Container, id catalog.ResourceID, amount int) bool {
	if amount <= 0 {
		return true
	}
	if c.Count(id) < amount {
		return false
	}

	taken := make([]RemoveToken, 0, amount)
	for i := 0; i < amount; i++ {
		tok, ok := c.TryBeginRemove(id)
		if !ok {
			for _, t := range taken {
				c.CancelRemove(t)
			}
			return false
		}
		taken = append(taken, tok)
	}
	for _, t := range taken {
		c.CommitRemove(t)
	}
	return true
}

// Filter restricts which resources may move through an interaction.
type Filter interface {
	Allows(id catalog.ResourceID) bool
}

// FilterFunc adapts a function to Filter.
type FilterFunc func(id catalog.ResourceID) bool

// Allows calls f(id).
func (f FilterFunc) Allows(id catalog.ResourceID) bool { return f(id) }

// AllowOnly returns a filter that admits exactly ids.
func AllowOnly(ids ...catalog.ResourceID) Filter {
	set := make(map[catalog.ResourceID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return FilterFunc(func(id catalog.ResourceID) bool {
		_, ok := set[id]
		return ok
	})
}

// Allows reports whether f admits id. A nil filter admits everything.
func Allows(f Filter, id catalog.ResourceID) bool {
	return f == nil || f.Allows(id)
}

// FirstHeld returns the first resource in catalog order that c holds and
// f admits.
func FirstHeld(c ReadOnly, cat *catalog.Catalog, f Filter) (catalog.ResourceID, bool) {
	for i := 0; i < cat.Len(); i++ {
		id := cat.FromIndex(i)
		if c.Count(id) <= 0 || !Allows(f, id) {
			continue
		}
		return id, true
	}
	return catalog.NoResource, false
}

// ContainerSnapshot is a read model of a container for observers.
type ContainerSnapshot struct {
	Name     string         `json:"name"`
	Capacity int            `json:"capacity"`
	Total    int            `json:"total"`
	Free     int            `json:"free"`
	Counts   map[string]int `json:"counts"`
}

// Snapshot captures c, keying counts by resource key. Resources with no
// units are omitted.
func Snapshot(c Container, cat *catalog.Catalog) ContainerSnapshot {
	s := ContainerSnapshot{
		Name:     c.Name(),
		Capacity: c.Capacity(),
		Total:    c.Total(),
		Free:     c.FreeSpace(),
		Counts:   make(map[string]int),
	}
	for _, def := range cat.Defs() {
		if n := c.Count(def.ID); n > 0 {
			s.Counts[def.Key] = n
		}
	}
	return s
}
