// Package storage provides fixed-capacity resource containers.
//
// Removal is immediate and can be rolled back with the returned token;
// the slot stays claimed until the removal is committed or cancelled.
// Adds are reserved first and committed later, so a transfer can claim
// destination space for its whole duration.
package storage

import (
	"fmt"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/observe"
)

// ReadOnly exposes container state without mutation.
type ReadOnly interface {
	Capacity() int
	Total() int
	FreeSpace() int
	Count(id catalog.ResourceID) int
}

// Container is a resource multiset with reserve/commit semantics.
type Container interface {
	ReadOnly

	// TryBeginRemove takes one unit of id out immediately.
	TryBeginRemove(id catalog.ResourceID) (RemoveToken, bool)
	// CancelRemove puts the unit taken by token back.
	CancelRemove(token RemoveToken)
	// CommitRemove makes the removal permanent and frees its slot.
	CommitRemove(token RemoveToken)
	// TryReserveAdd claims one unit of free space for id.
	TryReserveAdd(id catalog.ResourceID) (AddReservation, bool)
	// CancelAdd releases a reservation.
	CancelAdd(res AddReservation)
	// CommitAdd turns a reservation into a held unit.
	CommitAdd(res AddReservation)

	// Changed fires after every successful mutation.
	Changed() observe.Source[struct{}]
	Name() string
}

// RemoveToken identifies one successful TryBeginRemove.
type RemoveToken struct {
	resource catalog.ResourceID
	owner    *Model
	seq      uint64
}

// Resource returns the resource the token was issued for.
func (t RemoveToken) Resource() catalog.ResourceID { return t.resource }

// AddReservation identifies one successful TryReserveAdd.
type AddReservation struct {
	resource catalog.ResourceID
	owner    *Model
	seq      uint64
}

// Resource returns the resource the reservation was issued for.
func (r AddReservation) Resource() catalog.ResourceID { return r.resource }

// ContractError describes a caller bug against a container. Containers
// panic with it; it is never returned as a value.
type ContractError struct {
	Container string
	Op        string
	Resource  catalog.ResourceID
	Detail    string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("storage: %s: %s(%d): %s", e.Container, e.Op, e.Resource, e.Detail)
}

// Model is the array-backed Container implementation. Counts are indexed
// by catalog position. It is not safe for concurrent use.
type Model struct {
	name     string
	catalog  *catalog.Catalog
	capacity int

	counts         []int
	reservedAdds   []int
	total          int
	reservedTotal  int
	pendingRemoves int

	removeSeq         uint64
	outstandingRemove map[uint64]catalog.ResourceID
	addSeq            uint64
	outstandingAdd    map[uint64]catalog.ResourceID

	changed *observe.Stream[struct{}]
}

// NewModel creates an empty container sized to the catalog. Negative
// capacity is treated as zero.
func NewModel(name string, cat *catalog.Catalog, capacity int) *Model {
	if capacity < 0 {
		capacity = 0
	}
	return &Model{
		name:              name,
		catalog:           cat,
		capacity:          capacity,
		counts:            make([]int, cat.Len()),
		reservedAdds:      make([]int, cat.Len()),
		outstandingRemove: make(map[uint64]catalog.ResourceID),
		outstandingAdd:    make(map[uint64]catalog.ResourceID),
		changed:           observe.NewStream[struct{}](),
	}
}

// Name returns the diagnostic name given at construction.
func (m *Model) Name() string { return m.name }

// Capacity returns the fixed capacity.
func (m *Model) Capacity() int { return m.capacity }

// Total returns the number of held units.
func (m *Model) Total() int { return m.total }

// ReservedTotal returns the number of reserved incoming units.
func (m *Model) ReservedTotal() int { return m.reservedTotal }

// PendingRemoves returns units taken out but not yet committed or
// cancelled.
func (m *Model) PendingRemoves() int { return m.pendingRemoves }

// FreeSpace returns capacity minus held, reserved and pending removed
// units.
func (m *Model) FreeSpace() int {
	return m.capacity - (m.total + m.reservedTotal + m.pendingRemoves)
}

// Count returns held units of id, or 0 for ids outside the catalog.
func (m *Model) Count(id catalog.ResourceID) int {
	idx, ok := m.catalog.ToIndex(id)
	if !ok {
		return 0
	}
	return m.counts[idx]
}

// Reserved returns reserved incoming units of id.
func (m *Model) Reserved(id catalog.ResourceID) int {
	idx, ok := m.catalog.ToIndex(id)
	if !ok {
		return 0
	}
	return m.reservedAdds[idx]
}

// Changed returns the change notification source.
func (m *Model) Changed() observe.Source[struct{}] { return m.changed }

// TryBeginRemove decrements id right away and keeps its slot claimed
// until CommitRemove or CancelRemove. It fails without side effect when
// nothing of id is held.
func (m *Model) TryBeginRemove(id catalog.ResourceID) (RemoveToken, bool) {
	idx, ok := m.catalog.ToIndex(id)
	if !ok || m.counts[idx] <= 0 {
		return RemoveToken{}, false
	}
	m.counts[idx]--
	m.total--
	m.pendingRemoves++
	m.removeSeq++
	m.outstandingRemove[m.removeSeq] = id
	tok := RemoveToken{resource: id, owner: m, seq: m.removeSeq}
	m.notify()
	return tok, true
}

// CancelRemove restores the unit taken by token into its still claimed
// slot. It panics unless token is outstanding.
func (m *Model) CancelRemove(token RemoveToken) {
	idx := m.consumeRemove("CancelRemove", token)
	m.pendingRemoves--
	m.counts[idx]++
	m.total++
	m.notify()
}

// CommitRemove finalizes the removal and releases its slot. It panics
// unless token is outstanding.
func (m *Model) CommitRemove(token RemoveToken) {
	m.consumeRemove("CommitRemove", token)
	m.pendingRemoves--
	m.notify()
}

func (m *Model) consumeRemove(op string, token RemoveToken) int {
	if token.owner != m {
		m.violate(op, token.resource, "token was not issued by this container")
	}
	id, ok := m.outstandingRemove[token.seq]
	if !ok || id != token.resource {
		m.violate(op, token.resource, "no matching removal")
	}
	idx, _ := m.catalog.ToIndex(id)
	delete(m.outstandingRemove, token.seq)
	return idx
}

// TryReserveAdd claims one unit of free space. It fails when the
// container is full (held, reserved and pending removals) or id is not
// in the catalog.
func (m *Model) TryReserveAdd(id catalog.ResourceID) (AddReservation, bool) {
	idx, ok := m.catalog.ToIndex(id)
	if !ok || m.FreeSpace() <= 0 {
		return AddReservation{}, false
	}
	m.reservedAdds[idx]++
	m.reservedTotal++
	m.addSeq++
	m.outstandingAdd[m.addSeq] = id
	res := AddReservation{resource: id, owner: m, seq: m.addSeq}
	m.notify()
	return res, true
}

// CancelAdd releases res. It panics when res is not outstanding.
func (m *Model) CancelAdd(res AddReservation) {
	idx := m.consumeReservation("CancelAdd", res)
	m.reservedAdds[idx]--
	m.reservedTotal--
	m.notify()
}

// CommitAdd converts res into a held unit. It panics when res is not
// outstanding or the container would overflow.
func (m *Model) CommitAdd(res AddReservation) {
	if m.total+m.pendingRemoves >= m.capacity {
		m.violate("CommitAdd", res.resource, "container already at capacity")
	}
	idx := m.consumeReservation("CommitAdd", res)
	m.reservedAdds[idx]--
	m.reservedTotal--
	m.counts[idx]++
	m.total++
	m.notify()
}

func (m *Model) consumeReservation(op string, res AddReservation) int {
	if res.owner != m {
		m.violate(op, res.resource, "reservation was not issued by this container")
	}
	id, ok := m.outstandingAdd[res.seq]
	if !ok || id != res.resource {
		m.violate(op, res.resource, "no matching reservation")
	}
	idx, _ := m.catalog.ToIndex(id)
	if m.reservedAdds[idx] <= 0 {
		m.violate(op, res.resource, "reservation underflow")
	}
	delete(m.outstandingAdd, res.seq)
	return idx
}

func (m *Model) violate(op string, id catalog.ResourceID, detail string) {
	panic(&ContractError{Container: m.name, Op: op, Resource: id, Detail: detail})
}

func (m *Model) notify() {
	m.changed.Publish(struct{}{})
}
