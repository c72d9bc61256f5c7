// Package player moves resources between the player's inventory and the
// storage zone the player stands in, one unit at a time.
package player

import (
	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/storage"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

// Tag marks transfers started by the player.
const Tag = "player"

const minSecondsPerUnit = 1e-4

// StorageRole is the direction of a storage zone.
type StorageRole int

const (
	// Input zones accept drops from the inventory.
	Input StorageRole = iota
	// Output zones are picked up into the inventory.
	Output
)

func (r StorageRole) String() string {
	switch r {
	case Input:
		return "Input"
	case Output:
		return "Output"
	default:
		return "Unknown"
	}
}

// Model is the player's simulation state.
type Model struct {
	inventory storage.Container
}

// NewModel wraps inventory.
func NewModel(inventory storage.Container) *Model {
	return &Model{inventory: inventory}
}

// Inventory returns the player's container.
func (m *Model) Inventory() storage.Container { return m.inventory }

// InteractionSink receives zone enter/exit notifications from whatever
// detects the player's position.
type InteractionSink interface {
	EnterStorage(c storage.Container, role StorageRole, filter storage.Filter)
	ExitStorage(c storage.Container)
}

// TransferSystem keeps at most one player transfer in flight while the
// player is inside a storage zone.
type TransferSystem struct {
	player    *Model
	catalog   *catalog.Catalog
	scheduler transfer.Scheduler
	finished  *observe.Subscription

	pickupSeconds float64
	dropSeconds   float64

	zone   storage.Container
	role   StorageRole
	filter storage.Filter

	active    transfer.ID
	hasActive bool
}

var _ InteractionSink = (*TransferSystem)(nil)

// NewTransferSystem subscribes to stream's Finished events until Close.
// Non-positive per-unit durations are floored to a tiny positive value.
func NewTransferSystem(
	player *Model,
	cat *catalog.Catalog,
	scheduler transfer.Scheduler,
	stream transfer.Stream,
	pickupSecondsPerUnit float64,
	dropSecondsPerUnit float64,
) *TransferSystem {
	s := &TransferSystem{
		player:        player,
		catalog:       cat,
		scheduler:     scheduler,
		pickupSeconds: floorSeconds(pickupSecondsPerUnit),
		dropSeconds:   floorSeconds(dropSecondsPerUnit),
	}
	s.finished = stream.Finished().Subscribe(s.onFinished)
	return s
}

func floorSeconds(v float64) float64 {
	if v <= 0 {
		return minSecondsPerUnit
	}
	return v
}

// EnterStorage makes c the current zone. A nil filter admits every
// resource.
func (s *TransferSystem) EnterStorage(c storage.Container, role StorageRole, filter storage.Filter) {
	s.zone = c
	s.role = role
	s.filter = filter
}

// ExitStorage leaves c and cancels the transfer in flight. Exiting a zone
// other than the current one is ignored.
func (s *TransferSystem) ExitStorage(c storage.Container) {
	if s.zone == nil || s.zone != c {
		return
	}
	s.zone = nil
	s.filter = nil

	if !s.hasActive {
		return
	}
	id := s.active
	s.hasActive = false
	s.scheduler.Cancel(id)
}

// Zone returns the current storage zone.
func (s *TransferSystem) Zone() (storage.Container, StorageRole, bool) {
	return s.zone, s.role, s.zone != nil
}

// Active returns the transfer in flight.
func (s *TransferSystem) Active() (transfer.ID, bool) {
	return s.active, s.hasActive
}

// Tick schedules the next unit when idle inside a zone.
func (s *TransferSystem) Tick(dt float64) {
	if s.zone == nil || s.hasActive {
		return
	}
	if s.role == Output {
		s.schedule(s.zone, s.player.inventory, s.pickupSeconds)
	} else {
		s.schedule(s.player.inventory, s.zone, s.dropSeconds)
	}
}

// Close stops tracking transfer outcomes.
func (s *TransferSystem) Close() {
	s.finished.Dispose()
}

func (s *TransferSystem) schedule(from, to storage.Container, seconds float64) {
	if to.FreeSpace() <= 0 {
		return
	}
	res, ok := storage.FirstHeld(from, s.catalog, s.filter)
	if !ok {
		return
	}

	id := s.scheduler.Enqueue(transfer.Request{
		Source:          from,
		Destination:     to,
		Resource:        res,
		DurationSeconds: seconds,
		Tag:             Tag,
	})
	// failed and instant transfers are already finished
	if _, live := s.scheduler.TryGet(id); !live {
		return
	}
	s.active = id
	s.hasActive = true
}

func (s *TransferSystem) onFinished(e transfer.Finished) {
	if !s.hasActive || e.ID != s.active {
		return
	}
	s.hasActive = false
}
