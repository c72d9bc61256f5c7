package sim

import (
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/storage"
)

// Snapshot is a read model of the whole world.
type Snapshot struct {
	Tick      uint64                    `json:"tick"`
	Elapsed   float64                   `json:"elapsed"`
	Transfers int                       `json:"transfers"`
	Buildings []BuildingSnapshot        `json:"buildings"`
	Player    storage.ContainerSnapshot `json:"player"`
}

// BuildingSnapshot is a read model of one building.
type BuildingSnapshot struct {
	ID         production.BuildingID     `json:"id"`
	Name       string                    `json:"name"`
	Recipe     string                    `json:"recipe"`
	Passive    bool                      `json:"passive,omitempty"`
	Status     string                    `json:"status"`
	StopReason string                    `json:"stopReason,omitempty"`
	Progress   float64                   `json:"progress"`
	Input      storage.ContainerSnapshot `json:"input"`
	Output     storage.ContainerSnapshot `json:"output"`
	InPort     storage.ContainerSnapshot `json:"inPort"`
	OutPort    storage.ContainerSnapshot `json:"outPort"`
}

// Snapshot captures the current state.
func (w *World) Snapshot() Snapshot {
	s := Snapshot{
		Tick:      w.ticks,
		Elapsed:   w.elapsed,
		Transfers: w.scheduler.Len(),
		Buildings: make([]BuildingSnapshot, 0, len(w.buildings)),
		Player:    storage.Snapshot(w.player.Inventory(), w.catalog),
	}
	for _, b := range w.buildings {
		s.Buildings = append(s.Buildings, w.BuildingSnapshot(b))
	}
	return s
}

// BuildingSnapshot captures one building.
func (w *World) BuildingSnapshot(b *production.Building) BuildingSnapshot {
	bs := BuildingSnapshot{
		ID:       b.ID(),
		Name:     b.Name(),
		Recipe:   b.Recipe().Name,
		Passive:  w.passive[b.ID()],
		Status:   b.Status().String(),
		Progress: b.ProductionProgress(),
		Input:    storage.Snapshot(b.InputStorage(), w.catalog),
		Output:   storage.Snapshot(b.OutputStorage(), w.catalog),
		InPort:   storage.Snapshot(b.InPort(), w.catalog),
		OutPort:  storage.Snapshot(b.OutPort(), w.catalog),
	}
	if b.StopReason() != production.NoStop {
		bs.StopReason = b.StopReason().String()
	}
	return bs
}
