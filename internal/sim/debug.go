package sim

import (
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/storage"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

// Debug traces the world's internals: transfer lifecycles, container
// contents after each change and building phase changes.
type Debug struct {
	cfg    config.DebugConfig
	world  *World
	logger *log.Logger
	subs   observe.Group

	lastStatus   map[production.BuildingID]production.Status
	lastStop     map[production.BuildingID]production.StopReason
	lastProdStep map[production.BuildingID]int
	lastStep     map[transfer.ID]int
}

// NewDebug subscribes to w according to cfg. A nil logger writes to
// stdout with cfg.Prefix.
func NewDebug(w *World, cfg config.DebugConfig, logger *log.Logger) *Debug {
	if logger == nil {
		logger = log.New(os.Stdout, cfg.Prefix, log.LstdFlags|log.Lmicroseconds)
	}
	d := &Debug{
		cfg:          cfg,
		world:        w,
		logger:       logger,
		lastStatus:   make(map[production.BuildingID]production.Status),
		lastStop:     make(map[production.BuildingID]production.StopReason),
		lastProdStep: make(map[production.BuildingID]int),
		lastStep:     make(map[transfer.ID]int),
	}
	for _, b := range w.Buildings() {
		d.lastStatus[b.ID()] = b.Status()
		d.lastStop[b.ID()] = b.StopReason()
		d.lastProdStep[b.ID()] = -1
	}

	s := w.Scheduler()
	d.subs.Add(
		s.Started().Subscribe(d.onStarted),
		s.Finished().Subscribe(d.onFinished),
	)
	if cfg.LogTransferProgress {
		d.subs.Add(s.Progress().Subscribe(d.onProgress))
	}
	if cfg.LogContainerChanged {
		for _, c := range w.Containers() {
			c := c
			d.subs.Add(c.Changed().Subscribe(func(struct{}) { d.logger.Print(DumpContainer(c, w.Catalog())) }))
		}
	}
	return d
}

// Tick reports building phase changes and production progress steps.
// Call it after World.Tick.
func (d *Debug) Tick() {
	if !d.cfg.LogBuildingStates && !d.cfg.LogBuildingProgress {
		return
	}
	for _, b := range d.world.Buildings() {
		id := b.ID()
		if d.cfg.LogBuildingStates && (d.lastStatus[id] != b.Status() || d.lastStop[id] != b.StopReason()) {
			d.lastStatus[id] = b.Status()
			d.lastStop[id] = b.StopReason()
			d.logger.Printf("%s state => %s stop=%s", buildingLabel(b), b.Status(), b.StopReason())
		}

		if !d.cfg.LogBuildingProgress || b.Status() != production.Producing {
			continue
		}
		step := stepOf(b.ProductionProgress(), d.cfg.BuildingProgressStep)
		if d.lastProdStep[id] == step {
			continue
		}
		d.lastProdStep[id] = step
		d.logger.Printf("%s producing %.0f%%", buildingLabel(b), b.ProductionProgress()*100)
	}
}

// Close unsubscribes from the world.
func (d *Debug) Close() {
	d.subs.Dispose()
}

func (d *Debug) onStarted(e transfer.Started) {
	if !d.cfg.LogTransferStarted {
		return
	}
	tag := "null"
	if e.Tag != nil {
		tag = fmt.Sprint(e.Tag)
	}
	d.logger.Printf("[T#%d] START %s %s -> %s dur=%s tag=%s",
		e.ID, resourceLabel(d.world.Catalog(), e.Resource), e.Source.Name(), e.Destination.Name(),
		formatSeconds(e.DurationSeconds), tag)
}

func (d *Debug) onProgress(e transfer.Progress) {
	step := stepOf(e.Progress, d.cfg.TransferProgressStep)
	if prev, ok := d.lastStep[e.ID]; ok && prev == step {
		return
	}
	d.lastStep[e.ID] = step
	d.logger.Printf("[T#%d] PROGRESS %.0f%%", e.ID, e.Progress*100)
}

func (d *Debug) onFinished(e transfer.Finished) {
	delete(d.lastStep, e.ID)
	if !d.cfg.LogTransferFinished {
		return
	}
	d.logger.Printf("[T#%d] FINISH status=%s", e.ID, e.Status)
}

// DumpContainer renders a one-line summary of c, e.g.
// "B2.input total=2 free=18 cap=20 [N1(n1)=2]".
func DumpContainer(c storage.ReadOnly, cat *catalog.Catalog) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s total=%d free=%d cap=%d [", nameOf(c), c.Total(), c.FreeSpace(), c.Capacity())
	first := true
	for _, def := range cat.Defs() {
		n := c.Count(def.ID)
		if n == 0 {
			continue
		}
		if !first {
			sb.WriteString(", ")
		}
		first = false
		fmt.Fprintf(&sb, "%s(%s)=%d", def.Name, def.Key, n)
	}
	sb.WriteByte(']')
	return sb.String()
}

func nameOf(c storage.ReadOnly) string {
	if n, ok := c.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "container"
}

func buildingLabel(b *production.Building) string {
	return fmt.Sprintf("%s(%s)", b.ID(), b.Recipe().Name)
}

func resourceLabel(cat *catalog.Catalog, id catalog.ResourceID) string {
	def, ok := cat.Def(id)
	if !ok {
		return id.String()
	}
	return fmt.Sprintf("%s(%s)", def.Name, def.Key)
}

func formatSeconds(s float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", s), "0"), ".")
}

func stepOf(p, step float64) int {
	if step <= 0 {
		return 0
	}
	return int(math.Floor(math.Max(0, math.Min(1, p)) / step))
}
