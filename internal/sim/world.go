// Package sim composes the production simulation from configuration and
// drives it one tick at a time: transfers advance first, then buildings
// react, then the player.
package sim

import (
	"errors"
	"fmt"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/player"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/storage"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

var (
	// ErrUnknownResource is returned for resource keys missing from the
	// catalog.
	ErrUnknownResource = errors.New("sim: unknown resource")
	// ErrUnknownBuilding is returned for building ids not in the world.
	ErrUnknownBuilding = errors.New("sim: unknown building")
	// ErrDuplicateBuilding is returned when two buildings share an id.
	ErrDuplicateBuilding = errors.New("sim: duplicate building id")
	// ErrInitialStock is returned when initial stock exceeds a capacity.
	ErrInitialStock = errors.New("sim: initial stock does not fit")
)

// World owns every simulation object. It is not safe for concurrent
// use; drive it from one goroutine.
type World struct {
	catalog   *catalog.Catalog
	recipes   *production.Registry
	scheduler *transfer.Manager
	system    *production.System

	buildings []*production.Building
	byID      map[production.BuildingID]*production.Building
	passive   map[production.BuildingID]bool

	player *player.Model
	carry  *player.TransferSystem

	transitions *observe.Stream[production.Transition]
	subs        observe.Group

	ticks   uint64
	elapsed float64
}

// NewWorld builds a world from cfg. Resource keys and recipe names are
// resolved here; unknown references are errors.
func NewWorld(cfg config.Simulation) (*World, error) {
	defs := make([]catalog.ResourceDef, 0, len(cfg.Resources))
	for _, r := range cfg.Resources {
		defs = append(defs, catalog.ResourceDef{
			ID:         catalog.ResourceID(r.ID),
			Key:        r.Key,
			Name:       r.Name,
			StackLimit: r.StackLimit,
		})
	}
	cat, err := catalog.New(defs...)
	if err != nil {
		return nil, err
	}

	w := &World{
		catalog:     cat,
		recipes:     production.NewRegistry(),
		scheduler:   transfer.NewManager(),
		system:      production.NewSystem(),
		byID:        make(map[production.BuildingID]*production.Building),
		passive:     make(map[production.BuildingID]bool),
		transitions: observe.NewStream[production.Transition](),
	}

	for _, rc := range cfg.Recipes {
		recipe, err := w.buildRecipe(rc)
		if err != nil {
			return nil, err
		}
		if err := w.recipes.Register(recipe); err != nil {
			return nil, err
		}
	}

	for _, bc := range cfg.Buildings {
		if err := w.addBuilding(bc); err != nil {
			w.Close()
			return nil, err
		}
	}

	inventory := storage.NewModel("Player.Inventory", cat, cfg.Player.InventoryCapacity)
	if err := w.stock(inventory, cfg.Player.InitialInventory); err != nil {
		w.Close()
		return nil, err
	}
	w.player = player.NewModel(inventory)
	w.carry = player.NewTransferSystem(w.player, cat, w.scheduler, w.scheduler,
		cfg.Player.PickupSecondsPerUnit, cfg.Player.DropSecondsPerUnit)

	return w, nil
}

func (w *World) resolve(key string) (catalog.ResourceID, error) {
	def, ok := w.catalog.ByKey(key)
	if !ok {
		return catalog.NoResource, fmt.Errorf("%w: %q", ErrUnknownResource, key)
	}
	return def.ID, nil
}

func (w *World) buildRecipe(rc config.RecipeConfig) (production.Recipe, error) {
	output := catalog.NoResource
	if rc.Output != "" {
		id, err := w.resolve(rc.Output)
		if err != nil {
			return production.Recipe{}, fmt.Errorf("recipe %q output: %w", rc.Name, err)
		}
		output = id
	}
	inputs := make([]production.Bundle, 0, len(rc.Inputs))
	for _, in := range rc.Inputs {
		id, err := w.resolve(in.Resource)
		if err != nil {
			return production.Recipe{}, fmt.Errorf("recipe %q input: %w", rc.Name, err)
		}
		inputs = append(inputs, production.Bundle{Resource: id, Amount: in.Amount})
	}
	return production.NewRecipe(rc.Name, output, rc.ProductionSeconds, inputs...)
}

func (w *World) addBuilding(bc config.BuildingConfig) error {
	id := production.BuildingID(bc.ID)
	if _, dup := w.byID[id]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateBuilding, bc.ID)
	}
	recipe, err := w.recipes.Lookup(bc.Recipe)
	if err != nil {
		return fmt.Errorf("building %d: %w", bc.ID, err)
	}

	b := production.NewBuilding(w.catalog, production.BuildingSpec{
		ID:                   id,
		Name:                 bc.Name,
		Recipe:               recipe,
		InputCapacity:        bc.InputCapacity,
		OutputCapacity:       bc.OutputCapacity,
		InputSecondsPerUnit:  bc.InputSecondsPerUnit,
		OutputSecondsPerUnit: bc.OutputSecondsPerUnit,
	})
	if err := w.stock(b.InputStorage(), bc.InitialInputs); err != nil {
		return fmt.Errorf("building %d: %w", bc.ID, err)
	}

	w.buildings = append(w.buildings, b)
	w.byID[id] = b
	if bc.Passive {
		w.passive[id] = true
		return nil
	}

	fsm := production.NewFSM(b, w.scheduler, w.scheduler)
	w.subs.Add(fsm.Transitions().Subscribe(w.transitions.Publish))
	w.system.Add(fsm)
	return nil
}

func (w *World) stock(c storage.Container, stacks []config.StackConfig) error {
	for _, s := range stacks {
		id, err := w.resolve(s.Resource)
		if err != nil {
			return err
		}
		for i := 0; i < s.Amount; i++ {
			if !storage.TryAddInstant(c, id) {
				return fmt.Errorf("%w: %s needs %d %s", ErrInitialStock, c.Name(), s.Amount, s.Resource)
			}
		}
	}
	return nil
}

// Tick advances the world by dt seconds. Negative dt is treated as zero.
func (w *World) Tick(dt float64) {
	if dt < 0 {
		dt = 0
	}
	w.scheduler.Tick(dt)
	w.system.Tick(dt)
	w.carry.Tick(dt)

	w.ticks++
	w.elapsed += dt
}

// Ticks returns the number of completed ticks.
func (w *World) Ticks() uint64 { return w.ticks }

// Elapsed returns simulated seconds.
func (w *World) Elapsed() float64 { return w.elapsed }

func (w *World) Catalog() *catalog.Catalog               { return w.catalog }
func (w *World) Recipes() *production.Registry           { return w.recipes }
func (w *World) Scheduler() *transfer.Manager            { return w.scheduler }
func (w *World) Production() *production.System          { return w.system }
func (w *World) Player() *player.Model                   { return w.player }
func (w *World) PlayerTransfers() *player.TransferSystem { return w.carry }

// Transitions merges every building's status changes.
func (w *World) Transitions() observe.Source[production.Transition] { return w.transitions }

// Buildings returns all buildings, passive ones included, in
// configuration order.
func (w *World) Buildings() []*production.Building {
	return append([]*production.Building(nil), w.buildings...)
}

// IsPassive reports whether id runs no production cycle.
func (w *World) IsPassive(id production.BuildingID) bool {
	return w.passive[id]
}

// Building looks a building up by id.
func (w *World) Building(id production.BuildingID) (*production.Building, error) {
	b, ok := w.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBuilding, id)
	}
	return b, nil
}

// Storage returns the storage zone of a building for the given role,
// with the filter the zone applies: an Input zone admits only the
// recipe's inputs.
func (w *World) Storage(id production.BuildingID, role player.StorageRole) (storage.Container, storage.Filter, error) {
	b, err := w.Building(id)
	if err != nil {
		return nil, nil, err
	}
	if role == player.Input {
		return b.InputStorage(), production.InputFilter(b.Recipe()), nil
	}
	return b.OutputStorage(), nil, nil
}

// Containers lists every container in the world, player inventory last.
func (w *World) Containers() []storage.Container {
	out := make([]storage.Container, 0, len(w.buildings)*4+1)
	for _, b := range w.buildings {
		out = append(out, b.Containers()...)
	}
	return append(out, w.player.Inventory())
}

// Close detaches every subscription the world created.
func (w *World) Close() {
	w.subs.Dispose()
	w.system.Close()
	if w.carry != nil {
		w.carry.Close()
	}
}
