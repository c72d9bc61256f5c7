// Package production runs per-building production cycles: pull inputs,
// produce, push output. Each building is driven by its own state machine
// that talks to the shared transfer scheduler.
package production

import (
	"fmt"
	"strconv"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/storage"
)

// BuildingID identifies a building within a world.
type BuildingID int

func (id BuildingID) String() string {
	return "B" + strconv.Itoa(int(id))
}

// Status is the phase of a building's production cycle.
type Status int

const (
	// Idle waits to start the next cycle.
	Idle Status = iota
	// PullInputs moves recipe inputs from input storage into the inPort.
	PullInputs
	// Producing consumes the inPort and runs the recipe timer.
	Producing
	// PushOutput moves the produced unit from the outPort to output storage.
	PushOutput
	// Stopped is blocked for the recorded StopReason.
	Stopped
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case Idle:
		return "Idle"
	case PullInputs:
		return "PullInputs"
	case Producing:
		return "Producing"
	case PushOutput:
		return "PushOutput"
	case Stopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// StopReason explains why a building is Stopped.
type StopReason int

const (
	// NoStop is the reason of every status except Stopped.
	NoStop StopReason = iota
	// NoInput means input storage lacks a recipe input.
	NoInput
	// OutputFull means output storage has no free space.
	OutputFull
	// TransferBlocked means a transfer failed for another reason.
	TransferBlocked
)

// String returns a human-readable representation of the reason.
func (r StopReason) String() string {
	switch r {
	case NoStop:
		return "None"
	case NoInput:
		return "NoInput"
	case OutputFull:
		return "OutputFull"
	case TransferBlocked:
		return "TransferBlocked"
	default:
		return "Unknown"
	}
}

// Building holds a building's containers and cycle state. Status fields
// are written only by the building's FSM.
type Building struct {
	id     BuildingID
	name   string
	recipe Recipe

	inputStorage  storage.Container
	outputStorage storage.Container
	inPort        storage.Container
	outPort       storage.Container

	inputSecondsPerUnit  float64
	outputSecondsPerUnit float64

	status     Status
	stopReason StopReason
	progress   float64
}

// BuildingSpec configures NewBuilding.
type BuildingSpec struct {
	ID                   BuildingID
	Name                 string
	Recipe               Recipe
	InputCapacity        int
	OutputCapacity       int
	InputSecondsPerUnit  float64
	OutputSecondsPerUnit float64
}

// NewBuilding creates a building with fresh input/output storages and
// ports. The in-port holds exactly one cycle of inputs (at least one
// unit); the out-port holds one unit.
func NewBuilding(cat *catalog.Catalog, spec BuildingSpec) *Building {
	name := spec.Name
	if name == "" {
		name = spec.ID.String()
	}
	inPortCap := spec.Recipe.TotalInputUnits()
	if inPortCap < 1 {
		inPortCap = 1
	}

	return &Building{
		id:                   spec.ID,
		name:                 name,
		recipe:               spec.Recipe,
		inputStorage:         storage.NewModel(name+".input", cat, spec.InputCapacity),
		outputStorage:        storage.NewModel(name+".output", cat, spec.OutputCapacity),
		inPort:               storage.NewModel(name+".inPort", cat, inPortCap),
		outPort:              storage.NewModel(name+".outPort", cat, 1),
		inputSecondsPerUnit:  spec.InputSecondsPerUnit,
		outputSecondsPerUnit: spec.OutputSecondsPerUnit,
	}
}

func (b *Building) ID() BuildingID                   { return b.id }
func (b *Building) Name() string                     { return b.name }
func (b *Building) Recipe() Recipe                   { return b.recipe }
func (b *Building) InputStorage() storage.Container  { return b.inputStorage }
func (b *Building) OutputStorage() storage.Container { return b.outputStorage }
func (b *Building) InPort() storage.Container        { return b.inPort }
func (b *Building) OutPort() storage.Container       { return b.outPort }

// InputSecondsPerUnit is the duration of each pull transfer.
func (b *Building) InputSecondsPerUnit() float64 { return b.inputSecondsPerUnit }

// OutputSecondsPerUnit is the duration of the push transfer.
func (b *Building) OutputSecondsPerUnit() float64 { return b.outputSecondsPerUnit }

func (b *Building) Status() Status         { return b.status }
func (b *Building) StopReason() StopReason { return b.stopReason }

// ProductionProgress is in [0,1] while Producing.
func (b *Building) ProductionProgress() float64 { return b.progress }

// Containers lists the building's containers in a stable order.
func (b *Building) Containers() []storage.Container {
	return []storage.Container{b.inputStorage, b.outputStorage, b.inPort, b.outPort}
}

func (b *Building) String() string {
	return fmt.Sprintf("%s(%s)", b.name, b.recipe.Name)
}
