// Package transfer schedules timed moves of single resource units between
// storage containers.
package transfer

import (
	"errors"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/storage"
)

// ID identifies a transfer. IDs are allocated from 1 upward, including
// for requests that fail.
type ID int64

// Status is the lifecycle state of a transfer.
type Status int

const (
	// Running transfers hold a removed source unit and a destination
	// reservation.
	Running Status = iota
	// Completed transfers have committed their unit to the destination.
	Completed
	// Cancelled transfers have been fully rolled back.
	Cancelled
	// Failed transfers could not reserve both ends at enqueue time.
	Failed
)

// String returns a human-readable representation of the status.
func (s Status) String() string {
	switch s {
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Cancelled:
		return "Cancelled"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Terminal reports whether s ends a transfer.
func (s Status) Terminal() bool {
	return s != Running
}

// ErrNilContainer is the panic value for requests without a source or
// destination.
var ErrNilContainer = errors.New("transfer: source and destination are required")

// Request describes one unit moving from Source to Destination. A
// non-positive DurationSeconds completes the transfer inside Enqueue.
type Request struct {
	Source          storage.Container
	Destination     storage.Container
	Resource        catalog.ResourceID
	DurationSeconds float64
	Tag             any
}

// Started is published once a transfer holds both reservations.
type Started struct {
	ID              ID
	Source          storage.Container
	Destination     storage.Container
	Resource        catalog.ResourceID
	DurationSeconds float64
	Tag             any
}

// Progress is published every tick while a transfer runs.
type Progress struct {
	ID       ID
	Progress float64
}

// Finished is published exactly once per ID with a terminal status.
type Finished struct {
	ID     ID
	Status Status
}

// TaskSnapshot is a read-only view of a live transfer.
type TaskSnapshot struct {
	ID              ID
	Source          storage.Container
	Destination     storage.Container
	Resource        catalog.ResourceID
	DurationSeconds float64
	ElapsedSeconds  float64
	Progress        float64
	Status          Status
	Tag             any
}

// Scheduler is the command side of the transfer system.
type Scheduler interface {
	Enqueue(req Request) ID
	Cancel(id ID)
	TryGet(id ID) (TaskSnapshot, bool)
	Tick(dt float64)
}

// Stream is the event side of the transfer system.
type Stream interface {
	Started() observe.Source[Started]
	Progress() observe.Source[Progress]
	Finished() observe.Source[Finished]
}
