package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/network"
	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/player"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/sim"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

// ErrSessionBusy is returned when the command queue is full.
var ErrSessionBusy = errors.New("session command queue full")

const commandQueueSize = 256

// Command runs on the simulation goroutine before the next tick.
type Command func(w *sim.World)

// Session owns the world and is its only writer: the world is ticked
// and commands are applied on the goroutine running Run.
type Session struct {
	ID        string
	CreatedAt time.Time

	world    *sim.World
	tickRate int
	dt       float64
	commands chan Command
	logger   *log.Logger

	// Observer management
	connections map[string]*Connection // observerID -> Connection
	mu          sync.RWMutex

	status   network.SessionStatus
	statusMu sync.RWMutex

	afterTick []func(d time.Duration)
	subs      observe.Group
}

// NewSession creates a session around world and publishes its events to
// connected observers.
func NewSession(id string, world *sim.World, tickRate int, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	if tickRate <= 0 {
		tickRate = 1
	}
	s := &Session{
		ID:          id,
		CreatedAt:   time.Now(),
		world:       world,
		tickRate:    tickRate,
		dt:          1 / float64(tickRate),
		commands:    make(chan Command, commandQueueSize),
		logger:      logger,
		connections: make(map[string]*Connection),
		status: network.SessionStatus{
			State:    "waiting",
			TickRate: tickRate,
		},
	}
	s.subscribe()

	logger.Printf("Session %s created at %d Hz", id, tickRate)
	return s
}

// World returns the simulated world. Only touch it from a Command.
func (s *Session) World() *sim.World { return s.world }

// OnTick registers fn to run on the simulation goroutine after every
// tick with the tick's wall duration. Register before Run.
func (s *Session) OnTick(fn func(d time.Duration)) {
	s.afterTick = append(s.afterTick, fn)
}

// Submit queues cmd for the next tick without blocking.
func (s *Session) Submit(cmd Command) error {
	select {
	case s.commands <- cmd:
		return nil
	default:
		return ErrSessionBusy
	}
}

// Run ticks the world at the session's rate until ctx is done.
func (s *Session) Run(ctx context.Context) {
	s.setState("running")
	s.logger.Printf("Session %s running", s.ID)

	ticker := time.NewTicker(time.Second / time.Duration(s.tickRate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState("stopped")
			s.logger.Printf("Session %s stopped", s.ID)
			return
		case <-ticker.C:
			s.Step()
		}
	}
}

// Step applies queued commands and advances the world by one tick.
func (s *Session) Step() {
	// commands queued while draining wait for the next tick
	for n := len(s.commands); n > 0; n-- {
		cmd := <-s.commands
		cmd(s.world)
	}

	start := time.Now()
	s.world.Tick(s.dt)
	elapsed := time.Since(start)

	s.statusMu.Lock()
	s.status.ServerTick = s.world.Ticks()
	s.status.SimSeconds = s.world.Elapsed()
	s.statusMu.Unlock()

	for _, fn := range s.afterTick {
		fn(elapsed)
	}
}

// Close detaches the session from the world.
func (s *Session) Close() {
	s.subs.Dispose()
}

// AddObserver registers a connection for broadcasts
func (s *Session) AddObserver(conn *Connection) {
	s.mu.Lock()
	s.connections[conn.observer.ID] = conn
	count := len(s.connections)
	s.mu.Unlock()

	s.statusMu.Lock()
	s.status.ObserverCount = count
	s.statusMu.Unlock()

	s.logger.Printf("Observer %s (%s) joined session %s", conn.observer.Username, conn.observer.ID, s.ID)
}

// RemoveObserver removes a connection
func (s *Session) RemoveObserver(observerID string) {
	s.mu.Lock()
	conn, exists := s.connections[observerID]
	delete(s.connections, observerID)
	count := len(s.connections)
	s.mu.Unlock()

	if !exists {
		return
	}
	s.statusMu.Lock()
	s.status.ObserverCount = count
	s.statusMu.Unlock()

	s.logger.Printf("Observer %s (%s) left session %s", conn.observer.Username, observerID, s.ID)
}

// ObserverCount returns the number of connected observers
func (s *Session) ObserverCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

// Broadcast sends a message to all connected observers
func (s *Session) Broadcast(msg *network.ServerMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		conn.SendMessage(msg)
	}
}

func (s *Session) broadcastProgress(msg *network.ServerMessage) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, conn := range s.connections {
		conn.SendProgress(msg)
	}
}

// GetStatus returns the current session status
func (s *Session) GetStatus() network.SessionStatus {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()

	status := s.status
	status.Uptime = int64(time.Since(s.CreatedAt).Seconds())
	return status
}

func (s *Session) setState(state string) {
	s.statusMu.Lock()
	s.status.State = state
	s.statusMu.Unlock()
}

// EnterStorage queues the player's entry into a building storage zone.
// Errors found on the simulation goroutine are reported through fail.
func (s *Session) EnterStorage(p network.EnterStoragePayload, fail func(code, message string)) error {
	var role player.StorageRole
	switch p.Role {
	case network.RoleInput:
		role = player.Input
	case network.RoleOutput:
		role = player.Output
	default:
		return fmt.Errorf("unknown storage role %q", p.Role)
	}

	return s.Submit(func(w *sim.World) {
		c, filter, err := w.Storage(production.BuildingID(p.BuildingID), role)
		if err != nil {
			fail(network.ErrCodeUnknownBuilding, err.Error())
			return
		}
		if zone, _, ok := w.PlayerTransfers().Zone(); ok {
			w.PlayerTransfers().ExitStorage(zone)
		}
		w.PlayerTransfers().EnterStorage(c, role, filter)
	})
}

// ExitStorage queues the player's exit from its current zone.
func (s *Session) ExitStorage() error {
	return s.Submit(func(w *sim.World) {
		if zone, _, ok := w.PlayerTransfers().Zone(); ok {
			w.PlayerTransfers().ExitStorage(zone)
		}
	})
}

// SendSnapshot queues a snapshot of the world for conn.
func (s *Session) SendSnapshot(conn *Connection) error {
	return s.Submit(func(w *sim.World) {
		conn.SendMessage(&network.ServerMessage{
			Type:    network.MsgTypeSnapshotResult,
			Payload: w.Snapshot(),
		})
	})
}

// subscribe forwards world events to observers. Handlers run on the
// simulation goroutine.
func (s *Session) subscribe() {
	w := s.world
	cat := w.Catalog()
	sched := w.Scheduler()

	s.subs.Add(
		sched.Started().Subscribe(func(e transfer.Started) {
			s.Broadcast(&network.ServerMessage{
				Type:    network.MsgTypeTransferStarted,
				Payload: startedPayload(cat, e),
			})
		}),
		sched.Progress().Subscribe(func(e transfer.Progress) {
			s.broadcastProgress(&network.ServerMessage{
				Type:    network.MsgTypeTransferProgress,
				Payload: network.TransferProgressPayload{ID: int64(e.ID), Progress: e.Progress},
			})
		}),
		sched.Finished().Subscribe(func(e transfer.Finished) {
			s.Broadcast(&network.ServerMessage{
				Type:    network.MsgTypeTransferFinished,
				Payload: network.TransferFinishedPayload{ID: int64(e.ID), Status: e.Status.String()},
			})
		}),
		w.Transitions().Subscribe(func(tr production.Transition) {
			s.Broadcast(&network.ServerMessage{
				Type:    network.MsgTypeBuildingStatus,
				Payload: buildingPayload(tr),
			})
		}),
	)
}

func startedPayload(cat *catalog.Catalog, e transfer.Started) network.TransferStartedPayload {
	origin := "none"
	if e.Tag != nil {
		origin = fmt.Sprint(e.Tag)
	}
	return network.TransferStartedPayload{
		ID:              int64(e.ID),
		Resource:        cat.KeyOf(e.Resource),
		Source:          e.Source.Name(),
		Destination:     e.Destination.Name(),
		DurationSeconds: e.DurationSeconds,
		Origin:          origin,
	}
}

func buildingPayload(tr production.Transition) network.BuildingStatusPayload {
	p := network.BuildingStatusPayload{
		BuildingID: int(tr.Building.ID()),
		From:       tr.From.String(),
		To:         tr.To.String(),
	}
	if tr.To == production.Stopped {
		p.Reason = tr.Reason.String()
	}
	lines := production.StatusLines([]*production.Building{tr.Building})
	p.Text = lines[0].Text
	return p
}
