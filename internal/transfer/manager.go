package transfer

import (
	"fmt"
	"sort"

	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/storage"
)

var (
	_ Scheduler = (*Manager)(nil)
	_ Stream    = (*Manager)(nil)
)

// minDuration stands in for non-positive durations in progress math.
const minDuration = 1e-4

// Manager owns every in-flight transfer. It implements Scheduler and
// Stream and must be driven from a single goroutine.
type Manager struct {
	nextID ID
	tasks  map[ID]*task
	live   []ID // ascending

	started  *observe.Stream[Started]
	progress *observe.Stream[Progress]
	finished *observe.Stream[Finished]
}

type task struct {
	id          ID
	source      storage.Container
	destination storage.Container
	req         Request
	duration    float64
	elapsed     float64
	progress    float64
	status      Status
	removeToken storage.RemoveToken
	reservation storage.AddReservation
}

// NewManager creates an empty scheduler.
func NewManager() *Manager {
	return &Manager{
		nextID:   1,
		tasks:    make(map[ID]*task),
		started:  observe.NewStream[Started](),
		progress: observe.NewStream[Progress](),
		finished: observe.NewStream[Finished](),
	}
}

// Started returns the source of Started events.
func (m *Manager) Started() observe.Source[Started] { return m.started }

// Progress returns the source of Progress events.
func (m *Manager) Progress() observe.Source[Progress] { return m.progress }

// Finished returns the source of Finished events.
func (m *Manager) Finished() observe.Source[Finished] { return m.finished }

// Len returns the number of running transfers.
func (m *Manager) Len() int {
	return len(m.live)
}

// Enqueue starts a transfer and returns its id. Failure to take a source
// unit or reserve destination space is reported only through a Failed
// event published before Enqueue returns.
func (m *Manager) Enqueue(req Request) ID {
	if req.Source == nil || req.Destination == nil {
		panic(fmt.Errorf("transfer: enqueue %d: %w", req.Resource, ErrNilContainer))
	}

	id := m.nextID
	m.nextID++

	duration := req.DurationSeconds
	if duration <= 0 {
		duration = minDuration
	}

	tok, ok := req.Source.TryBeginRemove(req.Resource)
	if !ok {
		m.finished.Publish(Finished{ID: id, Status: Failed})
		return id
	}
	res, ok := req.Destination.TryReserveAdd(req.Resource)
	if !ok {
		req.Source.CancelRemove(tok)
		m.finished.Publish(Finished{ID: id, Status: Failed})
		return id
	}

	t := &task{
		id:          id,
		source:      req.Source,
		destination: req.Destination,
		req:         req,
		duration:    duration,
		status:      Running,
		removeToken: tok,
		reservation: res,
	}
	m.tasks[id] = t
	m.live = append(m.live, id)

	m.started.Publish(Started{
		ID:              id,
		Source:          req.Source,
		Destination:     req.Destination,
		Resource:        req.Resource,
		DurationSeconds: duration,
		Tag:             req.Tag,
	})

	if req.DurationSeconds <= 0 {
		m.complete(t)
	}
	return id
}

// Cancel rolls back a running transfer. Unknown or finished ids are
// ignored.
func (m *Manager) Cancel(id ID) {
	t, ok := m.tasks[id]
	if !ok || t.status != Running {
		return
	}

	t.source.CancelRemove(t.removeToken)
	t.destination.CancelAdd(t.reservation)
	t.status = Cancelled
	m.drop(id)
	m.finished.Publish(Finished{ID: id, Status: Cancelled})
}

// TryGet returns a snapshot of a running transfer.
func (m *Manager) TryGet(id ID) (TaskSnapshot, bool) {
	t, ok := m.tasks[id]
	if !ok {
		return TaskSnapshot{}, false
	}
	return TaskSnapshot{
		ID:              t.id,
		Source:          t.source,
		Destination:     t.destination,
		Resource:        t.req.Resource,
		DurationSeconds: t.duration,
		ElapsedSeconds:  t.elapsed,
		Progress:        t.progress,
		Status:          t.status,
		Tag:             t.req.Tag,
	}, true
}

// Tick advances every running transfer by dt seconds. Negative dt is
// treated as zero. Handlers may enqueue or cancel during the tick;
// transfers enqueued here first advance on the next Tick.
func (m *Manager) Tick(dt float64) {
	if dt < 0 {
		dt = 0
	}
	if len(m.live) == 0 {
		return
	}

	ids := make([]ID, len(m.live))
	copy(ids, m.live)

	for _, id := range ids {
		t, ok := m.tasks[id]
		if !ok || t.status != Running {
			continue
		}

		t.elapsed += dt
		p := t.elapsed / t.duration
		if p > 1 {
			p = 1
		}
		t.progress = p

		m.progress.Publish(Progress{ID: id, Progress: p})

		if p >= 1 {
			m.complete(t)
		}
	}
}

func (m *Manager) complete(t *task) {
	if t.status != Running {
		return
	}
	t.source.CommitRemove(t.removeToken)
	t.destination.CommitAdd(t.reservation)
	t.status = Completed
	t.progress = 1
	m.drop(t.id)
	m.finished.Publish(Finished{ID: t.id, Status: Completed})
}

// drop removes id from the live set.
func (m *Manager) drop(id ID) {
	delete(m.tasks, id)
	i := sort.Search(len(m.live), func(i int) bool { return m.live[i] >= id })
	if i < len(m.live) && m.live[i] == id {
		m.live = append(m.live[:i], m.live[i+1:]...)
	}
}
