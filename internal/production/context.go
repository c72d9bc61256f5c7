package production

import (
	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/storage"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

type transferRole uint8

const (
	rolePull transferRole = iota
	rolePush
)

// failedPending marks a pending counter whose transfer failed. The state
// tick observes it on its next pass.
const failedPending = -999

// minProductionTime floors non-positive recipe durations.
const minProductionTime = 1e-4

// cycle is the per-building runtime state of one production cycle.
type cycle struct {
	b         *Building
	scheduler transfer.Scheduler

	produceTimer  float64
	pendingPull   int
	pendingPush   int
	pullScheduled bool
	pushScheduled bool

	routes map[transfer.ID]transferRole

	// Finished events published while this cycle is inside Enqueue,
	// before the new id is known.
	enqueuing bool
	early     []transfer.Finished
}

func newCycle(b *Building, scheduler transfer.Scheduler) *cycle {
	return &cycle{
		b:         b,
		scheduler: scheduler,
		routes:    make(map[transfer.ID]transferRole),
	}
}

// reset clears cycle runtime. Transfers still in flight from an aborted
// cycle are no longer routed; their units land in the ports and are
// picked up by the next cycle.
func (c *cycle) reset() {
	c.produceTimer = 0
	c.pendingPull = 0
	c.pendingPush = 0
	c.pullScheduled = false
	c.pushScheduled = false
	clear(c.routes)
}

// shortfall is how many units of id the in-port still needs this cycle.
func (c *cycle) shortfall(id catalog.ResourceID, amount int) int {
	need := amount - c.b.inPort.Count(id)
	if need < 0 {
		return 0
	}
	return need
}

func (c *cycle) hasAllInputs() bool {
	ok := true
	c.b.recipe.ForEachInput(func(id catalog.ResourceID, amount int) {
		if amount <= 0 {
			return
		}
		if c.b.inputStorage.Count(id) < c.shortfall(id, amount) {
			ok = false
		}
	})
	return ok
}

func (c *cycle) canStartCycle() (StopReason, bool) {
	if c.b.outputStorage.FreeSpace() <= 0 {
		return OutputFull, false
	}
	if !c.hasAllInputs() {
		return NoInput, false
	}
	return NoStop, true
}

// outputWaiting reports a produced unit left in the out-port by a cycle
// whose push could not be scheduled.
func (c *cycle) outputWaiting() bool {
	return c.b.recipe.HasOutput() && c.b.outPort.Count(c.b.recipe.Output) > 0
}

func (c *cycle) canResume() bool {
	if _, ok := c.canStartCycle(); ok {
		return true
	}
	return c.outputWaiting() && c.b.outputStorage.FreeSpace() > 0
}

// schedulePullInputs enqueues one transfer per missing input unit. It
// returns false with the stop reason set when the inputs vanished or a
// pull failed on enqueue; remaining pulls are then not attempted.
func (c *cycle) schedulePullInputs() bool {
	if !c.hasAllInputs() {
		c.b.stopReason = NoInput
		return false
	}

	c.pendingPull = 0
	for _, in := range c.b.recipe.Inputs {
		for i := c.shortfall(in.Resource, in.Amount); i > 0; i-- {
			c.enqueue(transfer.Request{
				Source:          c.b.inputStorage,
				Destination:     c.b.inPort,
				Resource:        in.Resource,
				DurationSeconds: c.b.inputSecondsPerUnit,
				Tag:             c.b.id,
			}, rolePull)
			if c.pendingPull < 0 {
				return false
			}
		}
	}
	return true
}

func (c *cycle) consumeInputs() bool {
	ok := true
	c.b.recipe.ForEachInput(func(id catalog.ResourceID, amount int) {
		if !storage.TryConsume(c.b.inPort, id, amount) {
			ok = false
		}
	})
	return ok
}

func (c *cycle) spawnOutput() bool {
	return storage.TryAddInstant(c.b.outPort, c.b.recipe.Output)
}

func (c *cycle) schedulePushOutput() bool {
	if c.b.outputStorage.FreeSpace() <= 0 {
		c.b.stopReason = OutputFull
		return false
	}
	if c.b.outPort.Count(c.b.recipe.Output) <= 0 {
		c.b.stopReason = TransferBlocked
		return false
	}

	c.enqueue(transfer.Request{
		Source:          c.b.outPort,
		Destination:     c.b.outputStorage,
		Resource:        c.b.recipe.Output,
		DurationSeconds: c.b.outputSecondsPerUnit,
		Tag:             c.b.id,
	}, rolePush)
	return true
}

// enqueue submits req and routes its outcome. Outcomes published inside
// Enqueue (instant completion or failure) are applied before returning.
func (c *cycle) enqueue(req transfer.Request, role transferRole) {
	c.enqueuing = true
	c.early = c.early[:0]
	id := c.scheduler.Enqueue(req)
	c.enqueuing = false

	c.routes[id] = role
	if role == rolePull {
		c.pendingPull++
	} else {
		c.pendingPush++
	}

	for _, e := range c.early {
		if e.ID == id {
			c.onFinished(e)
		}
	}
	c.early = c.early[:0]
}

func (c *cycle) onFinished(e transfer.Finished) {
	role, ok := c.routes[e.ID]
	if !ok {
		if c.enqueuing {
			c.early = append(c.early, e)
		}
		return
	}
	delete(c.routes, e.ID)

	if role == rolePull && c.pendingPull > 0 {
		c.pendingPull--
	} else if role == rolePush && c.pendingPush > 0 {
		c.pendingPush--
	}

	if e.Status != transfer.Failed {
		return
	}

	if c.b.outputStorage.FreeSpace() <= 0 {
		c.b.stopReason = OutputFull
	} else {
		c.b.stopReason = TransferBlocked
	}
	if role == rolePull {
		c.pendingPull = failedPending
	} else {
		c.pendingPush = failedPending
	}
}
