package production

import (
	"github.com/gravitas-games/prodsim/internal/observe"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

// Transition is published whenever a building changes status.
type Transition struct {
	Building *Building
	From     Status
	To       Status
	Reason   StopReason
}

// FSM drives one building through its production cycle. Transfer
// outcomes are recorded as they are published; status changes happen
// only inside Tick.
type FSM struct {
	ctx         *cycle
	finished    *observe.Subscription
	transitions *observe.Stream[Transition]
}

// NewFSM starts b in Idle and subscribes to stream's Finished events
// until Close.
func NewFSM(b *Building, scheduler transfer.Scheduler, stream transfer.Stream) *FSM {
	f := &FSM{
		ctx:         newCycle(b, scheduler),
		transitions: observe.NewStream[Transition](),
	}
	f.enter(Idle)
	f.finished = stream.Finished().Subscribe(f.ctx.onFinished)
	return f
}

// Building returns the driven building.
func (f *FSM) Building() *Building { return f.ctx.b }

// Transitions returns the source of status changes.
func (f *FSM) Transitions() observe.Source[Transition] { return f.transitions }

// Close stops routing transfer outcomes to this FSM.
func (f *FSM) Close() {
	f.finished.Dispose()
}

// Tick runs the current state once. A building resuming from Stopped
// passes through Idle and evaluates it in the same tick.
func (f *FSM) Tick(dt float64) {
	from := f.ctx.b.status
	next, changed := f.step(dt)
	if !changed {
		return
	}
	f.transition(next)

	if from == Stopped && next == Idle {
		if next, changed = f.step(0); changed {
			f.transition(next)
		}
	}
}

func (f *FSM) step(dt float64) (Status, bool) {
	c := f.ctx
	b := c.b

	switch b.status {
	case Idle:
		if b.outputStorage.FreeSpace() <= 0 {
			b.stopReason = OutputFull
			return Stopped, true
		}
		if c.outputWaiting() {
			return PushOutput, true
		}
		if reason, ok := c.canStartCycle(); !ok {
			b.stopReason = reason
			return Stopped, true
		}
		if b.recipe.HasInputs() {
			return PullInputs, true
		}
		return Producing, true

	case PullInputs:
		if !c.pullScheduled {
			if !c.schedulePullInputs() {
				return Stopped, true
			}
			c.pullScheduled = true
		}
		switch {
		case c.pendingPull < 0:
			return Stopped, true
		case c.pendingPull > 0:
			return b.status, false
		}
		if !c.consumeInputs() {
			b.stopReason = TransferBlocked
			return Stopped, true
		}
		return Producing, true

	case Producing:
		t := b.recipe.ProductionTimeSeconds
		if t <= 0 {
			t = minProductionTime
		}
		c.produceTimer += dt
		p := c.produceTimer / t
		if p > 1 {
			p = 1
		}
		b.progress = p
		if p < 1 {
			return b.status, false
		}
		if !b.recipe.HasOutput() {
			return Idle, true
		}
		if !c.spawnOutput() {
			b.stopReason = OutputFull
			return Stopped, true
		}
		return PushOutput, true

	case PushOutput:
		if !c.pushScheduled {
			if !c.schedulePushOutput() {
				return Stopped, true
			}
			c.pushScheduled = true
		}
		switch {
		case c.pendingPush < 0:
			return Stopped, true
		case c.pendingPush == 0:
			return Idle, true
		}
		return b.status, false

	case Stopped:
		if c.canResume() {
			return Idle, true
		}
		return b.status, false
	}
	return b.status, false
}

func (f *FSM) transition(next Status) {
	b := f.ctx.b
	from := b.status
	if from == next {
		return
	}
	f.enter(next)
	f.transitions.Publish(Transition{Building: b, From: from, To: next, Reason: b.stopReason})
}

func (f *FSM) enter(s Status) {
	c := f.ctx
	b := c.b
	b.status = s

	switch s {
	case Idle:
		b.progress = 0
		b.stopReason = NoStop
		c.reset()
	case PullInputs:
		b.progress = 0
		c.pullScheduled = false
		c.pendingPull = 0
	case Producing:
		c.produceTimer = 0
		b.progress = 0
	case PushOutput:
		c.pushScheduled = false
		c.pendingPush = 0
	}
}
