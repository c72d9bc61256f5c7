package production

import (
	"fmt"
)

// System ticks building FSMs in registration order.
type System struct {
	fsms []*FSM
}

// NewSystem creates a system over fsms.
func NewSystem(fsms ...*FSM) *System {
	return &System{fsms: append([]*FSM(nil), fsms...)}
}

// Add appends an FSM; it is ticked after the existing ones.
func (s *System) Add(f *FSM) {
	s.fsms = append(s.fsms, f)
}

// Tick advances every FSM once.
func (s *System) Tick(dt float64) {
	for _, f := range s.fsms {
		f.Tick(dt)
	}
}

// FSMs returns the machines in tick order.
func (s *System) FSMs() []*FSM {
	return append([]*FSM(nil), s.fsms...)
}

// Buildings returns the driven buildings in tick order.
func (s *System) Buildings() []*Building {
	out := make([]*Building, 0, len(s.fsms))
	for _, f := range s.fsms {
		out = append(out, f.Building())
	}
	return out
}

// Close detaches every FSM from the scheduler.
func (s *System) Close() {
	for _, f := range s.fsms {
		f.Close()
	}
}

// StatusLine is a one-line description of a building for HUDs and logs.
type StatusLine struct {
	Building BuildingID `json:"building"`
	Text     string     `json:"text"`
}

// StatusLines describes each building's phase.
func StatusLines(buildings []*Building) []StatusLine {
	lines := make([]StatusLine, 0, len(buildings))
	for _, b := range buildings {
		lines = append(lines, StatusLine{Building: b.ID(), Text: statusText(b)})
	}
	return lines
}

func statusText(b *Building) string {
	switch b.Status() {
	case Producing:
		return fmt.Sprintf("%s %s: Producing %.0f%%", b.Name(), b.Recipe().Name, b.ProductionProgress()*100)
	case Stopped:
		return fmt.Sprintf("%s %s: Stopped (%s)", b.Name(), b.Recipe().Name, b.StopReason())
	default:
		return fmt.Sprintf("%s %s: %s", b.Name(), b.Recipe().Name, b.Status())
	}
}
