package production

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/storage"
	"github.com/gravitas-games/prodsim/internal/transfer"
)

func TestBuildingFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeBuildingScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run building feature tests")
	}
}

// buildingScenario holds state for one building cycle scenario. The
// building is created lazily on the first step that needs it so that
// capacity steps can follow the recipe step.
type buildingScenario struct {
	catalog        *catalog.Catalog
	secondsPerUnit float64
	recipe         Recipe
	inputCapacity  int
	outputCapacity int
	preload        []func(b *Building) error

	scheduler   *transfer.Manager
	building    *Building
	fsm         *FSM
	transitions []Transition
	started     []transfer.Started
}

func (s *buildingScenario) reset() {
	*s = buildingScenario{inputCapacity: 20, outputCapacity: 20}
}

func (s *buildingScenario) resource(key string) (catalog.ResourceID, error) {
	def, ok := s.catalog.ByKey(key)
	if !ok {
		return 0, fmt.Errorf("unknown resource %q", key)
	}
	return def.ID, nil
}

func (s *buildingScenario) ensureBuilding() error {
	if s.fsm != nil {
		return nil
	}
	s.scheduler = transfer.NewManager()
	s.scheduler.Started().Subscribe(func(e transfer.Started) { s.started = append(s.started, e) })

	s.building = NewBuilding(s.catalog, BuildingSpec{
		ID:                   1,
		Recipe:               s.recipe,
		InputCapacity:        s.inputCapacity,
		OutputCapacity:       s.outputCapacity,
		InputSecondsPerUnit:  s.secondsPerUnit,
		OutputSecondsPerUnit: s.secondsPerUnit,
	})
	for _, load := range s.preload {
		if err := load(s.building); err != nil {
			return err
		}
	}
	s.fsm = NewFSM(s.building, s.scheduler, s.scheduler)
	s.fsm.Transitions().Subscribe(func(tr Transition) { s.transitions = append(s.transitions, tr) })
	return nil
}

func (s *buildingScenario) resources(a, b, c string) error {
	var err error
	s.catalog, err = catalog.New(
		catalog.ResourceDef{ID: 1, Key: a},
		catalog.ResourceDef{ID: 2, Key: b},
		catalog.ResourceDef{ID: 3, Key: c},
	)
	return err
}

func (s *buildingScenario) transfersTake(seconds float64) error {
	s.secondsPerUnit = seconds
	return nil
}

func (s *buildingScenario) producingWithNoInputs(output string, seconds float64) error {
	out, err := s.resource(output)
	if err != nil {
		return err
	}
	s.recipe, err = NewRecipe("test", out, seconds)
	return err
}

func (s *buildingScenario) producingFrom(output string, seconds float64, amount int, input string) error {
	out, err := s.resource(output)
	if err != nil {
		return err
	}
	in, err := s.resource(input)
	if err != nil {
		return err
	}
	s.recipe, err = NewRecipe("test", out, seconds, Bundle{Resource: in, Amount: amount})
	return err
}

func (s *buildingScenario) producingFromTwo(output string, seconds float64, amountA int, inputA string, amountB int, inputB string) error {
	out, err := s.resource(output)
	if err != nil {
		return err
	}
	a, err := s.resource(inputA)
	if err != nil {
		return err
	}
	b, err := s.resource(inputB)
	if err != nil {
		return err
	}
	s.recipe, err = NewRecipe("test", out, seconds,
		Bundle{Resource: a, Amount: amountA},
		Bundle{Resource: b, Amount: amountB},
	)
	return err
}

func (s *buildingScenario) outputCapacityIs(capacity int) error {
	s.outputCapacity = capacity
	return nil
}

func (s *buildingScenario) preloadInto(role string) func(n int, key string) error {
	return func(n int, key string) error {
		id, err := s.resource(key)
		if err != nil {
			return err
		}
		s.preload = append(s.preload, func(b *Building) error {
			c := b.InputStorage()
			if role == "output" {
				c = b.OutputStorage()
			}
			for i := 0; i < n; i++ {
				if !storage.TryAddInstant(c, id) {
					return fmt.Errorf("%s storage rejected %s", role, key)
				}
			}
			return nil
		})
		return nil
	}
}

func (s *buildingScenario) simulationRuns(ticks int, dt float64) error {
	if err := s.ensureBuilding(); err != nil {
		return err
	}
	for i := 0; i < ticks; i++ {
		s.scheduler.Tick(dt)
		s.fsm.Tick(dt)
	}
	return nil
}

func (s *buildingScenario) addToInput(n int, key string) error {
	if err := s.ensureBuilding(); err != nil {
		return err
	}
	id, err := s.resource(key)
	if err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		if !storage.TryAddInstant(s.building.InputStorage(), id) {
			return fmt.Errorf("input storage rejected %s", key)
		}
	}
	return nil
}

func (s *buildingScenario) statusIs(want string) error {
	if got := s.building.Status().String(); got != want {
		return fmt.Errorf("expected status %s, got %s", want, got)
	}
	return nil
}

func (s *buildingScenario) stopReasonIs(want string) error {
	if got := s.building.StopReason().String(); got != want {
		return fmt.Errorf("expected stop reason %s, got %s", want, got)
	}
	return nil
}

func (s *buildingScenario) wentThrough(path string) error {
	want := strings.Split(path, ", ")
	if len(s.transitions) < len(want) {
		return fmt.Errorf("expected at least %d transitions, got %d", len(want), len(s.transitions))
	}
	for i, w := range want {
		tr := s.transitions[i]
		if got := tr.From.String() + ">" + tr.To.String(); got != w {
			return fmt.Errorf("transition %d: expected %s, got %s", i, w, got)
		}
	}
	return nil
}

func (s *buildingScenario) neverEntered(status string) error {
	for _, tr := range s.transitions {
		if tr.To.String() == status {
			return fmt.Errorf("building entered %s", status)
		}
	}
	return nil
}

func (s *buildingScenario) holds(role string) func(n int, key string) error {
	return func(n int, key string) error {
		id, err := s.resource(key)
		if err != nil {
			return err
		}
		c := s.building.InputStorage()
		if role == "output" {
			c = s.building.OutputStorage()
		}
		if got := c.Count(id); got != n {
			return fmt.Errorf("expected %s storage to hold %d %s, got %d", role, n, key, got)
		}
		return nil
	}
}

func (s *buildingScenario) noTransferOf(key string) error {
	id, err := s.resource(key)
	if err != nil {
		return err
	}
	for _, e := range s.started {
		if e.Resource == id {
			return fmt.Errorf("transfer %d moved %s", e.ID, key)
		}
	}
	return nil
}

func (s *buildingScenario) transfersStarted(n int) error {
	if len(s.started) != n {
		return fmt.Errorf("expected %d transfers, got %d", n, len(s.started))
	}
	return nil
}

func (s *buildingScenario) inPortEmpty() error {
	if total := s.building.InPort().Total(); total != 0 {
		return fmt.Errorf("expected empty in-port, got %d units", total)
	}
	return nil
}

// InitializeBuildingScenario registers the building cycle steps.
func InitializeBuildingScenario(ctx *godog.ScenarioContext) {
	s := &buildingScenario{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		s.reset()
		return ctx, nil
	})
	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if s.fsm != nil {
			s.fsm.Close()
		}
		return ctx, nil
	})

	ctx.Step(`^resources "([^"]*)", "([^"]*)" and "([^"]*)"$`, s.resources)
	ctx.Step(`^transfers take ([\d.]+) seconds per unit$`, s.transfersTake)
	ctx.Step(`^a building producing "([^"]*)" in ([\d.]+) seconds with no inputs$`, s.producingWithNoInputs)
	ctx.Step(`^a building producing "([^"]*)" in ([\d.]+) seconds from (\d+) "([^"]*)"$`, s.producingFrom)
	ctx.Step(`^a building producing "([^"]*)" in ([\d.]+) seconds from (\d+) "([^"]*)" and (\d+) "([^"]*)"$`, s.producingFromTwo)
	ctx.Step(`^the output storage has capacity (\d+)$`, s.outputCapacityIs)
	ctx.Step(`^the input storage holds (\d+) "([^"]*)"$`, func(n int, key string) error {
		if s.fsm == nil {
			return s.preloadInto("input")(n, key)
		}
		return s.holds("input")(n, key)
	})
	ctx.Step(`^the output storage holds (\d+) "([^"]*)" already$`, s.preloadInto("output"))
	ctx.Step(`^the output storage holds (\d+) "([^"]*)"$`, s.holds("output"))

	ctx.Step(`^the simulation runs (\d+) ticks? of ([\d.]+) seconds$`, s.simulationRuns)
	ctx.Step(`^(\d+) "([^"]*)" is added to the input storage$`, s.addToInput)

	ctx.Step(`^the building status is "([^"]*)"$`, s.statusIs)
	ctx.Step(`^the stop reason is "([^"]*)"$`, s.stopReasonIs)
	ctx.Step(`^the building went through "([^"]*)"$`, s.wentThrough)
	ctx.Step(`^the building never entered "([^"]*)"$`, s.neverEntered)
	ctx.Step(`^no transfer of "([^"]*)" was started$`, s.noTransferOf)
	ctx.Step(`^(\d+) transfers were started$`, s.transfersStarted)
	ctx.Step(`^the in-port is empty$`, s.inPortEmpty)
}
