package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/player"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/sim"
)

func newWorld(t *testing.T) *sim.World {
	t.Helper()
	w, err := sim.NewWorld(config.Default().Simulation)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	return w
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector()

	require.NoError(t, c.Register(reg))
	assert.Error(t, c.Register(reg))
}

func TestCollectorCountsWorldEvents(t *testing.T) {
	w := newWorld(t)
	c := NewCollector()
	require.NoError(t, c.Register(prometheus.NewRegistry()))
	c.Attach(w)
	defer c.Close()

	for i := 0; i < 200; i++ {
		start := time.Now()
		w.Tick(0.05)
		c.ObserveTick(time.Since(start))
	}
	c.Sample(w)

	assert.Positive(t, testutil.ToFloat64(c.transfersStarted.WithLabelValues("building")))
	assert.Positive(t, testutil.ToFloat64(c.transfersFinished.WithLabelValues("Completed")))
	assert.Positive(t, testutil.ToFloat64(c.buildingTransitions.WithLabelValues("B1", "Producing")))
	assert.Equal(t, 200.0, testutil.ToFloat64(c.ticks))
	assert.Equal(t, float64(w.Scheduler().Len()), testutil.ToFloat64(c.transfersLive))

	b1, err := w.Building(1)
	require.NoError(t, err)
	assert.Equal(t, float64(b1.OutputStorage().Total()), testutil.ToFloat64(c.containerUnits.WithLabelValues("B1.output")))
}

func TestCollectorCountsStops(t *testing.T) {
	cfg := config.Default().Simulation
	cfg.Buildings[1].InitialInputs = nil // B2 has nothing to pull

	w, err := sim.NewWorld(cfg)
	require.NoError(t, err)
	defer w.Close()

	c := NewCollector()
	c.Attach(w)
	defer c.Close()

	w.Tick(0.05)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.buildingStops.WithLabelValues("B2", "NoInput")))
}

func TestCloseDetaches(t *testing.T) {
	w := newWorld(t)
	c := NewCollector()
	c.Attach(w)
	c.Close()

	for i := 0; i < 20; i++ {
		w.Tick(0.05)
	}
	assert.Zero(t, testutil.ToFloat64(c.transfersStarted.WithLabelValues("building")))
}

func TestOrigin(t *testing.T) {
	assert.Equal(t, "building", origin(production.BuildingID(3)))
	assert.Equal(t, "player", origin(player.Tag))
	assert.Equal(t, "other", origin("crane"))
	assert.Equal(t, "other", origin(nil))
}
