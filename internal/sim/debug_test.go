package sim

import (
	"bytes"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gravitas-games/prodsim/internal/catalog"
	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/storage"
)

func TestDebugTracesWorld(t *testing.T) {
	w := newDefaultWorld(t)
	cfg := config.Default().Debug
	cfg.LogBuildingProgress = true

	var buf bytes.Buffer
	d := NewDebug(w, cfg, log.New(&buf, "", 0))
	defer d.Close()

	for i := 0; i < 100; i++ {
		w.Tick(step)
		d.Tick()
	}

	out := buf.String()
	assert.Contains(t, out, "] START N1(n1) B2.input -> B2.inPort dur=0.25 tag=B2")
	assert.Contains(t, out, "FINISH status=Completed")
	assert.Contains(t, out, "B1(r1) state => PullInputs stop=None")
	assert.Contains(t, out, "B1(r1) producing")
	assert.Contains(t, out, "B2.inPort total=")
	assert.NotContains(t, out, "PROGRESS", "progress logging is off by default")
}

func TestDebugCloseStopsLogging(t *testing.T) {
	w := newDefaultWorld(t)

	var buf bytes.Buffer
	d := NewDebug(w, config.Default().Debug, log.New(&buf, "", 0))
	d.Close()

	for i := 0; i < 5; i++ {
		w.Tick(step)
	}
	assert.NotContains(t, buf.String(), "START")
}

func TestDebugProgressIsStepped(t *testing.T) {
	w := newDefaultWorld(t)
	cfg := config.Default().Debug
	cfg.LogTransferProgress = true
	cfg.TransferProgressStep = 0.5

	var buf bytes.Buffer
	d := NewDebug(w, cfg, log.New(&buf, "", 0))
	defer d.Close()

	// first pull of B2 runs 0.25s: five ticks of 0.05
	for i := 0; i < 6; i++ {
		w.Tick(step)
	}

	assert.Contains(t, buf.String(), "[T#1] PROGRESS 20%")
	assert.Contains(t, buf.String(), "[T#1] PROGRESS 60%")
	assert.NotContains(t, buf.String(), "[T#1] PROGRESS 40%")
}

func TestDumpContainer(t *testing.T) {
	cat := catalog.MustNew(
		catalog.ResourceDef{ID: 1, Key: "ore", Name: "Ore"},
		catalog.ResourceDef{ID: 2, Key: "ingot", Name: "Ingot"},
	)
	c := storage.NewModel("Smelter.input", cat, 5)
	require.True(t, storage.TryAddInstant(c, 1))
	require.True(t, storage.TryAddInstant(c, 1))
	require.True(t, storage.TryAddInstant(c, 2))

	assert.Equal(t, "Smelter.input total=3 free=2 cap=5 [Ore(ore)=2, Ingot(ingot)=1]", DumpContainer(c, cat))
}

func TestStepOf(t *testing.T) {
	tests := []struct {
		p, step float64
		want    int
	}{
		{0, 0.25, 0},
		{0.24, 0.25, 0},
		{0.25, 0.25, 1},
		{0.99, 0.25, 3},
		{1, 0.25, 4},
		{1.5, 0.25, 4},
		{-1, 0.25, 0},
		{0.5, 0, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, stepOf(tt.p, tt.step), "p=%v step=%v", tt.p, tt.step)
	}
}
