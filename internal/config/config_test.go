package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, 20, cfg.Server.TickRate)
	assert.InDelta(t, 0.05, cfg.Server.TickSeconds(), 1e-12)
	assert.Len(t, cfg.Simulation.Resources, 3)
	assert.Len(t, cfg.Simulation.Recipes, 4)
	require.Len(t, cfg.Simulation.Buildings, 4)
	assert.True(t, cfg.Simulation.Buildings[3].Passive)
	assert.Equal(t, 10, cfg.Simulation.Player.InventoryCapacity)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prodsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
journal:
  enabled: true
  path: /tmp/journal.db
simulation:
  resources:
    - {id: 1, key: log}
    - {id: 2, key: plank}
  recipes:
    - name: saw
      output: plank
      production_seconds: 1.5
      inputs:
        - {resource: log, amount: 2}
  buildings:
    - id: 1
      recipe: saw
      input_capacity: 10
      output_capacity: 10
      initial_inputs:
        - {resource: log, amount: 4}
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 20, cfg.Server.TickRate, "untouched fields keep defaults")
	assert.Equal(t, 1024, cfg.Journal.QueueSize)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	require.Len(t, cfg.Simulation.Resources, 2)
	assert.Equal(t, "plank", cfg.Simulation.Resources[1].Key)
	require.Len(t, cfg.Simulation.Buildings, 1)
	assert.Equal(t, "saw", cfg.Simulation.Buildings[0].Recipe)
	assert.Equal(t, 10, cfg.Simulation.Player.InventoryCapacity, "player section not overridden")
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "negative capacity",
			yaml: "simulation:\n  buildings:\n    - {id: 1, recipe: r1, output_capacity: -1}\n",
		},
		{
			name: "journal without path",
			yaml: "journal:\n  enabled: true\n",
		},
		{
			name: "tick rate too high",
			yaml: "server:\n  tick_rate: 5000\n",
		},
		{
			name: "resource without key",
			yaml: "simulation:\n  resources:\n    - {id: 1}\n",
		},
		{
			name: "malformed yaml",
			yaml: "server: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidationErrorNamesField(t *testing.T) {
	cfg := Default()
	cfg.Observer.SendBuffer = -1

	err := ValidateConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Config.Observer.SendBuffer")
	assert.Contains(t, err.Error(), "gte")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSampleConfigMatchesDefault(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "prodsim.yaml"))
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Simulation, cfg.Simulation)
	assert.Equal(t, def.Server, cfg.Server)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Journal.Enabled)
}
