package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all prodsim configuration
type Config struct {
	Server     ServerConfig   `yaml:"server"`
	JWT        JWTConfig      `yaml:"jwt"`
	Redis      RedisConfig    `yaml:"redis"`
	Observer   ObserverConfig `yaml:"observer"`
	Metrics    MetricsConfig  `yaml:"metrics"`
	Journal    JournalConfig  `yaml:"journal"`
	Debug      DebugConfig    `yaml:"debug"`
	Simulation Simulation     `yaml:"simulation"`
}

// ServerConfig holds server-specific settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	TickRate int    `yaml:"tick_rate" validate:"gte=1,lte=1000"` // Hz
}

// JWTConfig holds observer authentication settings. Observers connect
// anonymously when PublicKeyURL is empty.
type JWTConfig struct {
	Issuer              string `yaml:"issuer"`
	PublicKeyURL        string `yaml:"public_key_url" validate:"omitempty,url"`
	PublicKeyRefreshHrs int    `yaml:"public_key_refresh_hours" validate:"gte=1"`
}

// RedisConfig holds Redis connection settings for the token blacklist.
// Redis is not used when Address is empty.
type RedisConfig struct {
	Address         string `yaml:"address"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db" validate:"gte=0"`
	BlacklistPrefix string `yaml:"blacklist_prefix"`
}

// ObserverConfig holds per-connection feed settings
type ObserverConfig struct {
	ProgressRate  float64 `yaml:"progress_rate" validate:"gt=0"` // progress messages per second
	ProgressBurst int     `yaml:"progress_burst" validate:"gte=1"`
	SendBuffer    int     `yaml:"send_buffer" validate:"gte=1"`
}

// MetricsConfig holds Prometheus settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path" validate:"required_if=Enabled true"`
}

// JournalConfig holds SQLite journal settings
type JournalConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path" validate:"required_if=Enabled true"`
	QueueSize int    `yaml:"queue_size" validate:"gte=1"`
}

// DebugConfig selects what the debug logger prints
type DebugConfig struct {
	Enabled              bool    `yaml:"enabled"`
	LogTransferStarted   bool    `yaml:"log_transfer_started"`
	LogTransferFinished  bool    `yaml:"log_transfer_finished"`
	LogTransferProgress  bool    `yaml:"log_transfer_progress"`
	TransferProgressStep float64 `yaml:"transfer_progress_step" validate:"gt=0,lte=1"`
	LogContainerChanged  bool    `yaml:"log_container_changed"`
	LogBuildingStates    bool    `yaml:"log_building_states"`
	LogBuildingProgress  bool    `yaml:"log_building_progress"`
	BuildingProgressStep float64 `yaml:"building_progress_step" validate:"gt=0,lte=1"`
	Prefix               string  `yaml:"prefix"`
}

// Simulation describes the composed world: catalog, recipes, buildings
// and the player. Cross references are by resource key and recipe name.
type Simulation struct {
	Resources []ResourceConfig `yaml:"resources" validate:"required,min=1,dive"`
	Recipes   []RecipeConfig   `yaml:"recipes" validate:"dive"`
	Buildings []BuildingConfig `yaml:"buildings" validate:"dive"`
	Player    PlayerConfig     `yaml:"player"`
}

// ResourceConfig is one catalog entry
type ResourceConfig struct {
	ID         int    `yaml:"id" validate:"gte=1"`
	Key        string `yaml:"key" validate:"required"`
	Name       string `yaml:"name"`
	StackLimit int    `yaml:"stack_limit" validate:"gte=0"`
}

// RecipeConfig defines a recipe. An empty Output produces nothing.
type RecipeConfig struct {
	Name              string        `yaml:"name" validate:"required"`
	Output            string        `yaml:"output"`
	ProductionSeconds float64       `yaml:"production_seconds" validate:"gte=0"`
	Inputs            []InputConfig `yaml:"inputs" validate:"dive"`
}

// InputConfig is one recipe input. Amount 0 admits the resource without
// consuming it.
type InputConfig struct {
	Resource string `yaml:"resource" validate:"required"`
	Amount   int    `yaml:"amount" validate:"gte=0"`
}

// StackConfig is an initial amount of a resource
type StackConfig struct {
	Resource string `yaml:"resource" validate:"required"`
	Amount   int    `yaml:"amount" validate:"gte=1"`
}

// BuildingConfig places a building. Passive buildings only store what is
// dropped into them and run no production cycle.
type BuildingConfig struct {
	ID                   int           `yaml:"id" validate:"gte=1"`
	Name                 string        `yaml:"name"`
	Recipe               string        `yaml:"recipe" validate:"required"`
	InputCapacity        int           `yaml:"input_capacity" validate:"gte=0"`
	OutputCapacity       int           `yaml:"output_capacity" validate:"gte=0"`
	InputSecondsPerUnit  float64       `yaml:"input_seconds_per_unit" validate:"gte=0"`
	OutputSecondsPerUnit float64       `yaml:"output_seconds_per_unit" validate:"gte=0"`
	Passive              bool          `yaml:"passive"`
	InitialInputs        []StackConfig `yaml:"initial_inputs" validate:"dive"`
}

// PlayerConfig holds the player's inventory settings
type PlayerConfig struct {
	InventoryCapacity    int           `yaml:"inventory_capacity" validate:"gte=0"`
	PickupSecondsPerUnit float64       `yaml:"pickup_seconds_per_unit" validate:"gte=0"`
	DropSecondsPerUnit   float64       `yaml:"drop_seconds_per_unit" validate:"gte=0"`
	InitialInventory     []StackConfig `yaml:"initial_inventory" validate:"dive"`
}

// Load reads configuration from a YAML file. Sections missing from the
// file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over Default, fills zero values and validates.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.SetDefaults()

	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values that have a sensible default
func (c *Config) SetDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.TickRate == 0 {
		c.Server.TickRate = 20
	}
	if c.JWT.PublicKeyRefreshHrs == 0 {
		c.JWT.PublicKeyRefreshHrs = 24
	}
	if c.Redis.BlacklistPrefix == "" {
		c.Redis.BlacklistPrefix = "jwt:blacklist:"
	}
	if c.Observer.ProgressRate == 0 {
		c.Observer.ProgressRate = 10
	}
	if c.Observer.ProgressBurst == 0 {
		c.Observer.ProgressBurst = 20
	}
	if c.Observer.SendBuffer == 0 {
		c.Observer.SendBuffer = 256
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Journal.QueueSize == 0 {
		c.Journal.QueueSize = 1024
	}
	if c.Debug.TransferProgressStep == 0 {
		c.Debug.TransferProgressStep = 0.25
	}
	if c.Debug.BuildingProgressStep == 0 {
		c.Debug.BuildingProgressStep = 0.25
	}
	if c.Debug.Prefix == "" {
		c.Debug.Prefix = "[debug] "
	}
}

// TickSeconds is the simulation step for the configured tick rate.
func (s ServerConfig) TickSeconds() float64 {
	if s.TickRate <= 0 {
		return 0
	}
	return 1 / float64(s.TickRate)
}
