package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/gravitas-games/prodsim/internal/config"
)

const defaultConfigPath = "./configs/prodsim.yaml"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "prodsim",
		Short: "Production chain simulation",
		Long: `Simulates buildings that pull inputs, produce and push outputs through
timed transfers, with a player carrying resources between storages.

Configuration is read from --config, then CONFIG_PATH, then
./configs/prodsim.yaml. The built-in composition is used when no file exists.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
		},
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML configuration")

	load := func() (*config.Config, error) {
		return loadConfig(configPath)
	}
	root.AddCommand(newServeCommand(load))
	root.AddCommand(newSimulateCommand(load))

	return root
}

// loadConfig resolves the configuration file. An explicitly named file
// must exist; the default location falls back to config.Default.
func loadConfig(flagPath string) (*config.Config, error) {
	path := flagPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	explicit := path != ""
	if !explicit {
		path = defaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		log.Printf("No configuration at %s, using built-in defaults", path)
		return config.Default(), nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	log.Printf("Configuration loaded from %s", path)
	return cfg, nil
}
