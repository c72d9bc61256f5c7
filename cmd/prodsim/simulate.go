package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/gravitas-games/prodsim/internal/config"
	"github.com/gravitas-games/prodsim/internal/journal"
	"github.com/gravitas-games/prodsim/internal/production"
	"github.com/gravitas-games/prodsim/internal/sim"
)

type simulateOptions struct {
	Ticks   int
	DT      float64
	Every   int
	Debug   bool
	Journal string
	JSON    bool
}

func newSimulateCommand(load func() (*config.Config, error)) *cobra.Command {
	var opts simulateOptions

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run the simulation headless for a number of ticks",
		Long: `Runs the world without a server and prints building status lines.

Examples:
  prodsim simulate --ticks 400
  prodsim simulate --ticks 200 --dt 0.1 --every 10 --debug
  prodsim simulate --ticks 1000 --journal ./data/run.db --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return simulate(cfg, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.Ticks, "ticks", "n", 200, "number of ticks to run")
	cmd.Flags().Float64Var(&opts.DT, "dt", 0, "seconds per tick (default 1/server.tick_rate)")
	cmd.Flags().IntVar(&opts.Every, "every", 0, "print status lines every N ticks (0 prints only at the end)")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "enable the debug trace regardless of config")
	cmd.Flags().StringVar(&opts.Journal, "journal", "", "write a SQLite journal to this path")
	cmd.Flags().BoolVar(&opts.JSON, "json", false, "print the final snapshot as JSON")
	return cmd
}

func simulate(cfg *config.Config, opts simulateOptions, out io.Writer) error {
	if opts.Ticks < 0 {
		return fmt.Errorf("ticks must not be negative, got %d", opts.Ticks)
	}
	dt := opts.DT
	if dt <= 0 {
		dt = cfg.Server.TickSeconds()
	}

	world, err := sim.NewWorld(cfg.Simulation)
	if err != nil {
		return fmt.Errorf("failed to build world: %w", err)
	}
	defer world.Close()

	var debug *sim.Debug
	if opts.Debug || cfg.Debug.Enabled {
		debug = sim.NewDebug(world, cfg.Debug, log.New(out, cfg.Debug.Prefix, 0))
		defer debug.Close()
	}

	if path := opts.Journal; path != "" || cfg.Journal.Enabled {
		if path == "" {
			path = cfg.Journal.Path
		}
		j, err := journal.Open(path, cfg.Journal.QueueSize, log.New(log.Writer(), "[journal] ", log.LstdFlags))
		if err != nil {
			return err
		}
		j.Attach(world)
		defer func() {
			if err := j.Close(); err != nil {
				log.Printf("Journal close error: %v", err)
			}
			st := j.Stats()
			log.Printf("Journal: %d written, %d dropped, %d failed", st.Written, st.Dropped, st.Failed)
		}()
	}

	for i := 1; i <= opts.Ticks; i++ {
		world.Tick(dt)
		if debug != nil {
			debug.Tick()
		}
		if opts.Every > 0 && i%opts.Every == 0 {
			printStatus(out, world)
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(world.Snapshot())
	}
	printStatus(out, world)
	return nil
}

func printStatus(out io.Writer, w *sim.World) {
	fmt.Fprintf(out, "t=%.2fs tick=%d transfers=%d\n", w.Elapsed(), w.Ticks(), w.Scheduler().Len())
	for _, line := range production.StatusLines(w.Buildings()) {
		fmt.Fprintf(out, "  %s\n", line.Text)
	}
}
