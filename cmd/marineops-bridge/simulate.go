package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"marineops-bridge/internal/admin"
	"marineops-bridge/internal/config"
	"marineops-bridge/internal/logging"
	"marineops-bridge/internal/scenario"
	"marineops-bridge/internal/sim"
)

var (
	simAddr      string
	simScenario  string
	simTick      time.Duration
	simTimeScale float64
	simAdminAddr string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated vehicles against a bridge",
	Long: "simulate connects the configured vehicles to a running bridge and moves them " +
		"according to the instructions they receive, ending episodes by scenario rules.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg.Simulation
		if simAddr != "" {
			c.Addr = simAddr
		}
		if simScenario != "" {
			c.Scenario = simScenario
		}
		if simTick > 0 {
			c.Tick = simTick
		}
		if simTimeScale > 0 {
			c.TimeScale = simTimeScale
		}
		return simulate(cmd.Context(), c, simAdminAddr, logger)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simAddr, "addr", "", "Bridge address to dial (overrides config)")
	simulateCmd.Flags().StringVar(&simScenario, "scenario", "", "Built-in scenario name or scenario YAML path")
	simulateCmd.Flags().DurationVar(&simTick, "tick", 0, "Vehicle update interval (e.g. 100ms)")
	simulateCmd.Flags().Float64Var(&simTimeScale, "time-scale", 0, "Vehicle time per wall-clock second")
	simulateCmd.Flags().StringVar(&simAdminAddr, "admin", "", "Serve fleet status on this address")
}

func simConfig(c config.Simulation) (sim.Config, error) {
	sc, err := scenario.Resolve(c.Scenario)
	if err != nil {
		return sim.Config{}, err
	}
	vehicles := make([]sim.VehicleConfig, len(c.Vehicles))
	for i, v := range c.Vehicles {
		vehicles[i] = sim.VehicleConfig{
			ID:        v.ID,
			Start:     scenario.Pose{X: v.Start.X, Y: v.Start.Y, Heading: v.Start.Heading},
			AutoStart: v.AutoStart,
		}
	}
	return sim.Config{
		Addr:        c.Addr,
		Tick:        c.Tick,
		TimeScale:   c.TimeScale,
		SensorNoise: c.SensorNoise,
		Seed:        c.Seed,
		Vehicles:    vehicles,
		Scenario:    sc,
	}, nil
}

func simulate(ctx context.Context, c config.Simulation, adminAddr string, log zerolog.Logger) error {
	sc, err := simConfig(c)
	if err != nil {
		return err
	}
	s, err := sim.NewSimulator(sc, sim.WithLogger(logging.WithComponent(log, "sim")))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.Run(ctx) })
	if adminAddr != "" {
		srv := admin.NewFleetServer(s, admin.WithLogger(logging.WithComponent(log, "admin")))
		g.Go(func() error { return srv.Start(ctx, adminAddr) })
	}
	log.Info().Str("addr", sc.Addr).Str("scenario", sc.Scenario.Name).Int("vehicles", len(sc.Vehicles)).Msg("simulation started")
	err = g.Wait()
	log.Info().Msg("simulation stopped")
	return err
}
