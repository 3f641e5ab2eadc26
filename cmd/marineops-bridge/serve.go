package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"marineops-bridge/internal/admin"
	"marineops-bridge/internal/agent"
	"marineops-bridge/internal/config"
	"marineops-bridge/internal/episodic"
	"marineops-bridge/internal/logging"
	"marineops-bridge/internal/mission"
)

var serveEpisodeLog string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mission bridge and the configured agents",
	Long: "serve accepts vehicle connections, drives the configured waypoint agents " +
		"through episodes and logs transitions under the output directory.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveEpisodeLog, "episode-log", "", "Path to export completed episodes (JSONL)")
}

func missionConfig(c config.Bridge) mission.Config {
	def := mission.DefaultConfig()
	def.Addr = c.Listen
	def.Task = c.Task
	def.OutputDir = c.OutputDir
	def.Log = c.Log
	def.LogWhitelist = c.LogWhitelist
	def.ImmediateTransition = c.ImmediateTransition
	def.IDSuffix = c.IDSuffix
	def.RotateEvery = c.RotateEvery
	def.MaxPending = c.MaxPending
	if c.PollInterval > 0 {
		def.PollInterval = c.PollInterval
	}
	return def
}

func buildAgents(c *config.Config, log zerolog.Logger) ([]episodic.Agent[agent.Rpr], error) {
	agents := make([]episodic.Agent[agent.Rpr], 0, len(c.Agents))
	for _, ac := range c.Agents {
		wps := make([]agent.Point, len(ac.Waypoints))
		for i, p := range ac.Waypoints {
			wps[i] = agent.Point{X: p.X, Y: p.Y}
		}
		a, err := agent.New(agent.Config{
			VehicleID: ac.VehicleID,
			Waypoints: wps,
			CellSize:  ac.CellSize,
			Speed:     ac.Speed,
			Capture:   ac.Capture,
		}, log)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

func serve(ctx context.Context, c *config.Config, log zerolog.Logger) error {
	sink, cleanup, err := newEpisodeWriter(c.Greptime, serveEpisodeLog, logging.WithComponent(log, "telemetry"))
	if err != nil {
		return err
	}
	defer cleanup()

	opts := []mission.Option{mission.WithLogger(logging.WithComponent(log, "mission"))}
	if sink != nil {
		opts = append(opts, mission.WithEpisodeWriter(sink))
	}
	m, err := mission.New(missionConfig(c.Bridge), opts...)
	if err != nil {
		return err
	}

	agents, err := buildAgents(c, logging.WithComponent(log, "agent"))
	if err != nil {
		m.Stop()
		return err
	}
	em, err := episodic.New(agents, episodic.Config{
		Episodes: c.Episodes.Count,
		WaitFor:  c.Episodes.WaitFor,
		Tick:     c.Episodes.Tick,
	}, episodic.WithLogger(logging.WithComponent(log, "episodic")))
	if err != nil {
		m.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.Run(ctx) })
	g.Go(func() error {
		// Reaching the episode target ends the whole run.
		defer cancel()
		return em.Run(ctx, m)
	})
	if c.Admin.Listen != "" {
		srv := admin.NewServer(m, admin.WithLogger(logging.WithComponent(log, "admin")))
		g.Go(func() error { return srv.Start(ctx, c.Admin.Listen) })
	}

	log.Info().Str("session_id", m.SessionID()).Str("logs", m.LogPath()).Int("agents", len(agents)).Msg("bridge started")
	err = g.Wait()
	log.Info().Int("completed_episodes", em.CompletedEpisodes()).Msg("bridge stopped")
	return err
}
