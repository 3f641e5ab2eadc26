package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"marineops-bridge/internal/config"
	"marineops-bridge/internal/logging"
)

var (
	configPath string
	schemaPath string
	logLevel   levelFlag

	cfg    *config.Config
	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "marineops-bridge",
	Short: "Mission bridge between marine vehicles and learning agents",
	Long: "marineops-bridge routes vehicle state to episodic agents over TCP, " +
		"logs transitions and simulates vehicles for local runs.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load(configPath, schemaPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			c.Logging.Level = string(logLevel)
		}
		cfg = c
		logger = logging.New(logging.Config{Level: cfg.Logging.Level})
		cmd.SetContext(logging.NewContext(cmd.Context(), logger))
		return nil
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to configuration YAML (defaults apply when empty)")
	rootCmd.PersistentFlags().StringVar(&schemaPath, "schema", "", "Path to CUE schema file (embedded schema when empty)")
	rootCmd.PersistentFlags().Var(&logLevel, "log-level", "Log level override (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(logCmd)
}

// levelFlag is a --log-level value checked against zerolog's levels.
type levelFlag string

var _ pflag.Value = (*levelFlag)(nil)

func (l *levelFlag) String() string { return string(*l) }

func (l *levelFlag) Set(s string) error {
	if _, err := zerolog.ParseLevel(s); err != nil {
		return fmt.Errorf("invalid log level %q", s)
	}
	*l = levelFlag(s)
	return nil
}

func (l *levelFlag) Type() string { return "level" }
