package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"marineops-bridge/internal/inspect"
	"marineops-bridge/internal/logdir"
)

var (
	inspectFollow  bool
	inspectSession string
	inspectVehicle string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Work with transition logs",
}

var logSessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions and their vehicle logs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := logdir.Open(cfg.Bridge.OutputDir, true)
		if err != nil {
			return err
		}
		return listSessions(cmd.OutOrStdout(), dir)
	},
}

var logInspectCmd = &cobra.Command{
	Use:   "inspect [log-dir]",
	Short: "Browse a vehicle transition log",
	Long: "inspect shows a transition log in an interactive table on a terminal, " +
		"or as JSON lines when output is redirected. Pass a log directory or " +
		"--session and --vehicle to resolve one under the configured output directory.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveLog(args)
		if err != nil {
			return err
		}
		return inspect.Run(cmd.Context(), path, inspect.Options{
			Follow: inspectFollow,
			In:     cmd.InOrStdin(),
			Out:    cmd.OutOrStdout(),
		})
	},
}

func init() {
	logInspectCmd.Flags().BoolVarP(&inspectFollow, "follow", "f", false, "Keep watching for new chunks")
	logInspectCmd.Flags().StringVar(&inspectSession, "session", "", "Session id to inspect")
	logInspectCmd.Flags().StringVar(&inspectVehicle, "vehicle", "", "Vehicle id within the session")
	logCmd.AddCommand(logSessionsCmd)
	logCmd.AddCommand(logInspectCmd)
}

func resolveLog(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if inspectSession == "" || inspectVehicle == "" {
		return "", fmt.Errorf("either a log directory or --session and --vehicle are required")
	}
	dir, err := logdir.Open(cfg.Bridge.OutputDir, true)
	if err != nil {
		return "", err
	}
	logs, err := dir.SessionLogs(inspectSession)
	if err != nil {
		return "", err
	}
	path, ok := logs[inspectVehicle]
	if !ok {
		return "", fmt.Errorf("no log for vehicle %q in session %q", inspectVehicle, inspectSession)
	}
	return path, nil
}

func listSessions(out io.Writer, dir *logdir.Directory) error {
	sessions, err := dir.Registry.Sessions()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tVEHICLE\tLOG")
	for _, s := range sessions {
		logs, err := dir.SessionLogs(s)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Fprintf(tw, "%s\t-\t-\n", s)
			continue
		}
		vehicles := make([]string, 0, len(logs))
		for v := range logs {
			vehicles = append(vehicles, v)
		}
		sort.Strings(vehicles)
		for _, v := range vehicles {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s, v, logs[v])
		}
	}
	return tw.Flush()
}
