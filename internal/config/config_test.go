package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func TestLoadConfig_Valid(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("TICK_INTERVAL", "")
	path := writeFile(t, `
bridge:
  listen: ":6000"
  task: harbor
  rotate_every: 50
  poll_interval: 5ms
episodes:
  count: 10
  wait_for: [evan]
agents:
  - vehicle_id: evan
    waypoints:
      - {x: 1, y: 2}
    speed: 1.5
simulation:
  tick: 250ms
  vehicles:
    - id: evan
      start: {x: 0, y: 0, heading: 180}
`)

	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.Equal(t, ":6000", cfg.Bridge.Listen)
	require.Equal(t, "harbor", cfg.Bridge.Task)
	require.Equal(t, 50, cfg.Bridge.RotateEvery)
	require.Equal(t, 5*time.Millisecond, cfg.Bridge.PollInterval)
	require.True(t, cfg.Bridge.Log, "unset keys keep their defaults")
	require.Equal(t, 10, cfg.Episodes.Count)
	require.Len(t, cfg.Agents, 1)
	require.Equal(t, "evan", cfg.Agents[0].VehicleID)
	require.Equal(t, 250*time.Millisecond, cfg.Simulation.Tick)
	require.Equal(t, 180.0, cfg.Simulation.Vehicles[0].Start.Heading)
}

func TestLoadConfig_SchemaViolations(t *testing.T) {
	tests := map[string]string{
		"unknown section": "fleets: []\n",
		"bad rotate":      "bridge:\n  rotate_every: 0\n",
		"bad level":       "logging:\n  level: loud\n",
		"bad duration":    "episodes:\n  tick: soon\n",
		"empty agent id":  "agents:\n  - vehicle_id: \"\"\n    waypoints: [{x: 1, y: 1}]\n",
		"no waypoints":    "agents:\n  - vehicle_id: a\n    waypoints: []\n",
		"heading range":   "simulation:\n  vehicles:\n    - id: a\n      start: {x: 0, y: 0, heading: 400}\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, body), "")
			require.Error(t, err)
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("BRIDGE_LISTEN", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("TICK_INTERVAL", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	cfg, err := Load("", "")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadConfig_CustomSchema(t *testing.T) {
	schema := filepath.Join(t.TempDir(), "strict.cue")
	require.NoError(t, os.WriteFile(schema, []byte(`#Config: { bridge: { task: "fixed" } }`), 0o644))

	_, err := Load(writeFile(t, "bridge:\n  task: other\n"), schema)
	require.Error(t, err)
	_, err = Load(writeFile(t, "bridge:\n  task: fixed\n"), schema)
	require.NoError(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"LOG_LEVEL":           "debug",
		"BRIDGE_LISTEN":       "127.0.0.1:7000",
		"GREPTIMEDB_ENDPOINT": "greptime:4001",
		"GREPTIMEDB_DATABASE": "ops",
		"TICK_INTERVAL":       "20ms",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "127.0.0.1:7000", cfg.Bridge.Listen)
	require.Equal(t, "greptime:4001", cfg.Greptime.Endpoint)
	require.Equal(t, "ops", cfg.Greptime.Database)
	require.Equal(t, 20*time.Millisecond, cfg.Simulation.Tick)

	env["TICK_INTERVAL"] = "fast"
	require.Error(t, Default().ApplyEnv(lookup))

	cfg = Default()
	require.NoError(t, cfg.ApplyEnv(noEnv))
	require.Equal(t, Default(), cfg)
}

func TestDefaultSchemaAcceptsDefaults(t *testing.T) {
	body := `
bridge:
  listen: ":57722"
  task: default
  log: true
episodes:
  count: 100
  tick: 100ms
`
	require.NoError(t, Validate([]byte(body), DefaultSchema()))
	require.NoError(t, Validate(nil, DefaultSchema()))
}

func TestLoadConfig_Shipped(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("TICK_INTERVAL", "")
	t.Setenv("GREPTIMEDB_ENDPOINT", "")
	cfg, err := Load(filepath.Join("..", "..", "config", "bridge.yaml"), "")
	require.NoError(t, err)
	require.Equal(t, "waypoints", cfg.Bridge.Task)
	require.Len(t, cfg.Agents, 2)
	require.Len(t, cfg.Simulation.Vehicles, 2)
	require.Equal(t, 100*time.Millisecond, cfg.Episodes.Tick)
}
