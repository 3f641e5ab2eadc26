// YAML config loader with CUE validation integration
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Bridge configures the mission manager and its transition logs.
type Bridge struct {
	Listen              string        `yaml:"listen"`
	Task                string        `yaml:"task"`
	OutputDir           string        `yaml:"output_dir"`
	Log                 bool          `yaml:"log"`
	LogWhitelist        []string      `yaml:"log_whitelist"`
	ImmediateTransition bool          `yaml:"immediate_transition"`
	RotateEvery         int           `yaml:"rotate_every"`
	MaxPending          int           `yaml:"max_pending"`
	IDSuffix            string        `yaml:"id_suffix"`
	PollInterval        time.Duration `yaml:"poll_interval"`
}

// Logging configures the process logger.
type Logging struct {
	Level string `yaml:"level"`
}

// Admin configures the HTTP admin server. An empty Listen disables it.
type Admin struct {
	Listen string `yaml:"listen"`
}

// Episodes configures the episodic manager.
type Episodes struct {
	Count   int           `yaml:"count"`
	Tick    time.Duration `yaml:"tick"`
	WaitFor []string      `yaml:"wait_for"`
}

// Point is a position in the local metric frame.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Pose is a position with a heading in degrees.
type Pose struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Heading float64 `yaml:"heading"`
}

// Agent configures one waypoint agent.
type Agent struct {
	VehicleID string  `yaml:"vehicle_id"`
	Waypoints []Point `yaml:"waypoints"`
	CellSize  float64 `yaml:"cell_size"`
	Speed     float64 `yaml:"speed"`
	Capture   float64 `yaml:"capture"`
}

// Vehicle describes one simulated vehicle.
type Vehicle struct {
	ID        string `yaml:"id"`
	Start     Pose   `yaml:"start"`
	AutoStart bool   `yaml:"auto_start"`
}

// Simulation configures the vehicle simulator.
type Simulation struct {
	Addr        string        `yaml:"addr"`
	Tick        time.Duration `yaml:"tick"`
	TimeScale   float64       `yaml:"time_scale"`
	Scenario    string        `yaml:"scenario"`
	SensorNoise float64       `yaml:"sensor_noise"`
	Seed        int64         `yaml:"seed"`
	Vehicles    []Vehicle     `yaml:"vehicles"`
}

// Greptime configures the episode sink. An empty Endpoint disables it.
type Greptime struct {
	Endpoint string `yaml:"endpoint"`
	Database string `yaml:"database"`
	Table    string `yaml:"table"`
}

// Config is the root configuration.
type Config struct {
	Bridge     Bridge     `yaml:"bridge"`
	Logging    Logging    `yaml:"logging"`
	Admin      Admin      `yaml:"admin"`
	Episodes   Episodes   `yaml:"episodes"`
	Agents     []Agent    `yaml:"agents"`
	Simulation Simulation `yaml:"simulation"`
	Greptime   Greptime   `yaml:"greptime"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Bridge: Bridge{
			Listen:              ":57722",
			Task:                "default",
			OutputDir:           "generated_files",
			Log:                 true,
			ImmediateTransition: true,
			RotateEvery:         1000,
			PollInterval:        time.Millisecond,
		},
		Logging:  Logging{Level: "info"},
		Episodes: Episodes{Count: 100, Tick: 100 * time.Millisecond},
		Agents: []Agent{{
			VehicleID: "felix",
			Waypoints: []Point{{X: 100, Y: -40}, {X: 100, Y: -120}, {X: 20, Y: -80}},
			CellSize:  10,
			Speed:     2,
			Capture:   8,
		}},
		Simulation: Simulation{
			Addr:      "localhost:57722",
			Tick:      100 * time.Millisecond,
			TimeScale: 1,
			Scenario:  "harbor-transit",
			Vehicles:  []Vehicle{{ID: "felix", Start: Pose{X: 20, Y: -80, Heading: 90}, AutoStart: true}},
		},
		Greptime: Greptime{Database: "public", Table: "vehicle_episodes"},
	}
}

// Load loads YAML config over the defaults and validates it against a CUE
// schema. An empty configPath returns the defaults; an empty schema path
// selects the embedded schema. Environment overrides are applied last.
func Load(configPath, cueSchemaPath string) (*Config, error) {
	cfg := Default()
	if configPath != "" {
		if err := ValidateWithCue(configPath, cueSchemaPath); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", configPath, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup("BRIDGE_LISTEN"); ok && v != "" {
		c.Bridge.Listen = v
	}
	if v, ok := lookup("GREPTIMEDB_ENDPOINT"); ok {
		c.Greptime.Endpoint = v
	}
	if v, ok := lookup("GREPTIMEDB_DATABASE"); ok && v != "" {
		c.Greptime.Database = v
	}
	if v, ok := lookup("GREPTIMEDB_TABLE"); ok && v != "" {
		c.Greptime.Table = v
	}
	if v, ok := lookup("TICK_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid TICK_INTERVAL %q", v)
		}
		c.Simulation.Tick = d
	}
	return nil
}
