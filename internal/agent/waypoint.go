// Package agent provides a simple grid-discretized waypoint agent for the
// episodic manager.
package agent

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/rs/zerolog"

	"marineops-bridge/internal/episodic"
	"marineops-bridge/internal/wire"
)

// TargetVar is posted with the index of the waypoint being steered to.
const TargetVar = "AGENT_TARGET"

// Point is a waypoint in the local metric frame.
type Point struct {
	X, Y float64
}

// Config configures a Waypoint agent.
type Config struct {
	VehicleID string
	Waypoints []Point
	// CellSize is the grid resolution of the state representation.
	CellSize float64
	Speed    float64
	// Capture is the distance at which a waypoint counts as reached.
	Capture float64
}

// Rpr is the discretized state: the grid cell the vehicle is in, the
// waypoint it is heading to and whether its episode manager is paused.
type Rpr struct {
	CellX, CellY int
	Target       int
	Paused       bool
}

// Waypoint steers its vehicle through a waypoint loop. Paused vehicles are
// asked to start a new episode.
type Waypoint struct {
	cfg    Config
	log    zerolog.Logger
	target int

	Episodes  int
	Successes int
}

var _ episodic.EpisodeEnder[Rpr] = (*Waypoint)(nil)

// New validates cfg and returns an agent.
func New(cfg Config, log zerolog.Logger) (*Waypoint, error) {
	if cfg.VehicleID == "" {
		return nil, errors.New("agent: vehicle id required")
	}
	if len(cfg.Waypoints) == 0 {
		return nil, fmt.Errorf("agent %s: no waypoints", cfg.VehicleID)
	}
	if cfg.CellSize <= 0 {
		cfg.CellSize = 10
	}
	if cfg.Capture <= 0 {
		cfg.Capture = cfg.CellSize
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 2
	}
	return &Waypoint{cfg: cfg, log: log.With().Str("vehicle_id", cfg.VehicleID).Logger()}, nil
}

// ID implements episodic.Agent.
func (a *Waypoint) ID() string { return a.cfg.VehicleID }

// ObsToRpr implements episodic.Agent. Reaching the current waypoint
// advances the target.
func (a *Waypoint) ObsToRpr(s wire.State) Rpr {
	wp := a.cfg.Waypoints[a.target]
	if math.Hypot(wp.X-s.NavX, wp.Y-s.NavY) <= a.cfg.Capture {
		a.target = (a.target + 1) % len(a.cfg.Waypoints)
	}
	return Rpr{
		CellX:  int(math.Floor(s.NavX / a.cfg.CellSize)),
		CellY:  int(math.Floor(s.NavY / a.cfg.CellSize)),
		Target: a.target,
		Paused: s.EpisodeState == wire.EpisodePaused,
	}
}

// RprToAct implements episodic.Agent.
func (a *Waypoint) RprToAct(r Rpr, s wire.State, _ episodic.Report) wire.Action {
	wp := a.cfg.Waypoints[r.Target]
	act := wire.Action{
		Speed:  a.cfg.Speed,
		Course: Bearing(s.NavX, s.NavY, wp.X, wp.Y),
		Posts:  map[string]string{TargetVar: strconv.Itoa(r.Target)},
	}
	if r.Paused {
		act.Posts[wire.EpisodeCtrlVar] = wire.EpisodeCtrlStart
	}
	return act
}

// EpisodeEnd implements episodic.EpisodeEnder. The waypoint loop restarts
// with every episode.
func (a *Waypoint) EpisodeEnd(_ Rpr, _ wire.State, r episodic.Report) {
	a.Episodes++
	if r.Success != nil && *r.Success {
		a.Successes++
	}
	a.target = 0
	a.log.Info().Int("completed", r.CompletedEpisodes).Int("successes", a.Successes).Msg("episode ended")
}

// Bearing returns the course in degrees clockwise from north from (x1, y1)
// to (x2, y2).
func Bearing(x1, y1, x2, y2 float64) float64 {
	deg := math.Atan2(x2-x1, y2-y1) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
