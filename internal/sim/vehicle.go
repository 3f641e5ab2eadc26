package sim

import (
	"maps"
	"math"
	"strconv"
	"strings"

	"marineops-bridge/internal/scenario"
	"marineops-bridge/internal/wire"
)

// VehicleConfig describes one simulated vehicle.
type VehicleConfig struct {
	ID        string
	Start     scenario.Pose
	AutoStart bool
}

// Vehicle is a simulated surface vehicle with an on-board episode manager.
// Positions are metres in the local frame; courses are degrees clockwise
// from north. Times are vehicle seconds.
type Vehicle struct {
	ID      string
	X, Y    float64
	Heading float64
	Speed   float64
	Course  float64

	sc        *scenario.Scenario
	phase     scenario.Phase
	state     wire.EpisodeState
	episode   int
	startedAt float64
	willPause bool
	report    *wire.EpisodeReport
	vars      map[string]any

	completed int
	successes int
}

func newVehicle(cfg VehicleConfig, sc *scenario.Scenario) *Vehicle {
	v := &Vehicle{
		ID:      cfg.ID,
		X:       cfg.Start.X,
		Y:       cfg.Start.Y,
		Heading: cfg.Start.Heading,
		Course:  cfg.Start.Heading,
		sc:      sc,
		phase:   sc.Phases[0],
		state:   wire.EpisodePaused,
		vars:    make(map[string]any),
	}
	return v
}

// apply executes an instruction received from the bridge.
func (v *Vehicle) apply(in wire.Instruction, t wire.Type, now float64) {
	for k, val := range in.Posts {
		if k == wire.EpisodeCtrlVar {
			v.control(val, now)
			continue
		}
		if wire.IsReservedKey(k) {
			continue
		}
		v.vars[k] = postValue(val)
	}
	if t == wire.TypeAction {
		v.Speed, v.Course = in.Speed, in.Course
	}
	if in.CtrlMsg == wire.CtrlPause {
		v.Speed = 0
	}
}

// postValue stores numeric posts as doubles, like the vehicle database.
func postValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

// control handles an EPISODE_MGR_CTRL post such as
// "type=reset,success=true".
func (v *Vehicle) control(cmd string, now float64) {
	fields := map[string]string{}
	for _, part := range strings.Split(cmd, ",") {
		k, val, _ := strings.Cut(part, "=")
		fields[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(val)
	}
	switch fields["type"] {
	case "start":
		v.willPause = false
		if v.state != wire.EpisodeRunning {
			v.state = wire.EpisodeRunning
			v.startedAt = now
		}
	case "pause":
		if v.state == wire.EpisodeRunning {
			v.willPause = true
		} else {
			v.state = wire.EpisodePaused
		}
	case "hardstop":
		if v.state == wire.EpisodeRunning {
			v.endEpisode(false, now)
		}
		v.state = wire.EpisodeStopped
	case "reset":
		success, _ := strconv.ParseBool(fields["success"])
		v.endEpisode(success, now)
	}
}

// step advances the vehicle by dt seconds and evaluates the episode rules.
func (v *Vehicle) step(dt, now, elapsed float64) {
	if v.state != wire.EpisodeRunning {
		return
	}
	v.Heading = math.Mod(v.Course+360, 360)
	rad := v.Heading * math.Pi / 180
	v.X += v.Speed * dt * math.Sin(rad)
	v.Y += v.Speed * dt * math.Cos(rad)

	if done, success := v.phase.Rules.Outcome(v.X, v.Y, now-v.startedAt); done {
		v.endEpisode(success, now)
	}
	v.advancePhase(scenario.Event{Type: scenario.EventTimeElapsed, Value: int(elapsed)})
}

func (v *Vehicle) endEpisode(success bool, now float64) {
	willPause := v.willPause || v.phase.Rules.PauseAfter
	v.report = &wire.EpisodeReport{
		Num:       v.episode,
		Success:   success,
		Duration:  now - v.startedAt,
		WillPause: willPause,
	}
	v.episode++
	v.completed++
	if success {
		v.successes++
	}

	v.X, v.Y, v.Heading = v.sc.Reset.X, v.sc.Reset.Y, v.sc.Reset.Heading
	v.Course, v.Speed = v.sc.Reset.Heading, 0
	v.startedAt = now
	if willPause {
		v.state = wire.EpisodePaused
		v.willPause = false
	}

	v.advancePhase(scenario.Event{Type: scenario.EventEpisodesCompleted, Value: v.completed})
	v.advancePhase(scenario.Event{Type: scenario.EventSuccesses, Value: v.successes})
}

func (v *Vehicle) advancePhase(ev scenario.Event) {
	next, ok := v.sc.NextPhase(v.phase.Name, ev)
	if !ok {
		return
	}
	if p, ok := v.sc.Phase(next); ok {
		v.phase = p
	}
}

// snapshot builds the state reported over the bridge. noise perturbs the
// navigation fix.
func (v *Vehicle) snapshot(now float64, noise func() float64) wire.State {
	s := wire.State{
		VehicleID:    v.ID,
		NavX:         v.X + noise(),
		NavY:         v.Y + noise(),
		NavHeading:   v.Heading,
		MOOSTime:     now,
		EpisodeState: v.state,
		Vars:         maps.Clone(v.vars),
	}
	if v.report != nil {
		r := *v.report
		s.EpisodeReport = &r
	}
	return s
}

// VehicleStatus summarizes a simulated vehicle.
type VehicleStatus struct {
	ID           string            `json:"id"`
	X            float64           `json:"x"`
	Y            float64           `json:"y"`
	Heading      float64           `json:"heading"`
	Speed        float64           `json:"speed"`
	EpisodeState wire.EpisodeState `json:"episode_state"`
	Episode      int               `json:"episode"`
	Successes    int               `json:"successes"`
	Phase        string            `json:"phase"`
}

func (v *Vehicle) status() VehicleStatus {
	return VehicleStatus{
		ID:           v.ID,
		X:            v.X,
		Y:            v.Y,
		Heading:      v.Heading,
		Speed:        v.Speed,
		EpisodeState: v.state,
		Episode:      v.episode,
		Successes:    v.successes,
		Phase:        v.phase.Name,
	}
}
