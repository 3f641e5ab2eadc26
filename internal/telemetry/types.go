// Episode and transition rows with greptime tags
package telemetry

import (
	"os"
	"time"

	"marineops-bridge/internal/wire"
)

// EpisodeRow records one completed episode reported by a vehicle.
type EpisodeRow struct {
	SessionID    string    `json:"session_id"`    // TAG
	VehicleID    string    `json:"vehicle_id"`    // TAG
	Num          int       `json:"num"`           // FIELD
	Success      bool      `json:"success"`       // FIELD
	DurationS    float64   `json:"duration_s"`    // FIELD
	WillPause    bool      `json:"will_pause"`    // FIELD
	EpisodeState string    `json:"episode_state"` // FIELD
	MOOSTime     float64   `json:"moos_time"`     // FIELD
	Timestamp    time.Time `json:"ts"`            // TIME INDEX
}

// EpisodeTableName holds the table name used when writing episodes to
// GreptimeDB. It defaults to "vehicle_episodes" but can be overridden via
// the GREPTIMEDB_TABLE environment variable.
var EpisodeTableName = func() string {
	if env := os.Getenv("GREPTIMEDB_TABLE"); env != "" {
		return env
	}
	return "vehicle_episodes"
}()

func (EpisodeRow) TableName() string {
	return EpisodeTableName
}

// TransitionRow is one logged transition as emitted by replay and
// inspection.
type TransitionRow struct {
	VehicleID string      `json:"vehicle_id"`
	Index     int         `json:"index"`
	S1        wire.State  `json:"s1"`
	Action    wire.Action `json:"action"`
	S2        wire.State  `json:"s2"`
}

// NewTransitionRow wraps a transition read from a log.
func NewTransitionRow(index int, t wire.Transition) TransitionRow {
	vid := t.S2.VehicleID
	if vid == "" {
		vid = t.S1.VehicleID
	}
	return TransitionRow{VehicleID: vid, Index: index, S1: t.S1, Action: t.A, S2: t.S2}
}

// Elapsed is the MOOS time between the two states.
func (r TransitionRow) Elapsed() float64 {
	return r.S2.MOOSTime - r.S1.MOOSTime
}
