package wire

import (
	"fmt"
	"sort"
)

// Reserved state keys. Everything else in a state payload is an extra var.
const (
	KeyVehicleID     = "vehicle_id"
	KeyNavX          = "NAV_X"
	KeyNavY          = "NAV_Y"
	KeyNavHeading    = "NAV_HEADING"
	KeyMOOSTime      = "MOOS_TIME"
	KeyNodeReports   = "NODE_REPORTS"
	KeyEpisodeReport = "episode_report"
	KeyEpisodeState  = "episode_state"
)

var reservedStateKeys = map[string]bool{
	KeyVehicleID:     true,
	KeyNavX:          true,
	KeyNavY:          true,
	KeyNavHeading:    true,
	KeyMOOSTime:      true,
	KeyNodeReports:   true,
	KeyEpisodeReport: true,
	KeyEpisodeState:  true,
}

// NodeReport is a teammate's latest position as relayed by a vehicle.
type NodeReport struct {
	NavX       float64 `json:"nav_x"`
	NavY       float64 `json:"nav_y"`
	NavHeading float64 `json:"nav_heading"`
	MOOSTime   float64 `json:"moos_time"`
}

// State is one vehicle's observation snapshot.
type State struct {
	VehicleID  string  `json:"vehicle_id"`
	NavX       float64 `json:"nav_x"`
	NavY       float64 `json:"nav_y"`
	NavHeading float64 `json:"nav_heading"`
	MOOSTime   float64 `json:"moos_time"`

	NodeReports map[string]NodeReport `json:"node_reports,omitempty"`
	// Vars holds open-ended telemetry. Values are float64, string or bool.
	Vars map[string]any `json:"vars,omitempty"`

	EpisodeReport *EpisodeReport `json:"episode_report,omitempty"`
	EpisodeState  EpisodeState   `json:"episode_state,omitempty"`
}

// Var returns an extra var by name.
func (s State) Var(name string) (any, bool) {
	v, ok := s.Vars[name]
	return v, ok
}

// VarNames returns the extra var names in sorted order.
func (s State) VarNames() []string {
	names := make([]string, 0, len(s.Vars))
	for k := range s.Vars {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// toMap renders the state as its wire map.
func (s State) toMap() map[string]any {
	m := make(map[string]any, len(s.Vars)+8)
	for k, v := range s.Vars {
		m[k] = v
	}
	m[KeyVehicleID] = s.VehicleID
	m[KeyNavX] = s.NavX
	m[KeyNavY] = s.NavY
	m[KeyNavHeading] = s.NavHeading
	m[KeyMOOSTime] = s.MOOSTime
	if len(s.NodeReports) > 0 {
		reports := make(map[string]any, len(s.NodeReports))
		for id, r := range s.NodeReports {
			reports[id] = map[string]any{
				KeyNavX:       r.NavX,
				KeyNavY:       r.NavY,
				KeyNavHeading: r.NavHeading,
				KeyMOOSTime:   r.MOOSTime,
			}
		}
		m[KeyNodeReports] = reports
	}
	if s.EpisodeReport != nil {
		m[KeyEpisodeReport] = s.EpisodeReport.String()
	}
	if s.EpisodeState != "" {
		m[KeyEpisodeState] = string(s.EpisodeState)
	}
	return m
}

// EncodeState serializes s as a STATE payload.
func EncodeState(s State) ([]byte, error) {
	if s.VehicleID == "" {
		return nil, missing(KeyVehicleID)
	}
	for k, v := range s.Vars {
		if reservedStateKeys[k] {
			return nil, &ValidationError{Field: k, Reason: "reserved key used as extra var"}
		}
		if _, err := normalizeVar(k, v); err != nil {
			return nil, err
		}
	}
	return marshal(s.toMap())
}

// DecodeState parses and validates a STATE payload.
func DecodeState(payload []byte) (State, error) {
	m, err := unmarshalMap(payload)
	if err != nil {
		return State{}, err
	}
	return stateFromMap(m)
}

func stateFromMap(m map[string]any) (State, error) {
	var (
		s   State
		err error
	)
	if s.VehicleID, err = requireString(m, KeyVehicleID); err != nil {
		return State{}, err
	}
	if s.VehicleID == "" {
		return State{}, &ValidationError{Field: KeyVehicleID, Reason: "must not be empty"}
	}
	if s.NavX, err = requireFloat(m, KeyNavX); err != nil {
		return State{}, err
	}
	if s.NavY, err = requireFloat(m, KeyNavY); err != nil {
		return State{}, err
	}
	if s.NavHeading, err = requireFloat(m, KeyNavHeading); err != nil {
		return State{}, err
	}
	if s.MOOSTime, err = requireFloat(m, KeyMOOSTime); err != nil {
		return State{}, err
	}

	if raw, ok := m[KeyNodeReports]; ok && raw != nil {
		if s.NodeReports, err = nodeReportsFromAny(raw); err != nil {
			return State{}, err
		}
	}

	switch r := m[KeyEpisodeReport].(type) {
	case nil:
	case string:
		report, err := ParseEpisodeReport(r)
		if err != nil {
			return State{}, err
		}
		s.EpisodeReport = &report
	case map[string]any:
		report, err := episodeReportFromMap(r)
		if err != nil {
			return State{}, err
		}
		s.EpisodeReport = &report
	default:
		return State{}, wrongType(KeyEpisodeReport, "string or map", r)
	}

	switch es := m[KeyEpisodeState].(type) {
	case nil:
	case string:
		s.EpisodeState = EpisodeState(es)
	default:
		return State{}, wrongType(KeyEpisodeState, "string", es)
	}

	for k, v := range m {
		if reservedStateKeys[k] {
			continue
		}
		nv, err := normalizeVar(k, v)
		if err != nil {
			return State{}, err
		}
		if s.Vars == nil {
			s.Vars = make(map[string]any)
		}
		s.Vars[k] = nv
	}
	return s, nil
}

func nodeReportsFromAny(raw any) (map[string]NodeReport, error) {
	reports, ok := raw.(map[string]any)
	if !ok {
		return nil, wrongType(KeyNodeReports, "map", raw)
	}
	out := make(map[string]NodeReport, len(reports))
	for id, r := range reports {
		rm, ok := r.(map[string]any)
		if !ok {
			return nil, wrongType(KeyNodeReports+"."+id, "map", r)
		}
		var (
			nr  NodeReport
			err error
		)
		if nr.NavX, err = requireFloat(rm, KeyNavX); err != nil {
			return nil, prefixField(KeyNodeReports+"."+id, err)
		}
		if nr.NavY, err = requireFloat(rm, KeyNavY); err != nil {
			return nil, prefixField(KeyNodeReports+"."+id, err)
		}
		if nr.NavHeading, err = requireFloat(rm, KeyNavHeading); err != nil {
			return nil, prefixField(KeyNodeReports+"."+id, err)
		}
		if nr.MOOSTime, err = requireFloat(rm, KeyMOOSTime); err != nil {
			return nil, prefixField(KeyNodeReports+"."+id, err)
		}
		out[id] = nr
	}
	return out, nil
}

// normalizeVar restricts extra vars to float64, string and bool.
func normalizeVar(key string, v any) (any, error) {
	switch x := v.(type) {
	case string, bool:
		return x, nil
	}
	if f, ok := toFloat(v); ok {
		return f, nil
	}
	return nil, &ValidationError{Field: key, Reason: fmt.Sprintf("extra var must be float, string or bool, got %T", v)}
}

func prefixField(prefix string, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &ValidationError{Field: prefix + "." + ve.Field, Reason: ve.Reason}
	}
	return err
}

// IsReservedKey reports whether name is a fixed state key that cannot be
// carried as an extra var.
func IsReservedKey(name string) bool { return reservedStateKeys[name] }
