package wire

import (
	"fmt"
	"strconv"
	"strings"
)

// EpisodeState is the lifecycle state of a vehicle's remote episode
// manager. Values other than the known constants are carried verbatim.
type EpisodeState string

const (
	EpisodePaused  EpisodeState = "PAUSED"
	EpisodeRunning EpisodeState = "RUNNING"
	EpisodeStopped EpisodeState = "STOPPED"
)

// EpisodeReport summarizes an episode that just ended on a vehicle.
type EpisodeReport struct {
	Num       int     `json:"num"`
	Success   bool    `json:"success"`
	Duration  float64 `json:"duration"`
	WillPause bool    `json:"will_pause"`
}

// String renders the compact wire form, e.g.
// "NUM=3,DURATION=60.57,SUCCESS=true,WILL_PAUSE=false".
func (r EpisodeReport) String() string {
	return fmt.Sprintf("NUM=%d,DURATION=%s,SUCCESS=%t,WILL_PAUSE=%t",
		r.Num, strconv.FormatFloat(r.Duration, 'f', -1, 64), r.Success, r.WillPause)
}

// ParseEpisodeReport parses the compact key=value,key=value form emitted
// by the remote episode manager. All four keys are required; key order
// and key case do not matter.
func ParseEpisodeReport(s string) (EpisodeReport, error) {
	const field = "episode_report"
	var (
		r    EpisodeReport
		seen = map[string]bool{}
	)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return EpisodeReport{}, &ValidationError{Field: field, Reason: fmt.Sprintf("malformed pair %q", pair)}
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		var err error
		switch key {
		case "NUM":
			r.Num, err = strconv.Atoi(value)
		case "DURATION":
			r.Duration, err = strconv.ParseFloat(value, 64)
		case "SUCCESS":
			r.Success, err = strconv.ParseBool(strings.ToLower(value))
		case "WILL_PAUSE":
			r.WillPause, err = strconv.ParseBool(strings.ToLower(value))
		default:
			continue
		}
		if err != nil {
			return EpisodeReport{}, &ValidationError{Field: field, Reason: fmt.Sprintf("bad %s value %q", key, value)}
		}
		seen[key] = true
	}
	for _, key := range []string{"NUM", "DURATION", "SUCCESS", "WILL_PAUSE"} {
		if !seen[key] {
			return EpisodeReport{}, &ValidationError{Field: field, Reason: "missing " + key}
		}
	}
	return r, nil
}

// episodeReportFromMap accepts a report that was already structured by
// the sender.
func episodeReportFromMap(m map[string]any) (EpisodeReport, error) {
	const field = "episode_report"
	var r EpisodeReport
	upper := make(map[string]any, len(m))
	for k, v := range m {
		upper[strings.ToUpper(k)] = v
	}
	num, ok := toFloat(upper["NUM"])
	if !ok {
		return r, &ValidationError{Field: field, Reason: "NUM must be a number"}
	}
	dur, ok := toFloat(upper["DURATION"])
	if !ok {
		return r, &ValidationError{Field: field, Reason: "DURATION must be a number"}
	}
	success, ok := upper["SUCCESS"].(bool)
	if !ok {
		return r, &ValidationError{Field: field, Reason: "SUCCESS must be a bool"}
	}
	willPause, ok := upper["WILL_PAUSE"].(bool)
	if !ok {
		return r, &ValidationError{Field: field, Reason: "WILL_PAUSE must be a bool"}
	}
	return EpisodeReport{Num: int(num), Duration: dur, Success: success, WillPause: willPause}, nil
}
