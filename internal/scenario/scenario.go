package scenario

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Event types that may advance a scenario.
const (
	EventEpisodesCompleted = "episodes_completed"
	EventSuccesses         = "successes"
	EventTimeElapsed       = "time_elapsed"
)

// Scenario defines the episode rules a simulated vehicle plays through,
// as ordered phases.
type Scenario struct {
	Name        string  `yaml:"name,omitempty"`
	Description string  `yaml:"description,omitempty"`
	Reset       Pose    `yaml:"reset"`
	Phases      []Phase `yaml:"phases"`
}

// Pose is a position and heading in the local metric frame.
type Pose struct {
	X       float64 `yaml:"x"`
	Y       float64 `yaml:"y"`
	Heading float64 `yaml:"heading"`
}

// Region is a circle in the local metric frame.
type Region struct {
	X      float64 `yaml:"x"`
	Y      float64 `yaml:"y"`
	Radius float64 `yaml:"radius"`
}

// Contains reports whether the point lies inside the region.
func (r Region) Contains(x, y float64) bool {
	return math.Hypot(x-r.X, y-r.Y) <= r.Radius
}

// Phase describes a stage of training with its own episode rules and
// triggers for transitions.
type Phase struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	Rules       Rules     `yaml:"rules"`
	Triggers    []Trigger `yaml:"triggers,omitempty"`
}

// Rules decide when an episode ends.
type Rules struct {
	// MaxDuration ends the episode as a failure after this many seconds of
	// vehicle time. Zero disables the limit.
	MaxDuration float64 `yaml:"max_duration_s,omitempty"`
	// Goal ends the episode as a success once the vehicle enters it.
	Goal *Region `yaml:"goal,omitempty"`
	// Bounds ends the episode as a failure once the vehicle leaves it.
	Bounds *Region `yaml:"bounds,omitempty"`
	// PauseAfter pauses the episode manager after every episode.
	PauseAfter bool `yaml:"pause_after,omitempty"`
}

// Outcome evaluates the rules for a vehicle at (x, y) that has been in its
// episode for elapsed seconds.
func (r Rules) Outcome(x, y, elapsed float64) (done, success bool) {
	switch {
	case r.Goal != nil && r.Goal.Contains(x, y):
		return true, true
	case r.Bounds != nil && !r.Bounds.Contains(x, y):
		return true, false
	case r.MaxDuration > 0 && elapsed >= r.MaxDuration:
		return true, false
	}
	return false, false
}

// Trigger moves the scenario to another phase based on an event.
type Trigger struct {
	Event string `yaml:"event"`
	Value int    `yaml:"value"`
	Next  string `yaml:"next"`
}

// Event represents a runtime occurrence that may advance the scenario.
type Event struct {
	Type  string
	Value int
}

// Load reads a YAML scenario definition from disk.
func Load(path string) (*Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Resolve returns the built-in scenario with the given name, or loads it
// from a file.
func Resolve(nameOrPath string) (*Scenario, error) {
	if s, ok := BuiltIn()[nameOrPath]; ok {
		return &s, nil
	}
	return Load(nameOrPath)
}

// Validate checks that the scenario has phases and that every trigger
// names an existing phase.
func (s *Scenario) Validate() error {
	if len(s.Phases) == 0 {
		return fmt.Errorf("scenario %q has no phases", s.Name)
	}
	for _, p := range s.Phases {
		for _, tr := range p.Triggers {
			if _, ok := s.Phase(tr.Next); !ok {
				return fmt.Errorf("scenario %q: phase %q triggers unknown phase %q", s.Name, p.Name, tr.Next)
			}
		}
	}
	return nil
}

// Phase returns the named phase.
func (s *Scenario) Phase(name string) (Phase, bool) {
	for _, p := range s.Phases {
		if p.Name == name {
			return p, true
		}
	}
	return Phase{}, false
}

// NextPhase returns the name of the next phase given the current phase and event.
// If no trigger matches, ok will be false.
func (s *Scenario) NextPhase(current string, ev Event) (next string, ok bool) {
	for _, p := range s.Phases {
		if p.Name != current {
			continue
		}
		for _, tr := range p.Triggers {
			if tr.Event == ev.Type && ev.Value >= tr.Value {
				return tr.Next, true
			}
		}
	}
	return "", false
}
