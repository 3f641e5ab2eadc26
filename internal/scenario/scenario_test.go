package scenario

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScenarioTransition(t *testing.T) {
	s := Scenario{
		Phases: []Phase{{
			Name:     "learn",
			Triggers: []Trigger{{Event: EventSuccesses, Value: 10, Next: "exam"}},
		}, {
			Name: "exam",
		}},
	}

	if _, ok := s.NextPhase("learn", Event{Type: EventSuccesses, Value: 9}); ok {
		t.Fatalf("transition before threshold")
	}
	if _, ok := s.NextPhase("learn", Event{Type: EventEpisodesCompleted, Value: 10}); ok {
		t.Fatalf("transition on wrong event")
	}
	next, ok := s.NextPhase("learn", Event{Type: EventSuccesses, Value: 10})
	if !ok || next != "exam" {
		t.Fatalf("expected transition to exam, got %s", next)
	}
}

func TestLoadScenario(t *testing.T) {
	sc, err := Load("testdata/simple.yaml")
	if err != nil {
		t.Fatalf("load scenario: %v", err)
	}
	if sc.Name != "example" {
		t.Fatalf("unexpected name %s", sc.Name)
	}
	if sc.Description != "basic test scenario" {
		t.Fatalf("unexpected description %s", sc.Description)
	}
	if len(sc.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(sc.Phases))
	}
	if sc.Reset.Heading != 270 {
		t.Fatalf("unexpected reset heading %v", sc.Reset.Heading)
	}
	if g := sc.Phases[0].Rules.Goal; g == nil || g.Radius != 5 {
		t.Fatalf("unexpected goal %+v", g)
	}
	if !sc.Phases[1].Rules.PauseAfter {
		t.Fatalf("exam phase should pause after episodes")
	}
}

func TestLoadRejectsDanglingTrigger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	body := "name: bad\nphases:\n  - name: a\n    triggers:\n      - {event: successes, value: 1, next: b}\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown phase")
	}
}

func TestRulesOutcome(t *testing.T) {
	r := Rules{
		MaxDuration: 10,
		Goal:        &Region{X: 10, Y: 0, Radius: 1},
		Bounds:      &Region{X: 0, Y: 0, Radius: 20},
	}
	tests := []struct {
		name          string
		x, y, elapsed float64
		done, success bool
	}{
		{"running", 0, 0, 1, false, false},
		{"goal", 10.5, 0, 1, true, true},
		{"out of bounds", 30, 0, 1, true, false},
		{"timeout", 0, 0, 10, true, false},
		{"goal beats timeout", 10, 0, 12, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			done, success := r.Outcome(tt.x, tt.y, tt.elapsed)
			if done != tt.done || success != tt.success {
				t.Fatalf("Outcome = (%v, %v), want (%v, %v)", done, success, tt.done, tt.success)
			}
		})
	}
	if done, _ := (Rules{}).Outcome(1e6, 1e6, 1e6); done {
		t.Fatalf("empty rules never end an episode")
	}
}

func TestBuiltInScenarios(t *testing.T) {
	for name, sc := range BuiltIn() {
		if sc.Description == "" {
			t.Fatalf("scenario %s missing description", name)
		}
		if err := sc.Validate(); err != nil {
			t.Fatalf("scenario %s invalid: %v", name, err)
		}
	}
	sc, err := Resolve("harbor-transit")
	if err != nil || sc.Phases[0].Name != "warmup" {
		t.Fatalf("Resolve builtin: %v %+v", err, sc)
	}
	if _, err := Resolve("no-such-scenario"); err == nil {
		t.Fatalf("expected error for unknown scenario")
	}
}
