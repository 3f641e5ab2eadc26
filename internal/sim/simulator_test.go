package sim

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"

	"marineops-bridge/internal/mission"
	"marineops-bridge/internal/scenario"
	"marineops-bridge/internal/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewSimulatorValidation(t *testing.T) {
	if _, err := NewSimulator(Config{}); err == nil {
		t.Fatalf("expected error without vehicles")
	}
	dup := Config{Vehicles: []VehicleConfig{{ID: "a"}, {ID: "a"}}}
	if _, err := NewSimulator(dup); err == nil {
		t.Fatalf("expected error for duplicate ids")
	}
	bad := Config{Vehicles: []VehicleConfig{{ID: "a"}}, Scenario: &scenario.Scenario{Name: "empty"}}
	if _, err := NewSimulator(bad); err == nil {
		t.Fatalf("expected error for scenario without phases")
	}
	s, err := NewSimulator(Config{Vehicles: []VehicleConfig{{ID: "a"}}})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	if st := s.Status(); len(st) != 1 || st[0].Phase != "warmup" || st[0].EpisodeState != wire.EpisodePaused {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestSimulatorAgainstMissionManager(t *testing.T) {
	mgr, err := mission.New(mission.Config{Addr: "127.0.0.1:0"})
	if err != nil {
		t.Fatalf("mission.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgrDone := make(chan error, 1)
	go func() { mgrDone <- mgr.Run(ctx) }()

	sc := &scenario.Scenario{
		Name:   "fast",
		Reset:  scenario.Pose{Heading: 90},
		Phases: []scenario.Phase{{Name: "only", Rules: scenario.Rules{Goal: &scenario.Region{X: 30, Radius: 10}}}},
	}
	s, err := NewSimulator(Config{
		Addr:      mgr.Addr(),
		Tick:      5 * time.Millisecond,
		TimeScale: 10,
		Seed:      1,
		Scenario:  sc,
		Vehicles:  []VehicleConfig{{ID: "felix", Start: scenario.Pose{Heading: 90}, AutoStart: true}},
	})
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	simCtx, simCancel := context.WithCancel(ctx)
	simDone := make(chan error, 1)
	go func() { simDone <- s.Run(simCtx) }()

	waitCtx, waitCancel := context.WithTimeout(ctx, 5*time.Second)
	defer waitCancel()
	if err := mgr.WaitFor(waitCtx, "felix"); err != nil {
		t.Fatalf("WaitFor: %v", err)
	}

	var report *wire.EpisodeReport
	for report == nil {
		msg, err := mgr.GetMessage(waitCtx)
		if err != nil {
			t.Fatalf("GetMessage: %v", err)
		}
		if msg.EpisodeState != wire.EpisodeRunning && msg.EpisodeReport == nil {
			t.Fatalf("auto start vehicle reported %s", msg.EpisodeState)
		}
		report = msg.EpisodeReport
		if err := msg.Act(wire.Action{Speed: 10, Course: 90}); err != nil {
			t.Fatalf("Act: %v", err)
		}
	}
	if report.Num != 0 || !report.Success {
		t.Fatalf("unexpected first episode report %+v", report)
	}

	simCancel()
	if err := <-simDone; err != nil {
		t.Fatalf("simulator Run: %v", err)
	}
	st := s.Status()
	if st[0].Episode < 1 || st[0].Successes < 1 {
		t.Fatalf("unexpected status %+v", st[0])
	}
	cancel()
	if err := <-mgrDone; err != nil {
		t.Fatalf("manager Run: %v", err)
	}
}
