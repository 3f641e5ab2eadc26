package scenario

// BuiltIn returns predefined training scenarios.
func BuiltIn() map[string]Scenario {
	return map[string]Scenario{
		"harbor-transit": {
			Name:        "Harbor Transit",
			Description: "Cross the harbor from the launch ramp to the mooring field without leaving the channel.",
			Reset:       Pose{X: 20, Y: -80, Heading: 90},
			Phases: []Phase{
				{
					Name:        "warmup",
					Description: "Generous time limit while the agent learns the channel.",
					Rules:       Rules{MaxDuration: 300, Goal: &Region{X: 100, Y: -40, Radius: 10}},
					Triggers:    []Trigger{{Event: EventSuccesses, Value: 5, Next: "training"}},
				},
				{
					Name:        "training",
					Description: "Channel bounds are enforced.",
					Rules: Rules{
						MaxDuration: 180,
						Goal:        &Region{X: 100, Y: -40, Radius: 10},
						Bounds:      &Region{X: 60, Y: -60, Radius: 90},
					},
					Triggers: []Trigger{{Event: EventEpisodesCompleted, Value: 50, Next: "evaluation"}},
				},
				{
					Name:        "evaluation",
					Description: "Tight limits and a pause after every episode for inspection.",
					Rules: Rules{
						MaxDuration: 120,
						Goal:        &Region{X: 100, Y: -40, Radius: 6},
						Bounds:      &Region{X: 60, Y: -60, Radius: 90},
						PauseAfter:  true,
					},
				},
			},
		},
		"station-keeping": {
			Name:        "Station Keeping",
			Description: "Hold position near a buoy for as long as possible.",
			Reset:       Pose{X: 0, Y: 0, Heading: 0},
			Phases: []Phase{
				{
					Name:        "hold",
					Description: "Episodes end when the vehicle drifts away from the buoy.",
					Rules:       Rules{MaxDuration: 600, Bounds: &Region{X: 0, Y: 0, Radius: 25}},
				},
			},
		},
		"timed-patrol": {
			Name:        "Timed Patrol",
			Description: "Fixed length episodes with no terminal region.",
			Reset:       Pose{X: 0, Y: 0, Heading: 180},
			Phases: []Phase{
				{
					Name:     "patrol",
					Rules:    Rules{MaxDuration: 60},
					Triggers: []Trigger{{Event: EventTimeElapsed, Value: 3600, Next: "rest"}},
				},
				{
					Name:  "rest",
					Rules: Rules{MaxDuration: 60, PauseAfter: true},
				},
			},
		},
	}
}
