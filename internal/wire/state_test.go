package wire

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func felixPayload(t *testing.T) []byte {
	t.Helper()
	b, err := marshal(map[string]any{
		"vehicle_id":     "felix",
		"MOOS_TIME":      16923.012,
		"NAV_X":          98.0,
		"NAV_Y":          40.0,
		"NAV_HEADING":    180,
		"episode_report": "NUM=0,DURATION=60.57,SUCCESS=false,WILL_PAUSE=false",
		"episode_state":  "PAUSED",
	})
	require.NoError(t, err)
	return b
}

func TestDecodeStateFelix(t *testing.T) {
	s, err := DecodeState(felixPayload(t))
	require.NoError(t, err)

	want := State{
		VehicleID:     "felix",
		NavX:          98.0,
		NavY:          40.0,
		NavHeading:    180,
		MOOSTime:      16923.012,
		EpisodeReport: &EpisodeReport{Num: 0, Duration: 60.57, Success: false, WillPause: false},
		EpisodeState:  EpisodePaused,
	}
	if diff := cmp.Diff(want, s); diff != "" {
		t.Fatalf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestStateRoundTrip(t *testing.T) {
	in := State{
		VehicleID:  "evan",
		NavX:       1.5,
		NavY:       -2,
		NavHeading: 90,
		MOOSTime:   12,
		NodeReports: map[string]NodeReport{
			"felix": {NavX: 3, NavY: 4, NavHeading: 270, MOOSTime: 11.5},
		},
		Vars: map[string]any{
			"TAGGED":     true,
			"FLAG_OWNER": "red",
			"DIST":       12.25,
		},
		EpisodeReport: &EpisodeReport{Num: 4, Duration: 33.1, Success: true, WillPause: true},
		EpisodeState:  EpisodeRunning,
	}
	b, err := EncodeState(in)
	require.NoError(t, err)
	out, err := DecodeState(b)
	require.NoError(t, err)
	if diff := cmp.Diff(in, out); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, []string{"DIST", "FLAG_OWNER", "TAGGED"}, out.VarNames())
}

func TestDecodeStateIntegerVarsBecomeFloats(t *testing.T) {
	b, err := marshal(map[string]any{
		"vehicle_id": "felix", "NAV_X": 1, "NAV_Y": 2, "NAV_HEADING": 3, "MOOS_TIME": 4,
		"COUNT": 7,
	})
	require.NoError(t, err)
	s, err := DecodeState(b)
	require.NoError(t, err)
	v, ok := s.Var("COUNT")
	require.True(t, ok)
	require.Equal(t, 7.0, v)
}

func TestDecodeStateStructuredReport(t *testing.T) {
	b, err := marshal(map[string]any{
		"vehicle_id": "felix", "NAV_X": 1.0, "NAV_Y": 2.0, "NAV_HEADING": 3.0, "MOOS_TIME": 4.0,
		"episode_report": map[string]any{"NUM": 2, "DURATION": 5.5, "SUCCESS": true, "WILL_PAUSE": false},
	})
	require.NoError(t, err)
	s, err := DecodeState(b)
	require.NoError(t, err)
	require.Equal(t, &EpisodeReport{Num: 2, Duration: 5.5, Success: true}, s.EpisodeReport)
}

func TestDecodeStateValidation(t *testing.T) {
	base := func() map[string]any {
		return map[string]any{
			"vehicle_id": "felix", "NAV_X": 1.0, "NAV_Y": 2.0, "NAV_HEADING": 3.0, "MOOS_TIME": 4.0,
		}
	}
	tests := []struct {
		name  string
		edit  func(m map[string]any)
		field string
	}{
		{"missing id", func(m map[string]any) { delete(m, "vehicle_id") }, "vehicle_id"},
		{"empty id", func(m map[string]any) { m["vehicle_id"] = "" }, "vehicle_id"},
		{"numeric id", func(m map[string]any) { m["vehicle_id"] = 5 }, "vehicle_id"},
		{"missing nav_x", func(m map[string]any) { delete(m, "NAV_X") }, "NAV_X"},
		{"string heading", func(m map[string]any) { m["NAV_HEADING"] = "north" }, "NAV_HEADING"},
		{"bad report", func(m map[string]any) { m["episode_report"] = "NUM=x" }, "episode_report"},
		{"report wrong type", func(m map[string]any) { m["episode_report"] = 3 }, "episode_report"},
		{"state wrong type", func(m map[string]any) { m["episode_state"] = true }, "episode_state"},
		{"nested var", func(m map[string]any) { m["LIST"] = []any{1, 2} }, "LIST"},
		{"bad node report", func(m map[string]any) {
			m["NODE_REPORTS"] = map[string]any{"evan": map[string]any{"NAV_X": 1.0}}
		}, "NODE_REPORTS.evan.NAV_Y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := base()
			tt.edit(m)
			b, err := marshal(m)
			require.NoError(t, err)
			_, err = DecodeState(b)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			require.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDecodeStateRejectsNonMap(t *testing.T) {
	for _, payload := range [][]byte{nil, {0xF6}, {0x83, 0x01, 0x02, 0x03}, {0xFF, 0xFF}} {
		_, err := DecodeState(payload)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve, "payload %x", payload)
	}
}

func TestEncodeStateRejectsReservedVar(t *testing.T) {
	_, err := EncodeState(State{VehicleID: "felix", Vars: map[string]any{"NAV_X": 1.0}})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
