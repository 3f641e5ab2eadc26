package telemetry

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"marineops-bridge/internal/wire"
)

func TestFileWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.jsonl")
	fw, err := NewFileWriter(path)
	if err != nil {
		t.Fatalf("NewFileWriter: %v", err)
	}
	row := EpisodeRow{SessionID: "s", VehicleID: "felix", Num: 2, Success: true, DurationS: 12.5, Timestamp: time.Unix(0, 0).UTC()}
	if err := fw.WriteEpisodes([]EpisodeRow{row, row}); err != nil {
		t.Fatalf("WriteEpisodes: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := fw.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var got EpisodeRow
	if err := json.Unmarshal([]byte(lines[0]), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != row {
		t.Fatalf("unexpected row: %#v", got)
	}
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	tr := wire.Transition{
		S1: wire.State{VehicleID: "evan", NavX: 1},
		A:  wire.Action{Speed: 2, Course: 3},
		S2: wire.State{VehicleID: "evan", NavX: 2, MOOSTime: 4},
	}
	if err := w.WriteTransition(NewTransitionRow(5, tr)); err != nil {
		t.Fatalf("WriteTransition: %v", err)
	}
	var got TransitionRow
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.VehicleID != "evan" || got.Index != 5 || got.Action.Course != 3 || got.Elapsed() != 4 {
		t.Fatalf("unexpected row: %+v", got)
	}
}

type failWriter struct{ calls int }

func (f *failWriter) WriteEpisode(EpisodeRow) error {
	f.calls++
	return errors.New("down")
}

type countWriter struct{ rows []EpisodeRow }

func (c *countWriter) WriteEpisode(r EpisodeRow) error {
	c.rows = append(c.rows, r)
	return nil
}

func TestMultiWriterContinuesPastFailures(t *testing.T) {
	fail := &failWriter{}
	ok := &countWriter{}
	mw := NewMultiWriter(fail, ok)

	if err := mw.WriteEpisode(EpisodeRow{Num: 1}); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(ok.rows) != 1 {
		t.Fatalf("second writer not called")
	}
	if err := mw.WriteEpisodes([]EpisodeRow{{Num: 2}, {Num: 3}}); err == nil {
		t.Fatalf("expected joined error")
	}
	if len(ok.rows) != 3 || fail.calls != 2 {
		t.Fatalf("unexpected fan-out: ok=%d fail=%d", len(ok.rows), fail.calls)
	}
}
