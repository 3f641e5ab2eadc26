package telemetry

import (
	"encoding/json"
	"io"
	"os"
	"sync"
)

// JSONWriter prints episodes and transitions as JSON lines.
type JSONWriter struct {
	mu  sync.Mutex
	out io.Writer
	enc *json.Encoder
}

// NewJSONWriter creates a JSONWriter writing to out, or os.Stdout when out
// is nil.
func NewJSONWriter(out io.Writer) *JSONWriter {
	if out == nil {
		out = os.Stdout
	}
	return &JSONWriter{out: out, enc: json.NewEncoder(out)}
}

// WriteEpisode outputs an episode row.
func (w *JSONWriter) WriteEpisode(row EpisodeRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(row)
}

// WriteEpisodes outputs multiple episode rows.
func (w *JSONWriter) WriteEpisodes(rows []EpisodeRow) error {
	for _, r := range rows {
		if err := w.WriteEpisode(r); err != nil {
			return err
		}
	}
	return nil
}

// WriteTransition outputs a transition row.
func (w *JSONWriter) WriteTransition(row TransitionRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(row)
}
