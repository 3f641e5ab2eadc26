package telemetry

import "errors"

// MultiWriter fans episode rows out to multiple writers.
type MultiWriter struct {
	writers []EpisodeWriter
}

// NewMultiWriter creates a new MultiWriter.
func NewMultiWriter(ws ...EpisodeWriter) *MultiWriter {
	return &MultiWriter{writers: ws}
}

// WriteEpisode sends an episode row to all writers. Every writer is tried
// even if an earlier one fails.
func (mw *MultiWriter) WriteEpisode(row EpisodeRow) error {
	var errs []error
	for _, w := range mw.writers {
		if err := w.WriteEpisode(row); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// WriteEpisodes sends multiple rows to all writers, using batch if supported.
func (mw *MultiWriter) WriteEpisodes(rows []EpisodeRow) error {
	var errs []error
	for _, w := range mw.writers {
		if bw, ok := w.(batchEpisodeWriter); ok {
			if err := bw.WriteEpisodes(rows); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		for _, r := range rows {
			if err := w.WriteEpisode(r); err != nil {
				errs = append(errs, err)
				break
			}
		}
	}
	return errors.Join(errs...)
}
