package telemetry

// EpisodeWriter receives episode rows.
type EpisodeWriter interface {
	WriteEpisode(row EpisodeRow) error
}

// TransitionWriter receives transition rows.
type TransitionWriter interface {
	WriteTransition(row TransitionRow) error
}

type batchEpisodeWriter interface {
	WriteEpisodes(rows []EpisodeRow) error
}
