package telemetry

import (
	"context"
	"time"

	"marineops-bridge/internal/translog"
)

// ReplayLog replays the transitions of r to writer in log order. A speed
// >0 paces playback by the MOOS time between consecutive states, divided
// by speed. If speed <= 0, no artificial delay is inserted.
func ReplayLog(ctx context.Context, r *translog.Reader, writer TransitionWriter, speed float64) (int, error) {
	var (
		index   int
		prev    float64
		hasPrev bool
	)
	for r.HasMore() {
		batch, err := r.Read(100)
		if err != nil {
			return index, err
		}
		for _, t := range batch {
			row := NewTransitionRow(index, t)
			if hasPrev && speed > 0 {
				diff := time.Duration((row.S2.MOOSTime - prev) / speed * float64(time.Second))
				if diff > 0 {
					select {
					case <-time.After(diff):
					case <-ctx.Done():
						return index, ctx.Err()
					}
				}
			}
			if err := ctx.Err(); err != nil {
				return index, err
			}
			if err := writer.WriteTransition(row); err != nil {
				return index, err
			}
			prev, hasPrev = row.S2.MOOSTime, true
			index++
		}
	}
	return index, nil
}

// ReplayLogDir opens a transition log directory and replays it.
func ReplayLogDir(ctx context.Context, dir string, writer TransitionWriter, speed float64) (int, error) {
	r, err := translog.Open(dir)
	if err != nil {
		return 0, err
	}
	return ReplayLog(ctx, r, writer, speed)
}
