package mission

import (
	"slices"

	"marineops-bridge/internal/metrics"
	"marineops-bridge/internal/translog"
	"marineops-bridge/internal/wire"
)

// logTransition runs after a response has been sent. A transition-marked
// message closes the transition opened by the previous marked message of
// the same vehicle.
func (m *Manager) logTransition(msg *Message, in wire.Instruction) {
	if !m.cfg.Log {
		return
	}
	vid := msg.VehicleID
	if len(m.cfg.LogWhitelist) > 0 && !slices.Contains(m.cfg.LogWhitelist, vid) {
		return
	}
	w := m.transitionLog(vid)
	if w == nil {
		return
	}
	if !msg.IsTransition() {
		return
	}
	if prev, ok := m.lastState[vid]; ok {
		err := w.Write(wire.Transition{S1: prev, A: m.lastAct[vid], S2: msg.State})
		if err != nil {
			metrics.TransitionLogErrors.Inc()
			m.log.Warn().Err(err).Str("vehicle_id", vid).Msg("transition not logged")
		} else {
			metrics.TransitionsLogged.Inc()
		}
	}
	m.lastState[vid] = msg.State
	m.lastAct[vid] = in.Action
}

func (m *Manager) transitionLog(vid string) *translog.Writer {
	if w, ok := m.logs[vid]; ok {
		return w
	}
	if m.logFailed[vid] {
		return nil
	}
	path := m.dir.VehicleLogDir(m.cfg.Task, m.sessionID, vid)
	w, err := translog.Create(path, translog.Options{
		RotateEvery: m.cfg.RotateEvery,
		MaxPending:  m.cfg.MaxPending,
		Logger:      m.log.With().Str("vehicle_id", vid).Logger(),
	})
	if err != nil {
		m.logFailed[vid] = true
		m.log.Error().Err(err).Str("vehicle_id", vid).Msg("unable to create transition log, logging disabled for vehicle")
		return nil
	}
	m.log.Debug().Str("vehicle_id", vid).Str("path", path).Msg("transition log created")
	m.logs[vid] = w
	return w
}
