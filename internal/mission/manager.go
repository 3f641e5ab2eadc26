// Package mission routes vehicle states from the bridge to a consumer and
// the consumer's responses back to the vehicles.
//
// A single goroutine (Run) owns every socket. Consumers only touch the
// FIFO message queue and the response slot of each Message. A connection
// is not read again until the message it delivered has been answered, so
// a vehicle never has two unanswered states.
package mission

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marineops-bridge/internal/bridge"
	"marineops-bridge/internal/logdir"
	"marineops-bridge/internal/metrics"
	"marineops-bridge/internal/telemetry"
	"marineops-bridge/internal/translog"
	"marineops-bridge/internal/wire"
)

// ErrStopped is returned by blocking calls once the manager has stopped.
var ErrStopped = errors.New("mission: manager stopped")

// Config controls a Manager.
type Config struct {
	// Addr is the bridge listen address.
	Addr string
	// Task names the subdirectory transition logs are written under.
	Task string
	// OutputDir is the log root. Required when Log is set.
	OutputDir string
	// Log enables transition logging.
	Log bool
	// LogWhitelist limits logging to the named vehicles when non-empty.
	LogWhitelist []string
	// ImmediateTransition marks every message as a transition.
	ImmediateTransition bool
	// IDSuffix is appended to the generated session id.
	IDSuffix string
	// RotateEvery is the transition log chunk size.
	RotateEvery int
	// MaxPending bounds unflushed records per vehicle log. Zero picks the
	// log default.
	MaxPending int
	// PollInterval is the pause between polling passes.
	PollInterval time.Duration
	// WriteTimeout bounds each instruction write.
	WriteTimeout time.Duration
}

// DefaultConfig returns the defaults used by the CLI.
func DefaultConfig() Config {
	return Config{
		Addr:                bridge.DefaultAddr,
		Task:                "default",
		OutputDir:           "generated_files",
		Log:                 true,
		ImmediateTransition: true,
		RotateEvery:         translog.DefaultRotateEvery,
		PollInterval:        time.Millisecond,
		WriteTimeout:        5 * time.Second,
	}
}

// Option configures optional collaborators.
type Option func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithEpisodeWriter forwards every newly reported episode to w.
func WithEpisodeWriter(w telemetry.EpisodeWriter) Option {
	return func(m *Manager) { m.episodes = w }
}

// session is the router's view of one connection.
type session struct {
	conn        *bridge.Conn
	vehicleID   string
	outstanding *Message
	closed      bool
}

type resetRequest struct {
	vehicleID string
	success   bool
}

// Manager is the session router.
type Manager struct {
	cfg       Config
	log       zerolog.Logger
	server    *bridge.Server
	dir       *logdir.Directory
	sessionID string
	logPath   string
	episodes  telemetry.EpisodeWriter

	queue   *queue
	tracker *tracker

	resetMu sync.Mutex
	resets  []resetRequest

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}

	// Owned by the Run goroutine.
	sessions  []*session
	byVehicle map[string]*session
	live      []*Message
	logs      map[string]*translog.Writer
	logFailed map[string]bool
	lastState map[string]wire.State
	lastAct   map[string]wire.Action
	lastEp    map[string]int
}

// New binds the bridge listener and registers a session id. A bind
// failure is returned immediately.
func New(cfg Config, opts ...Option) (*Manager, error) {
	def := DefaultConfig()
	if cfg.Addr == "" {
		cfg.Addr = def.Addr
	}
	if cfg.Task == "" {
		cfg.Task = def.Task
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.RotateEvery <= 0 {
		cfg.RotateEvery = def.RotateEvery
	}
	if cfg.Log && cfg.OutputDir == "" {
		return nil, errors.New("mission: logging requires an output directory")
	}

	m := &Manager{
		cfg:       cfg,
		log:       zerolog.Nop(),
		queue:     newQueue(),
		tracker:   newTracker(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		byVehicle: make(map[string]*session),
		logs:      make(map[string]*translog.Writer),
		logFailed: make(map[string]bool),
		lastState: make(map[string]wire.State),
		lastAct:   make(map[string]wire.Action),
		lastEp:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.sessionID = logdir.NewSessionID(time.Now(), cfg.IDSuffix)
	if cfg.OutputDir != "" {
		dir, err := logdir.Open(cfg.OutputDir, false)
		if err != nil {
			return nil, err
		}
		if m.sessionID, err = dir.Registry.Register(m.sessionID); err != nil {
			return nil, err
		}
		m.dir = dir
		if cfg.Log {
			taskDir, err := dir.TaskDir(cfg.Task)
			if err != nil {
				return nil, err
			}
			m.logPath = filepath.Join(taskDir, m.sessionID)
		}
	}

	server, err := bridge.Listen(cfg.Addr,
		bridge.WithWriteTimeout(cfg.WriteTimeout),
		bridge.WithLogger(m.log),
	)
	if err != nil {
		return nil, err
	}
	m.server = server
	m.log = m.log.With().Str("session_id", m.sessionID).Logger()
	return m, nil
}

// SessionID is the registered id of this manager's session.
func (m *Manager) SessionID() string { return m.sessionID }

// Addr is the bound bridge address.
func (m *Manager) Addr() string { return m.server.Addr().String() }

// LogPath is the directory holding this session's transition logs, or ""
// when logging is disabled.
func (m *Manager) LogPath() string { return m.logPath }

// ModelsDir returns the per-session model directory, or "" without a log
// root.
func (m *Manager) ModelsDir() string {
	if m.dir == nil {
		return ""
	}
	return filepath.Join(m.dir.ModelsDir(), m.sessionID)
}

// Run drives the router until ctx is done or Stop is called. It must be
// called once. Sockets and transition logs are closed before it returns.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		panic("mission: Run called twice or after Stop")
	}
	defer m.shutdown()

	m.log.Info().Str("addr", m.Addr()).Msg("mission manager listening")
	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if err := m.poll(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-m.stopCh:
			return nil
		case <-ticker.C:
		}
	}
}

// Stop asks Run to return after its current pass. Blocking consumer calls
// return ErrStopped once the queue is drained.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started.CompareAndSwap(false, true) {
		m.shutdown()
	}
}

// Done is closed once the manager has shut down.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) shutdown() {
	for _, s := range m.sessions {
		s.closed = true
	}
	if err := m.server.Close(); err != nil {
		m.log.Warn().Err(err).Msg("close bridge listener")
	}
	for vehicle, w := range m.logs {
		if err := w.Close(); err != nil {
			m.log.Error().Err(err).Str("vehicle_id", vehicle).Msg("close transition log")
		}
	}
	metrics.VehiclesConnected.Set(0)
	metrics.AwaitingResponse.Set(0)
	m.stopOnce.Do(func() { close(m.stopCh) })
	close(m.done)
	m.log.Info().Msg("mission manager stopped")
}

// GetMessage blocks until a vehicle message is available.
func (m *Manager) GetMessage(ctx context.Context) (*Message, error) {
	msg, err := m.queue.pop(ctx, m.stopCh)
	metrics.QueueDepth.Set(float64(m.queue.len()))
	return msg, err
}

// TryGetMessage returns the next message or nil without blocking.
func (m *Manager) TryGetMessage() *Message {
	msg := m.queue.tryPop()
	metrics.QueueDepth.Set(float64(m.queue.len()))
	return msg
}

// QueueLen is the number of messages waiting for the consumer.
func (m *Manager) QueueLen() int { return m.queue.len() }

// ArePresent reports whether every named vehicle has sent a message.
func (m *Manager) ArePresent(ids ...string) bool {
	ok, _ := m.tracker.present(ids)
	return ok
}

// WaitFor blocks until every named vehicle has sent a message.
func (m *Manager) WaitFor(ctx context.Context, ids ...string) error {
	return m.tracker.waitFor(ctx, m.stopCh, ids)
}

// EpisodeState returns the last episode manager state reported by a
// vehicle. ok is false for a vehicle that was never seen.
func (m *Manager) EpisodeState(id string) (wire.EpisodeState, bool) {
	return m.tracker.episodeState(id)
}

// EpisodeNums returns the last reported episode number of every vehicle
// that has reported one.
func (m *Manager) EpisodeNums() map[string]int {
	return m.tracker.episodeNums()
}

// Vehicles lists every vehicle seen, in order of first contact.
func (m *Manager) Vehicles() []string { return m.tracker.ids() }

// VehicleCount is the number of distinct vehicles seen.
func (m *Manager) VehicleCount() int { return len(m.tracker.ids()) }

// Snapshot returns the status of every vehicle seen. A vehicle whose socket
// fails is reported disconnected on the next polling pass, including while
// its message awaits a response.
func (m *Manager) Snapshot() []VehicleStatus { return m.tracker.snapshot() }

// ResetVehicle queues an out-of-band reset for a vehicle. The reset is a
// must-post: it does not answer the vehicle's outstanding message.
func (m *Manager) ResetVehicle(id string, success bool) error {
	if !m.tracker.known(id) {
		return fmt.Errorf("mission: reset for unknown vehicle %q", id)
	}
	m.resetMu.Lock()
	m.resets = append(m.resets, resetRequest{vehicleID: id, success: success})
	m.resetMu.Unlock()
	return nil
}

// poll runs one pass: accept, read from idle connections, flush
// responses and resets. Only a listener failure is returned.
func (m *Manager) poll() error {
	for {
		conn, err := m.server.Accept()
		if err != nil {
			return fmt.Errorf("bridge listener failed: %w", err)
		}
		if conn == nil {
			break
		}
		s := &session{conn: conn}
		m.sessions = append(m.sessions, s)
		metrics.ConnectionsAccepted.Inc()
		m.log.Info().Str("conn_id", conn.ID()).Str("remote", conn.RemoteAddr()).Msg("vehicle connected")
		m.send(s, wire.TypeCtrl, wire.RequestState)
	}

	for _, s := range m.sessions {
		if s.closed {
			continue
		}
		if s.outstanding != nil {
			// The reader notices a hangup even while the vehicle waits on
			// a response; its queued message stays answerable.
			if s.conn.Failed() {
				m.closeSession(s, "disconnect", bridge.ErrConnDead)
			}
			continue
		}
		f, err := m.server.Listen(s.conn)
		if err != nil {
			reason := "disconnect"
			var pe *wire.ProtocolError
			if errors.As(err, &pe) {
				reason = "protocol"
			}
			m.closeSession(s, reason, err)
			continue
		}
		if f != nil {
			m.handleFrame(s, *f)
		}
	}

	m.flushResponses()
	m.flushResets()
	m.pruneSessions()
	metrics.QueueDepth.Set(float64(m.queue.len()))
	metrics.AwaitingResponse.Set(float64(len(m.live)))
	return nil
}

func (m *Manager) handleFrame(s *session, f wire.Frame) {
	if f.Type != wire.TypeState {
		m.closeSession(s, "protocol", fmt.Errorf("unexpected %s frame from vehicle", f.Type))
		return
	}
	st, err := wire.DecodeState(f.Payload)
	if err != nil {
		metrics.ValidationErrors.Inc()
		m.closeSession(s, "validation", err)
		return
	}

	switch {
	case s.vehicleID == "":
		m.identify(s, st.VehicleID)
	case s.vehicleID != st.VehicleID:
		m.closeSession(s, "identity", fmt.Errorf("vehicle id changed from %q to %q", s.vehicleID, st.VehicleID))
		return
	}

	now := time.Now()
	m.tracker.observe(st, now)
	m.recordEpisode(st, now)

	msg := newMessage(s, st, m.cfg.ImmediateTransition)
	msg.Received = now
	s.outstanding = msg
	m.live = append(m.live, msg)
	m.queue.push(msg)
	metrics.MessagesReceived.Inc()
}

// identify binds a connection to a vehicle. A vehicle that reconnects
// starts a fresh session and its stale connection is closed.
func (m *Manager) identify(s *session, vehicleID string) {
	if stale, ok := m.byVehicle[vehicleID]; ok && stale != s && !stale.closed {
		m.log.Warn().Str("vehicle_id", vehicleID).Str("stale_conn", stale.conn.ID()).
			Str("conn_id", s.conn.ID()).Msg("vehicle reconnected, closing stale connection")
		m.closeSession(stale, "superseded", nil)
	}
	s.vehicleID = vehicleID
	m.byVehicle[vehicleID] = s
	m.log.Info().Str("vehicle_id", vehicleID).Str("conn_id", s.conn.ID()).Msg("vehicle identified")
	m.updateConnected()
}

// recordEpisode forwards a report to the episode sink the first time its
// number is seen for a vehicle.
func (m *Manager) recordEpisode(st wire.State, at time.Time) {
	if st.EpisodeReport == nil || m.episodes == nil {
		return
	}
	if last, ok := m.lastEp[st.VehicleID]; ok && last == st.EpisodeReport.Num {
		return
	}
	m.lastEp[st.VehicleID] = st.EpisodeReport.Num
	row := telemetry.EpisodeRow{
		SessionID:    m.sessionID,
		VehicleID:    st.VehicleID,
		Num:          st.EpisodeReport.Num,
		Success:      st.EpisodeReport.Success,
		DurationS:    st.EpisodeReport.Duration,
		WillPause:    st.EpisodeReport.WillPause,
		EpisodeState: string(st.EpisodeState),
		MOOSTime:     st.MOOSTime,
		Timestamp:    at,
	}
	if err := m.episodes.WriteEpisode(row); err != nil {
		m.log.Warn().Err(err).Str("vehicle_id", st.VehicleID).Int("episode", row.Num).Msg("episode sink write failed")
	}
}

func (m *Manager) flushResponses() {
	remaining := m.live[:0]
	for _, msg := range m.live {
		s := msg.sess
		if s.closed {
			continue
		}
		in, t, ok := msg.Response()
		if !ok {
			remaining = append(remaining, msg)
			continue
		}
		s.outstanding = nil
		if !m.send(s, t, in) {
			continue
		}
		m.logTransition(msg, in)
	}
	for i := len(remaining); i < len(m.live); i++ {
		m.live[i] = nil
	}
	m.live = remaining
}

func (m *Manager) flushResets() {
	m.resetMu.Lock()
	resets := m.resets
	m.resets = nil
	m.resetMu.Unlock()

	for _, r := range resets {
		s, ok := m.byVehicle[r.vehicleID]
		if !ok || s.closed {
			m.log.Warn().Str("vehicle_id", r.vehicleID).Msg("dropping reset for disconnected vehicle")
			continue
		}
		m.send(s, wire.TypeMustPost, wire.Reset(r.success))
	}
}

// send writes an instruction; a failure closes the session.
func (m *Manager) send(s *session, t wire.Type, in wire.Instruction) bool {
	payload, err := wire.EncodeInstruction(in)
	if err != nil {
		m.log.Error().Err(err).Str("vehicle_id", s.vehicleID).Msg("encode instruction")
		return false
	}
	if err := m.server.Send(s.conn, wire.Frame{Type: t, Payload: payload}); err != nil {
		m.closeSession(s, "send", err)
		return false
	}
	metrics.RecordResponse(t.String())
	return true
}

func (m *Manager) closeSession(s *session, reason string, cause error) {
	if s.closed {
		return
	}
	s.closed = true
	s.outstanding = nil
	m.server.Drop(s.conn)
	metrics.RecordDrop(reason)

	ev := m.log.Info()
	if reason != "disconnect" && reason != "superseded" {
		ev = m.log.Warn()
	}
	ev.Err(cause).Str("conn_id", s.conn.ID()).Str("vehicle_id", s.vehicleID).Str("reason", reason).
		Msg("vehicle connection closed")

	if s.vehicleID != "" && m.byVehicle[s.vehicleID] == s {
		delete(m.byVehicle, s.vehicleID)
		m.tracker.setConnected(s.vehicleID, false)
	}
	m.updateConnected()
}

func (m *Manager) pruneSessions() {
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if !s.closed {
			kept = append(kept, s)
		}
	}
	for i := len(kept); i < len(m.sessions); i++ {
		m.sessions[i] = nil
	}
	m.sessions = kept
}

func (m *Manager) updateConnected() {
	metrics.VehiclesConnected.Set(float64(len(m.byVehicle)))
}
