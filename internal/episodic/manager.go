// Package episodic drives a set of agents through training episodes on top
// of a mission manager. Each agent maps vehicle states to a comparable
// representation and only recomputes its action when that representation
// changes; unchanged states replay the previous action so every vehicle
// message is still answered.
package episodic

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"marineops-bridge/internal/metrics"
	"marineops-bridge/internal/mission"
	"marineops-bridge/internal/wire"
)

// DefaultTick bounds each wait for a vehicle message.
const DefaultTick = 100 * time.Millisecond

// Report is handed to agents alongside every decision.
type Report struct {
	CompletedEpisodes int `json:"completed_episodes"`
	// Success is set only when reporting the end of an episode.
	Success *bool `json:"success,omitempty"`
}

// Agent controls one vehicle.
type Agent[R comparable] interface {
	ID() string
	ObsToRpr(s wire.State) R
	RprToAct(rpr R, s wire.State, r Report) wire.Action
}

// EpisodeEnder is implemented by agents that want to be told when their
// vehicle starts a new episode.
type EpisodeEnder[R comparable] interface {
	EpisodeEnd(rpr R, s wire.State, r Report)
}

// Source delivers vehicle messages. *mission.Manager satisfies it.
type Source interface {
	WaitFor(ctx context.Context, ids ...string) error
	GetMessage(ctx context.Context) (*mission.Message, error)
}

// Config controls a training run.
type Config struct {
	// Episodes is the number of completed episodes to run for. Zero runs
	// until stopped.
	Episodes int
	// WaitFor lists vehicles, besides the agents' own, that must connect
	// before the first message is handled.
	WaitFor []string
	// Tick bounds each wait for a message and therefore how quickly Stop
	// is observed.
	Tick time.Duration
}

// Option configures a Manager.
type Option func(*options)

type options struct {
	log zerolog.Logger
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

type agentState[R comparable] struct {
	agent       Agent[R]
	endEpisode  func(R, wire.State, Report)
	lastRpr     R
	hasRpr      bool
	action      wire.Action
	lastEpisode *int
}

// Manager runs agents against a Source.
type Manager[R comparable] struct {
	cfg     Config
	log     zerolog.Logger
	agents  map[string]*agentState[R]
	waitFor []string

	completed atomic.Int64
	started   atomic.Bool
	stopOnce  sync.Once
	stopCh    chan struct{}
}

// New builds a manager for agents. Agent ids must be unique.
func New[R comparable](agents []Agent[R], cfg Config, opts ...Option) (*Manager[R], error) {
	if len(agents) == 0 {
		return nil, errors.New("episodic: no agents")
	}
	if cfg.Episodes < 0 {
		return nil, fmt.Errorf("episodic: negative episode target %d", cfg.Episodes)
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager[R]{
		cfg:     cfg,
		log:     o.log,
		agents:  make(map[string]*agentState[R], len(agents)),
		waitFor: slices.Clone(cfg.WaitFor),
		stopCh:  make(chan struct{}),
	}
	for _, a := range agents {
		id := a.ID()
		if _, dup := m.agents[id]; dup {
			return nil, fmt.Errorf("episodic: duplicate agent for vehicle %q", id)
		}
		st := &agentState[R]{agent: a}
		if e, ok := a.(EpisodeEnder[R]); ok {
			st.endEpisode = e.EpisodeEnd
		}
		m.agents[id] = st
		if !slices.Contains(m.waitFor, id) {
			m.waitFor = append(m.waitFor, id)
		}
	}
	return m, nil
}

// CompletedEpisodes is the number of episodes completed so far across all
// agents.
func (m *Manager[R]) CompletedEpisodes() int { return int(m.completed.Load()) }

// Stop asks Run to return. It is safe to call more than once.
func (m *Manager[R]) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Manager[R]) report() Report {
	return Report{CompletedEpisodes: m.CompletedEpisodes()}
}

func (m *Manager[R]) done() bool {
	return m.cfg.Episodes > 0 && m.CompletedEpisodes() >= m.cfg.Episodes
}

// Run waits for every vehicle and then answers messages until the episode
// target is reached, ctx is done or Stop is called. It must be called once.
func (m *Manager[R]) Run(ctx context.Context, src Source) error {
	if !m.started.CompareAndSwap(false, true) {
		panic("episodic: Run called twice")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	m.log.Info().Strs("vehicles", m.waitFor).Msg("waiting for vehicles")
	if err := src.WaitFor(ctx, m.waitFor...); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("wait for vehicles: %w", err)
	}
	m.log.Info().Int("episodes", m.cfg.Episodes).Msg("all vehicles present, starting")

	for !m.done() {
		tickCtx, tickCancel := context.WithTimeout(ctx, m.cfg.Tick)
		msg, err := src.GetMessage(tickCtx)
		tickCancel()
		switch {
		case err == nil:
			m.handle(msg)
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, context.DeadlineExceeded):
		default:
			return err
		}
	}
	m.log.Info().Int("completed", m.CompletedEpisodes()).Msg("episode target reached")
	return nil
}

func (m *Manager[R]) handle(msg *mission.Message) {
	st, ok := m.agents[msg.VehicleID]
	if !ok {
		msg.RequestNew()
		return
	}

	rpr := st.agent.ObsToRpr(msg.State)
	if !st.hasRpr || st.lastRpr != rpr {
		msg.MarkTransition()
		st.action = st.agent.RprToAct(rpr, msg.State, m.report())
	}

	if rep := msg.EpisodeReport; rep != nil && (st.lastEpisode == nil || *st.lastEpisode != rep.Num) {
		// The first report seen closes an episode that started before this
		// manager did, so the hook runs but the counter does not move.
		if st.lastEpisode != nil {
			m.completed.Add(1)
			metrics.EpisodesCompleted.Inc()
			m.log.Debug().Str("vehicle_id", msg.VehicleID).Int("episode", *st.lastEpisode).
				Bool("success", rep.Success).Msg("episode completed")
		}
		if st.endEpisode != nil {
			r := m.report()
			success := rep.Success
			r.Success = &success
			st.endEpisode(rpr, msg.State, r)
		}
		n := rep.Num
		st.lastEpisode = &n
	}
	st.lastRpr, st.hasRpr = rpr, true

	if err := msg.Act(st.action); err != nil {
		m.log.Warn().Err(err).Str("vehicle_id", msg.VehicleID).Msg("agent produced an invalid action")
		msg.RequestNew()
	}
}
