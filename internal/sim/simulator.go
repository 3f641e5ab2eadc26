// Simulator driving a fleet of vehicles against a bridge
package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"marineops-bridge/internal/bridge"
	"marineops-bridge/internal/scenario"
	"marineops-bridge/internal/wire"
)

// Config controls a Simulator.
type Config struct {
	// Addr is the bridge address every vehicle dials.
	Addr string
	// Tick is the longest a vehicle waits for an instruction before
	// advancing its kinematics.
	Tick time.Duration
	// TimeScale multiplies wall time into vehicle time.
	TimeScale float64
	// SensorNoise is the standard deviation, in metres, added to reported
	// positions.
	SensorNoise float64
	Seed        int64
	Vehicles    []VehicleConfig
	Scenario    *scenario.Scenario
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the simulator logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(s *Simulator) { s.now = now }
}

// Simulator runs every configured vehicle as an independent bridge client.
type Simulator struct {
	cfg      Config
	log      zerolog.Logger
	now      func() time.Time
	start    time.Time
	vehicles []*Vehicle

	mu   sync.Mutex
	rand *rand.Rand
}

// NewSimulator builds the fleet. The first scenario phase is active.
func NewSimulator(cfg Config, opts ...Option) (*Simulator, error) {
	if len(cfg.Vehicles) == 0 {
		return nil, errors.New("sim: no vehicles configured")
	}
	if cfg.Scenario == nil {
		sc := scenario.BuiltIn()["harbor-transit"]
		cfg.Scenario = &sc
	}
	if err := cfg.Scenario.Validate(); err != nil {
		return nil, err
	}
	if cfg.Addr == "" {
		cfg.Addr = "localhost" + bridge.DefaultAddr
	}
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}
	if cfg.TimeScale <= 0 {
		cfg.TimeScale = 1
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s := &Simulator{
		cfg:  cfg,
		log:  zerolog.Nop(),
		now:  time.Now,
		rand: rand.New(rand.NewSource(seed)),
	}
	for _, opt := range opts {
		opt(s)
	}
	seen := make(map[string]bool)
	for _, vc := range cfg.Vehicles {
		if vc.ID == "" || seen[vc.ID] {
			return nil, fmt.Errorf("sim: invalid or duplicate vehicle id %q", vc.ID)
		}
		seen[vc.ID] = true
		s.vehicles = append(s.vehicles, newVehicle(vc, cfg.Scenario))
	}
	return s, nil
}

// Run connects every vehicle and drives them until ctx is done. A vehicle
// whose connection fails stops the whole fleet.
func (s *Simulator) Run(ctx context.Context) error {
	s.start = s.now()
	s.log.Info().Str("addr", s.cfg.Addr).Int("vehicles", len(s.vehicles)).
		Str("scenario", s.cfg.Scenario.Name).Msg("starting simulator")

	g, ctx := errgroup.WithContext(ctx)
	for i, v := range s.vehicles {
		auto := s.cfg.Vehicles[i].AutoStart
		g.Go(func() error { return s.drive(ctx, v, auto) })
	}
	err := g.Wait()
	s.log.Info().Msg("stopping simulator")
	return err
}

// clock returns vehicle time in seconds since Run.
func (s *Simulator) clock() float64 {
	return s.now().Sub(s.start).Seconds() * s.cfg.TimeScale
}

func (s *Simulator) noise() float64 {
	if s.cfg.SensorNoise <= 0 {
		return 0
	}
	return s.rand.NormFloat64() * s.cfg.SensorNoise
}

func (s *Simulator) drive(ctx context.Context, v *Vehicle, autoStart bool) error {
	log := s.log.With().Str("vehicle_id", v.ID).Logger()
	c, err := bridge.Dial(ctx, s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("vehicle %s: %w", v.ID, err)
	}
	defer c.Close()
	log.Info().Str("local", c.LocalAddr()).Msg("vehicle connected")

	s.mu.Lock()
	last := s.clock()
	if autoStart {
		v.control("type=start", last)
	}
	s.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil
		}
		in, typ, ok, err := c.Receive(s.cfg.Tick)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("vehicle %s: %w", v.ID, err)
		}

		s.mu.Lock()
		now := s.clock()
		v.step(now-last, now, now)
		last = now
		var (
			send  bool
			state wire.State
		)
		if ok {
			v.apply(in, typ, now)
			if in.CtrlMsg == wire.CtrlSendState {
				send = true
				state = v.snapshot(now, s.noise)
			}
		}
		s.mu.Unlock()

		if send {
			if err := c.SendState(state); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("vehicle %s: %w", v.ID, err)
			}
			log.Trace().Float64("nav_x", state.NavX).Float64("nav_y", state.NavY).Msg("state sent")
		}
	}
}

// Status returns the current state of every vehicle.
func (s *Simulator) Status() []VehicleStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]VehicleStatus, len(s.vehicles))
	for i, v := range s.vehicles {
		out[i] = v.status()
	}
	return out
}
