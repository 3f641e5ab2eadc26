// Package admin serves the HTTP status endpoints of a running bridge.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"marineops-bridge/internal/mission"
	"marineops-bridge/internal/sim"
)

// Bridge is the part of the mission manager the admin server reads.
type Bridge interface {
	SessionID() string
	QueueLen() int
	Snapshot() []mission.VehicleStatus
	ResetVehicle(id string, success bool) error
}

// Fleet reports simulated vehicles.
type Fleet interface {
	Status() []sim.VehicleStatus
}

// Server exposes health, vehicle and metrics endpoints.
type Server struct {
	bridge Bridge
	fleet  Fleet
	log    zerolog.Logger
	router chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithFleet adds the /fleet endpoint.
func WithFleet(f Fleet) Option {
	return func(s *Server) { s.fleet = f }
}

// WithLogger sets the request logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// NewServer serves status for a running bridge.
func NewServer(b Bridge, opts ...Option) *Server {
	return newServer(b, opts)
}

// NewFleetServer serves only simulator status.
func NewFleetServer(f Fleet, opts ...Option) *Server {
	return newServer(nil, append(opts, WithFleet(f)))
}

func newServer(b Bridge, opts []Option) *Server {
	s := &Server{bridge: b, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	if s.bridge != nil {
		r.Get("/vehicles", s.handleVehicles)
		r.Get("/vehicles/{id}", s.handleVehicle)
		r.Post("/vehicles/{id}/reset", s.handleReset)
	}
	if s.fleet != nil {
		r.Get("/fleet", s.handleFleet)
	}
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves on addr until ctx is done.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info().Str("addr", addr).Msg("admin server listening")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).Dur("took", time.Since(start)).Msg("admin request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"status": "ok"}
	if s.bridge != nil {
		body["session_id"] = s.bridge.SessionID()
		body["queue_len"] = s.bridge.QueueLen()
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleVehicles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bridge.Snapshot())
}

func (s *Server) handleVehicle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	for _, v := range s.bridge.Snapshot() {
		if v.ID == id {
			writeJSON(w, http.StatusOK, v)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown vehicle"})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	success := false
	if raw := r.URL.Query().Get("success"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "success must be a boolean"})
			return
		}
		success = v
	}
	if err := s.bridge.ResetVehicle(id, success); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleFleet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Status())
}
