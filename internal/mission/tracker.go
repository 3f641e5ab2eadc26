package mission

import (
	"context"
	"sort"
	"sync"
	"time"

	"marineops-bridge/internal/wire"
)

// VehicleStatus is a point-in-time view of one vehicle.
type VehicleStatus struct {
	ID           string            `json:"id"`
	Connected    bool              `json:"connected"`
	EpisodeState wire.EpisodeState `json:"episode_state,omitempty"`
	EpisodeNum   *int              `json:"episode_num,omitempty"`
	Messages     int               `json:"messages"`
	LastSeen     time.Time         `json:"last_seen"`
}

// tracker holds per-vehicle presence and episode lifecycle data. It is
// written by the Run goroutine and read by consumers.
type tracker struct {
	mu       sync.RWMutex
	order    []string
	vehicles map[string]*VehicleStatus
	// arrived is closed and replaced whenever a new vehicle appears.
	arrived chan struct{}
}

func newTracker() *tracker {
	return &tracker{
		vehicles: make(map[string]*VehicleStatus),
		arrived:  make(chan struct{}),
	}
}

// observe records a state from a vehicle.
func (t *tracker) observe(s wire.State, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v, ok := t.vehicles[s.VehicleID]
	if !ok {
		v = &VehicleStatus{ID: s.VehicleID}
		t.vehicles[s.VehicleID] = v
		t.order = append(t.order, s.VehicleID)
		close(t.arrived)
		t.arrived = make(chan struct{})
	}
	v.Connected = true
	v.Messages++
	v.LastSeen = at
	v.EpisodeState = s.EpisodeState
	if s.EpisodeReport != nil {
		n := s.EpisodeReport.Num
		v.EpisodeNum = &n
	}
}

func (t *tracker) setConnected(id string, connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.vehicles[id]; ok {
		v.Connected = connected
	}
}

func (t *tracker) known(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.vehicles[id]
	return ok
}

func (t *tracker) present(ids []string) (bool, <-chan struct{}) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range ids {
		if _, ok := t.vehicles[id]; !ok {
			return false, t.arrived
		}
	}
	return true, nil
}

func (t *tracker) waitFor(ctx context.Context, stopped <-chan struct{}, ids []string) error {
	for {
		ok, arrived := t.present(ids)
		if ok {
			return nil
		}
		select {
		case <-arrived:
		case <-ctx.Done():
			return ctx.Err()
		case <-stopped:
			return ErrStopped
		}
	}
}

func (t *tracker) episodeState(id string) (wire.EpisodeState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.vehicles[id]
	if !ok {
		return "", false
	}
	return v.EpisodeState, true
}

func (t *tracker) episodeNums() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.vehicles))
	for id, v := range t.vehicles {
		if v.EpisodeNum != nil {
			out[id] = *v.EpisodeNum
		}
	}
	return out
}

func (t *tracker) ids() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.order...)
}

func (t *tracker) snapshot() []VehicleStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]VehicleStatus, 0, len(t.vehicles))
	for _, v := range t.vehicles {
		cp := *v
		if v.EpisodeNum != nil {
			n := *v.EpisodeNum
			cp.EpisodeNum = &n
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
