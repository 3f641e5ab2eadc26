package mission

import (
	"fmt"
	"math"
	"sync"
	"time"

	"marineops-bridge/internal/wire"
)

// Message is one vehicle state delivered to the consumer. Exactly one
// response must be set on it; the vehicle sends nothing else until that
// response has been delivered.
type Message struct {
	VehicleID     string
	State         wire.State
	EpisodeReport *wire.EpisodeReport
	EpisodeState  wire.EpisodeState
	Received      time.Time

	sess *session

	mu         sync.Mutex
	response   *wire.Instruction
	frameType  wire.Type
	transition bool
}

// NewMessage wraps a state that did not arrive over a bridge connection.
// Responses set on it are recorded but never sent.
func NewMessage(s wire.State) *Message {
	return newMessage(nil, s, false)
}

func newMessage(sess *session, s wire.State, transition bool) *Message {
	return &Message{
		VehicleID:     s.VehicleID,
		State:         s,
		EpisodeReport: s.EpisodeReport,
		EpisodeState:  s.EpisodeState,
		Received:      time.Now(),
		sess:          sess,
		transition:    transition,
	}
}

// Act responds with a motion decision and asks for the next state.
func (m *Message) Act(a wire.Action) error {
	for _, f := range []struct {
		name string
		v    float64
	}{{wire.KeySpeed, a.Speed}, {wire.KeyCourse, a.Course}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return &wire.ValidationError{Field: f.name, Reason: "must be finite"}
		}
	}
	posts := make(map[string]string, len(a.Posts))
	for k, v := range a.Posts {
		posts[k] = v
	}
	a.Posts = posts
	m.respond(a.WithCtrl(wire.CtrlSendState), wire.TypeAction)
	return nil
}

// Start responds by starting an episode on the vehicle.
func (m *Message) Start() { m.respond(wire.Start, wire.TypeCtrl) }

// Pause responds by pausing the vehicle's episode manager after the
// current episode.
func (m *Message) Pause() { m.respond(wire.Pause, wire.TypeCtrl) }

// Stop responds by hard-stopping the current episode.
func (m *Message) Stop() { m.respond(wire.Stop, wire.TypeCtrl) }

// RequestNew responds by asking for another state without acting.
func (m *Message) RequestNew() { m.respond(wire.RequestState, wire.TypeCtrl) }

func (m *Message) respond(in wire.Instruction, t wire.Type) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.response != nil {
		panic(fmt.Sprintf("mission: response already set for message from %s", m.VehicleID))
	}
	m.response = &in
	m.frameType = t
}

// Response returns the response set on the message, if any.
func (m *Message) Response() (wire.Instruction, wire.Type, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.response == nil {
		return wire.Instruction{}, 0, false
	}
	return *m.response, m.frameType, true
}

// Responded reports whether a response has been set.
func (m *Message) Responded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.response != nil
}

// MarkTransition flags the message as the start of a new logical state.
func (m *Message) MarkTransition() {
	m.mu.Lock()
	m.transition = true
	m.mu.Unlock()
}

// IsTransition reports whether the message was flagged as a transition.
func (m *Message) IsTransition() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transition
}
