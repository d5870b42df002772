// Package realtime delivers notification payloads to live sessions.
//
// Delivery is best effort and at most once: a payload for a user without a
// registered session, or for a session whose buffer is full, is dropped.
// Persisted notifications remain available through the pull API.
package realtime

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"github.com/anonto42/threadline/backend/internal/metrics"
)

// Sink is one live session. Send must not block; it reports whether the
// message was queued.
type Sink interface {
	Send(msg []byte) bool
}

// Gateway routes user ids to their live sessions. RegisterSession and
// UnregisterSession are its only mutators.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]uint
	users    map[uint]map[string]Sink
}

// NewGateway creates an empty Gateway
func NewGateway() *Gateway {
	return &Gateway{
		sessions: make(map[string]uint),
		users:    make(map[uint]map[string]Sink),
	}
}

// RegisterSession attaches sink to userID under sessionID. Registering a
// known sessionID again moves it to the new user and sink.
func (g *Gateway) RegisterSession(userID uint, sessionID string, sink Sink) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.sessions[sessionID]; ok {
		g.detach(prev, sessionID)
	} else {
		metrics.LiveSessions.Inc()
	}
	g.sessions[sessionID] = userID
	if g.users[userID] == nil {
		g.users[userID] = make(map[string]Sink)
	}
	g.users[userID][sessionID] = sink
}

// UnregisterSession forgets sessionID. Unknown ids are ignored.
func (g *Gateway) UnregisterSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	userID, ok := g.sessions[sessionID]
	if !ok {
		return
	}
	delete(g.sessions, sessionID)
	g.detach(userID, sessionID)
	metrics.LiveSessions.Dec()
}

func (g *Gateway) detach(userID uint, sessionID string) {
	set := g.users[userID]
	delete(set, sessionID)
	if len(set) == 0 {
		delete(g.users, userID)
	}
}

// Push serializes payload once and offers it to every session of userID.
func (g *Gateway) Push(_ context.Context, userID uint, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	g.Deliver(userID, raw)
	return nil
}

// Deliver offers an already serialized message to the sessions of userID and
// returns how many accepted it.
func (g *Gateway) Deliver(userID uint, msg []byte) int {
	g.mu.RLock()
	sinks := make([]Sink, 0, len(g.users[userID]))
	for _, s := range g.users[userID] {
		sinks = append(sinks, s)
	}
	g.mu.RUnlock()

	if len(sinks) == 0 {
		metrics.LivePushes.WithLabelValues("dropped").Inc()
		return 0
	}
	delivered := 0
	for _, s := range sinks {
		if s.Send(msg) {
			delivered++
			metrics.LivePushes.WithLabelValues("delivered").Inc()
		} else {
			metrics.LivePushes.WithLabelValues("dropped").Inc()
		}
	}
	return delivered
}

// SessionCount returns the number of live sessions of userID.
func (g *Gateway) SessionCount(userID uint) int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.users[userID])
}
