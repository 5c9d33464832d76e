package router

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetscribe/realtime/src/conn"
	"github.com/meetscribe/realtime/src/types"
)

// Deps are the collaborators the router's handlers call out to. Cache
// and Notifier are required; Translator and Session may be nil, in
// which case handlers fall back to literal text and skip logout.
type Deps struct {
	Cache      types.Invalidator
	Notifier   types.Notifier
	Translator types.Translator
	Session    types.Session
}

// Router consumes inbound frames from the connection manager, parses
// them, keeps the most recent message, and dispatches by type to
// side-effecting handlers. It never writes to the socket and never
// mutates connection state.
type Router struct {
	deps   Deps
	logger zerolog.Logger
	id     string

	mu   sync.RWMutex
	last *types.Message
}

// New creates a message router.
func New(deps Deps, logger zerolog.Logger) *Router {
	return &Router{
		deps:   deps,
		logger: logger.With().Str("component", "realtime-router").Logger(),
		id:     "router-" + uuid.New().String()[:8],
	}
}

// Attach subscribes the router to the manager's inbound frames.
func (r *Router) Attach(m *conn.Manager) {
	m.OnMessage(r.id, r.HandleFrame)
}

// Detach unsubscribes the router from the manager.
func (r *Router) Detach(m *conn.Manager) {
	m.RemoveOnMessage(r.id)
}

// HandleFrame processes one raw inbound frame. Malformed frames are
// logged and dropped; nothing here panics or propagates errors.
func (r *Router) HandleFrame(frame []byte) {
	var msg types.Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		r.logger.Error().Err(err).Msg("dropping malformed frame")
		return
	}

	r.mu.Lock()
	r.last = &msg
	r.mu.Unlock()

	switch msg.Type {
	case types.TypeTaskProgress:
		r.handleTaskProgress(msg)
	case types.TypeNotification:
		r.handleNotification(msg)
	case types.TypeUserJoined:
		r.handleUserJoined(msg)
	case types.TypeUserRemoved:
		r.handleUserRemoved(msg)
	case types.TypeAddedToProject:
		r.handleMembershipChange(msg, true)
	case types.TypeRemovedFromProject:
		r.handleMembershipChange(msg, false)
	case types.TypeUnauthorized, types.TypeError:
		r.handleAuthFailure(msg)
	default:
		// Keep-alive pongs, capability negotiation, connection acks
		// and anything unrecognized are intentionally silent.
		r.logger.Debug().Str("type", msg.Type).Msg("no handler")
	}
}

// LastMessage returns the most recent successfully parsed inbound
// message, or nil if none has arrived.
func (r *Router) LastMessage() *types.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}
