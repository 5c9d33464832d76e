package types

import "time"

// Message is the wire envelope for every frame received over the
// real-time connection. Type is the dispatch discriminant; Data's
// shape depends on Type.
type Message struct {
	Type       string         `json:"type"`
	Data       map[string]any `json:"data,omitempty"`
	ReceivedAt string         `json:"received_at,omitempty"`
	Channel    string         `json:"channel,omitempty"`
}

// Known message types routed by the dispatcher. Anything not listed
// here is intentionally ignored.
const (
	TypeTaskProgress       = "task_progress"
	TypeNotification       = "notification"
	TypeUserJoined         = "user_joined"
	TypeUserRemoved        = "user_removed"
	TypeAddedToProject     = "you_added_to_project"
	TypeRemovedFromProject = "you_removed_from_project"
	TypeUnauthorized       = "unauthorized"
	TypeError              = "error"
	TypePing               = "ping"
	TypePong               = "pong"
	TypeCapabilities       = "capabilities"
	TypeConnectionAck      = "connection_ack"
)

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// State is the connection lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TokenSource provides the current bearer token. ok is false when the
// user is unauthenticated, which is a valid, expected state.
type TokenSource interface {
	Token() (token string, ok bool)
}

// URLBuilder derives the connection URL for a token. An error marks
// the connection attempt as unconstructable.
type URLBuilder func(token string) (string, error)

// Session is the capability to end the authenticated session. Invoked
// on authorization failures reported over the connection.
type Session interface {
	Logout()
}

// Invalidator discards a cached resource or query result by its
// logical key. Implementations may complete asynchronously; callers
// fire and forget.
type Invalidator interface {
	Invalidate(key string)
}

// NotifyKind classifies a user-facing notification.
type NotifyKind string

const (
	NotifyInfo    NotifyKind = "info"
	NotifySuccess NotifyKind = "success"
	NotifyError   NotifyKind = "error"
)

// Notifier presents user-facing feedback. NotifyIncoming is the
// push-style banner used for real-time events.
type Notifier interface {
	Notify(kind NotifyKind, text string)
	NotifyIncoming(text string)
}

// Translator resolves a message key to display text. ok is false for
// missing keys; callers fall back to literal text. Implementations
// must never panic.
type Translator interface {
	T(key string, vars map[string]string) (text string, ok bool)
}
