package session

import (
	"sync"

	"github.com/rs/zerolog"
)

// Session holds the bearer token for the authenticated user and fans
// logout out to registered callbacks. It serves as both the token
// provider for the connection manager and the logout capability for
// the close-code and message handlers.
type Session struct {
	mu            sync.Mutex
	token         string
	authenticated bool
	onLogout      []func()
	logger        zerolog.Logger
}

// New creates an unauthenticated session.
func New(logger zerolog.Logger) *Session {
	return &Session{logger: logger.With().Str("component", "session").Logger()}
}

// SetToken stores the bearer token and marks the session authenticated.
func (s *Session) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.authenticated = token != ""
}

// Token returns the current bearer token. ok is false when
// unauthenticated.
func (s *Session) Token() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authenticated || s.token == "" {
		return "", false
	}
	return s.token, true
}

// OnLogout registers a callback run when the session ends.
func (s *Session) OnLogout(cb func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onLogout = append(s.onLogout, cb)
}

// Logout ends the session: clears the token and runs the logout
// callbacks. Calling Logout on an already ended session is a no-op,
// so callbacks run at most once per authentication.
func (s *Session) Logout() {
	s.mu.Lock()
	if !s.authenticated {
		s.mu.Unlock()
		return
	}
	s.authenticated = false
	s.token = ""
	cbs := make([]func(), len(s.onLogout))
	copy(cbs, s.onLogout)
	s.mu.Unlock()

	s.logger.Info().Msg("session ended")
	for _, cb := range cbs {
		cb()
	}
}
