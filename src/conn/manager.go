package conn

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meetscribe/realtime/config"
	"github.com/meetscribe/realtime/src/types"
)

// Options configures a Manager. Config, Tokens, and BuildURL are
// required; Session and Dialer are optional (Dialer defaults to the
// fasthttp/websocket dialer).
type Options struct {
	Config   *config.Config
	Tokens   types.TokenSource
	BuildURL types.URLBuilder
	Session  types.Session
	Dialer   Dialer
	Logger   zerolog.Logger
}

// Manager owns the single persistent real-time connection: it
// establishes, monitors, and automatically recovers it. No other
// component holds or mutates socket state.
type Manager struct {
	cfg      *config.Config
	tokens   types.TokenSource
	buildURL types.URLBuilder
	session  types.Session
	dialer   Dialer
	logger   zerolog.Logger

	mu                     sync.RWMutex
	conn                   types.Conn
	state                  types.State
	reconnectAttempts      int
	immediateCloseAttempts int
	hasConnectedOnce       bool
	openedAt               time.Time
	loggingOut             bool
	reconnectTimer         *time.Timer
	keepAliveTimer         *time.Timer
	listeners              map[string]func(frame []byte)

	writeMu sync.Mutex
}

// NewManager creates a connection manager. It does not connect.
func NewManager(opts Options) *Manager {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = NewDialer(cfg)
	}
	return &Manager{
		cfg:       cfg,
		tokens:    opts.Tokens,
		buildURL:  opts.BuildURL,
		session:   opts.Session,
		dialer:    dialer,
		logger:    opts.Logger.With().Str("component", "realtime-conn").Logger(),
		state:     types.StateIdle,
		listeners: make(map[string]func([]byte)),
	}
}

// Connect starts a connection attempt. It is a no-op while a
// connection is in flight or open. Construction failures (no token,
// bad URL) are logged and terminal for this call; no retry is
// scheduled. Never returns an error to the caller.
func (m *Manager) Connect() {
	m.mu.Lock()
	if m.state == types.StateConnecting || m.conn != nil {
		m.mu.Unlock()
		m.logger.Debug().Msg("connect skipped, already connecting or open")
		return
	}

	token, ok := m.tokens.Token()
	if !ok || token == "" {
		m.mu.Unlock()
		m.logger.Warn().Msg("connect skipped, no auth token")
		return
	}
	url, err := m.buildURL(token)
	if err != nil {
		m.mu.Unlock()
		m.logger.Error().Err(err).Msg("connect failed, cannot build url")
		return
	}

	m.loggingOut = false
	m.state = types.StateConnecting
	m.mu.Unlock()

	attemptID := uuid.New().String()[:8]
	m.logger.Info().Str("attempt", attemptID).Msg("connecting")
	go m.dial(url, attemptID)
}

func (m *Manager) dial(url, attemptID string) {
	c, err := m.dialer.Dial(url)
	if err != nil {
		code, reason := dialFailure(err)
		m.logger.Warn().Err(err).Str("attempt", attemptID).Msg("dial failed")
		m.handleClose(code, reason)
		return
	}

	m.mu.Lock()
	if m.loggingOut || m.state != types.StateConnecting {
		// Torn down while the handshake was in flight.
		m.mu.Unlock()
		c.Close()
		return
	}
	m.conn = c
	m.state = types.StateOpen
	m.hasConnectedOnce = true
	m.openedAt = time.Now()
	m.reconnectAttempts = 0
	m.stopTimerLocked(&m.keepAliveTimer)
	m.keepAliveTimer = time.AfterFunc(m.cfg.KeepAliveDelay, m.sendKeepAlive)
	m.mu.Unlock()

	m.logger.Info().Str("attempt", attemptID).Msg("connected")
	m.readPump(c)
}

// readPump is the single reader for the live connection. It fans
// frames out to listeners and converts the terminating read error
// into a close event.
func (m *Manager) readPump(c types.Conn) {
	for {
		_, frame, err := c.ReadMessage()
		if err != nil {
			code, reason := closeDetails(err)
			m.handleClose(code, reason)
			return
		}

		m.mu.RLock()
		if m.conn != c {
			m.mu.RUnlock()
			return
		}
		fns := make([]func([]byte), 0, len(m.listeners))
		for _, fn := range m.listeners {
			fns = append(fns, fn)
		}
		m.mu.RUnlock()

		for _, fn := range fns {
			fn(frame)
		}
	}
}

// handleClose runs once per close event, from either a failed dial or
// a terminated read pump, and applies the close-code policy.
func (m *Manager) handleClose(code int, reason string) {
	m.mu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.state = types.StateClosed
	m.stopTimerLocked(&m.keepAliveTimer)
	opened := m.openedAt
	m.openedAt = time.Time{}
	loggingOut := m.loggingOut
	if !opened.IsZero() && time.Since(opened) > m.cfg.ImmediateCloseWindow {
		// Connection was stable before dropping; reject streak is over.
		m.immediateCloseAttempts = 0
	}
	m.mu.Unlock()

	m.logger.Info().Int("code", code).Str("reason", reason).Msg("connection closed")

	if loggingOut {
		return
	}
	if code == websocket.CloseNormalClosure {
		m.resetCounters()
		return
	}
	if isAuthClose(code) || hasAuthReason(reason) {
		m.logger.Warn().Int("code", code).Msg("authorization failure, logging out")
		if m.session != nil {
			m.session.Logout()
		}
		return
	}

	switch code {
	case websocket.CloseAbnormalClosure:
		m.logger.Warn().Msg("connection lost unexpectedly")
	case websocket.ClosePolicyViolation:
		m.logger.Warn().Msg("server policy violation")
	case websocket.CloseInternalServerErr:
		m.logger.Warn().Msg("server-side failure")
	case CloseTimedOut:
		m.logger.Warn().Msg("connection attempt timed out")
	}
	m.scheduleReconnect(opened)
}

// scheduleReconnect applies the retry policy for a transient close.
// Immediate closes (opened then dropped within the window) get a
// guaranteed retry floor on a separate counter; everything else is
// bounded by MaxReconnectAttempts. At most one reconnect timer is
// pending at a time.
func (m *Manager) scheduleReconnect(opened time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loggingOut {
		return
	}

	immediate := !opened.IsZero() && time.Since(opened) <= m.cfg.ImmediateCloseWindow
	if immediate {
		m.immediateCloseAttempts++
		if m.immediateCloseAttempts <= m.cfg.ImmediateCloseRetryFloor {
			m.logger.Info().
				Int("immediate_attempt", m.immediateCloseAttempts).
				Msg("immediate close, retrying")
			m.armReconnectLocked()
			return
		}
	}

	if m.reconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Warn().
			Int("attempts", m.reconnectAttempts).
			Bool("ever_connected", m.hasConnectedOnce).
			Msg("reconnect attempts exhausted, giving up")
		return
	}
	m.reconnectAttempts++
	m.logger.Info().
		Int("attempt", m.reconnectAttempts).
		Int("max", m.cfg.MaxReconnectAttempts).
		Msg("scheduling reconnect")
	m.armReconnectLocked()
}

func (m *Manager) armReconnectLocked() {
	m.stopTimerLocked(&m.reconnectTimer)
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectInterval, func() {
		m.mu.Lock()
		m.reconnectTimer = nil
		loggingOut := m.loggingOut
		m.mu.Unlock()
		// A timer that fired concurrently with ForceDisconnect must
		// not resurrect the connection.
		if loggingOut {
			return
		}
		m.Connect()
	})
}

// Disconnect is a soft teardown request: it only closes the socket
// when ForceDisconnect has set the logging-out flag. Otherwise the
// persistent connection survives (callers come and go; the session
// does not).
func (m *Manager) Disconnect() {
	m.mu.Lock()
	if !m.loggingOut {
		m.mu.Unlock()
		m.logger.Debug().Msg("soft disconnect ignored, not logging out")
		return
	}
	m.stopTimerLocked(&m.reconnectTimer)
	m.stopTimerLocked(&m.keepAliveTimer)
	c := m.conn
	m.conn = nil
	m.state = types.StateClosed
	m.reconnectAttempts = 0
	m.immediateCloseAttempts = 0
	m.openedAt = time.Time{}
	m.mu.Unlock()

	if c != nil {
		data := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.WriteControl(websocket.CloseMessage, data, time.Now().Add(time.Second)); err != nil {
			m.logger.Debug().Err(err).Msg("close frame not delivered")
		}
		c.Close()
		m.logger.Info().Msg("disconnected")
	}
}

// ForceDisconnect guarantees teardown and suppresses all future
// automatic reconnection. Safe to call multiple times.
func (m *Manager) ForceDisconnect() {
	m.mu.Lock()
	m.loggingOut = true
	m.mu.Unlock()
	m.Disconnect()
}

// SendMessage serializes v to JSON and transmits it. If the
// connection is not open the message is dropped and logged; the
// caller is not informed.
func (m *Manager) SendMessage(v any) {
	m.mu.RLock()
	c := m.conn
	open := m.state == types.StateOpen
	m.mu.RUnlock()

	if c == nil || !open {
		m.logger.Warn().Msg("send dropped, connection not open")
		return
	}

	m.writeMu.Lock()
	err := c.WriteJSON(v)
	m.writeMu.Unlock()
	if err != nil {
		m.logger.Error().Err(err).Msg("send failed")
	}
}

func (m *Manager) sendKeepAlive() {
	m.SendMessage(map[string]any{"type": types.TypePing})
}

// IsConnected reports whether the connection is open.
func (m *Manager) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == types.StateOpen
}

// State returns the current lifecycle state.
func (m *Manager) State() types.State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// ReconnectAttempts returns the current automatic retry count.
func (m *Manager) ReconnectAttempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.reconnectAttempts
}

// OnMessage registers a listener for inbound frames under an ID.
// Listeners receive the raw frame bytes; they never see the socket.
func (m *Manager) OnMessage(id string, fn func(frame []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners[id] = fn
}

// RemoveOnMessage detaches a previously registered listener.
func (m *Manager) RemoveOnMessage(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.listeners, id)
}

func (m *Manager) resetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnectAttempts = 0
	m.immediateCloseAttempts = 0
}

func (m *Manager) stopTimerLocked(t **time.Timer) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

// closeDetails extracts the close code and reason from a read error.
// Reads that fail without a close frame count as abnormal closure.
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// dialFailure maps a dial error to a close event. Handshake timeouts
// get the distinguished timeout code; other network errors count as
// abnormal closure. Both feed the reconnect policy.
func dialFailure(err error) (int, string) {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return CloseTimedOut, "connect timeout"
	}
	if errors.Is(err, websocket.ErrBadHandshake) {
		return websocket.CloseAbnormalClosure, "handshake rejected"
	}
	return websocket.CloseAbnormalClosure, err.Error()
}
