package conn

import (
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"

	"github.com/meetscribe/realtime/config"
	"github.com/meetscribe/realtime/src/types"
)

// mockConn implements types.Conn without a real WebSocket. Reads
// block until the test feeds a frame, injects a read error, or the
// conn is closed.
type mockConn struct {
	mu        sync.Mutex
	written   []any
	frames    chan []byte
	errs      chan error
	closed    int
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newMockConn() *mockConn {
	return &mockConn{
		frames:   make(chan []byte, 16),
		errs:     make(chan error, 1),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	select {
	case f := <-m.frames:
		return websocket.TextMessage, f, nil
	case err := <-m.errs:
		return 0, nil, err
	case <-m.closedCh:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "closed"}
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, v)
	return nil
}

func (m *mockConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	m.closed++
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.closedCh) })
	return nil
}

func (m *mockConn) getWritten() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]any, len(m.written))
	copy(cp, m.written)
	return cp
}

func (m *mockConn) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// mockDialer hands out mock conns, or fails every dial with err.
type mockDialer struct {
	mu    sync.Mutex
	err   error
	calls int
	conns []*mockConn
}

func (d *mockDialer) Dial(url string) (types.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	c := newMockConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *mockDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *mockDialer) conn(i int) *mockConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type staticTokens struct{ token string }

func (s staticTokens) Token() (string, bool) { return s.token, s.token != "" }

type stubSession struct {
	mu      sync.Mutex
	logouts int
}

func (s *stubSession) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logouts++
}

func (s *stubSession) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logouts
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.MaxReconnectAttempts = 3
	cfg.ReconnectInterval = 10 * time.Millisecond
	cfg.KeepAliveDelay = 5 * time.Millisecond
	cfg.ImmediateCloseWindow = time.Second
	cfg.ImmediateCloseRetryFloor = 3
	return cfg
}

func newTestManager(t *testing.T, d Dialer, sess types.Session) *Manager {
	t.Helper()
	m := NewManager(Options{
		Config:   testConfig(),
		Tokens:   staticTokens{token: "tok"},
		BuildURL: func(token string) (string, error) { return "ws://test/realtime/ws?token=" + token, nil },
		Session:  sess,
		Dialer:   d,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(m.ForceDisconnect)
	return m
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func TestConnectIdempotentWhileOpen(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	m.Connect()
	m.Connect()
	time.Sleep(30 * time.Millisecond)

	if got := d.dialCount(); got != 1 {
		t.Fatalf("expected 1 dial, got %d", got)
	}
}

func TestConnectWithoutToken(t *testing.T) {
	d := &mockDialer{}
	m := NewManager(Options{
		Config:   testConfig(),
		Tokens:   staticTokens{},
		BuildURL: func(token string) (string, error) { return "ws://test/ws", nil },
		Dialer:   d,
		Logger:   zerolog.Nop(),
	})

	m.Connect()
	time.Sleep(20 * time.Millisecond)

	if d.dialCount() != 0 {
		t.Error("expected no dial without a token")
	}
	if m.State() != types.StateIdle {
		t.Errorf("expected idle state, got %s", m.State())
	}
}

func TestConnectBadURL(t *testing.T) {
	d := &mockDialer{}
	m := NewManager(Options{
		Config:   testConfig(),
		Tokens:   staticTokens{token: "tok"},
		BuildURL: func(token string) (string, error) { return "", errors.New("bad endpoint") },
		Dialer:   d,
		Logger:   zerolog.Nop(),
	})

	m.Connect()
	time.Sleep(30 * time.Millisecond)

	// Construction failures are terminal for the attempt: no dial,
	// no retry scheduled.
	if d.dialCount() != 0 {
		t.Error("expected no dial on url build failure")
	}
}

func TestNormalClosureStopsReconnect(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	d.conn(0).errs <- &websocket.CloseError{Code: websocket.CloseNormalClosure, Text: "bye"}

	time.Sleep(60 * time.Millisecond)
	if m.IsConnected() {
		t.Error("expected disconnected after normal closure")
	}
	if got := d.dialCount(); got != 1 {
		t.Errorf("expected no reconnect after normal closure, got %d dials", got)
	}
}

func TestReconnectBounded(t *testing.T) {
	d := &mockDialer{err: errors.New("connection refused")}
	m := NewManager(Options{
		Config:   testConfig(),
		Tokens:   staticTokens{token: "tok"},
		BuildURL: func(token string) (string, error) { return "ws://test/ws", nil },
		Dialer:   d,
		Logger:   zerolog.Nop(),
	})
	t.Cleanup(m.ForceDisconnect)

	m.Connect()

	// Initial dial plus MaxReconnectAttempts automatic retries.
	time.Sleep(300 * time.Millisecond)
	if got := d.dialCount(); got != 4 {
		t.Fatalf("expected 4 dials (1 + 3 retries), got %d", got)
	}
	if got := m.ReconnectAttempts(); got != 3 {
		t.Errorf("expected attempts capped at 3, got %d", got)
	}
}

func TestImmediateCloseFloor(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()

	// Server accepts then immediately drops each connection.
	for i := 0; i < 4; i++ {
		if !waitFor(t, time.Second, func() bool { return d.conn(i) != nil }) {
			t.Fatalf("expected dial %d to happen", i+1)
		}
		d.conn(i).errs <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "dropped"}
	}

	if !waitFor(t, time.Second, func() bool { return d.dialCount() >= 4 }) {
		t.Fatalf("expected at least 4 dials (1 + 3 floor retries), got %d", d.dialCount())
	}
}

func TestAuthCloseTriggersLogoutOnce(t *testing.T) {
	for _, code := range []int{CloseUnauthorized, CloseForbidden, CloseUserNotFound} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			d := &mockDialer{}
			sess := &stubSession{}
			m := newTestManager(t, d, sess)

			m.Connect()
			if !waitFor(t, time.Second, m.IsConnected) {
				t.Fatal("expected connection to open")
			}

			d.conn(0).errs <- &websocket.CloseError{Code: code, Text: "denied"}

			if !waitFor(t, time.Second, func() bool { return sess.count() == 1 }) {
				t.Fatalf("expected exactly one logout, got %d", sess.count())
			}
			time.Sleep(50 * time.Millisecond)
			if got := d.dialCount(); got != 1 {
				t.Errorf("expected no reconnect after auth close, got %d dials", got)
			}
			if sess.count() != 1 {
				t.Errorf("expected logout to stay at 1, got %d", sess.count())
			}
		})
	}
}

func TestAuthReasonKeywordTriggersLogout(t *testing.T) {
	d := &mockDialer{}
	sess := &stubSession{}
	m := newTestManager(t, d, sess)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	// Generic code, but the reason text marks an authorization failure.
	d.conn(0).errs <- &websocket.CloseError{Code: websocket.CloseAbnormalClosure, Text: "Token expired"}

	if !waitFor(t, time.Second, func() bool { return sess.count() == 1 }) {
		t.Fatalf("expected logout, got %d", sess.count())
	}
	time.Sleep(50 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Error("expected no reconnect when reason indicates auth failure")
	}
}

func TestForceDisconnectIdempotent(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	m.ForceDisconnect()
	m.ForceDisconnect()
	time.Sleep(20 * time.Millisecond)

	if got := d.conn(0).closeCount(); got != 1 {
		t.Errorf("expected exactly 1 close call, got %d", got)
	}
	if m.ReconnectAttempts() != 0 {
		t.Error("expected counters reset after force disconnect")
	}

	// A fresh connect after logout must succeed.
	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected reconnect after force disconnect to succeed")
	}
	if d.dialCount() != 2 {
		t.Errorf("expected 2 dials, got %d", d.dialCount())
	}
}

func TestSoftDisconnectPreservesConnection(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	m.Disconnect()
	time.Sleep(20 * time.Millisecond)

	if !m.IsConnected() {
		t.Error("soft disconnect must not tear down the persistent connection")
	}
	if d.conn(0).closeCount() != 0 {
		t.Error("soft disconnect must not close the socket")
	}
}

func TestForceDisconnectCancelsPendingReconnect(t *testing.T) {
	d := &mockDialer{err: errors.New("connection refused")}
	m := NewManager(Options{
		Config:   testConfig(),
		Tokens:   staticTokens{token: "tok"},
		BuildURL: func(token string) (string, error) { return "ws://test/ws", nil },
		Dialer:   d,
		Logger:   zerolog.Nop(),
	})

	m.Connect()
	if !waitFor(t, time.Second, func() bool { return d.dialCount() == 1 }) {
		t.Fatal("expected initial dial")
	}

	// A reconnect timer is now pending; cancel it.
	m.ForceDisconnect()
	time.Sleep(60 * time.Millisecond)

	if got := d.dialCount(); got != 1 {
		t.Errorf("expected pending reconnect to be cancelled, got %d dials", got)
	}
}

func TestSendWhileClosedDrops(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	// Must not panic, must not dial.
	m.SendMessage(map[string]any{"type": "ping"})
	if d.dialCount() != 0 {
		t.Error("send must not trigger a connection")
	}
}

func TestSendMessageWhenOpen(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	m.SendMessage(map[string]any{"type": "ping"})

	ok := waitFor(t, time.Second, func() bool { return len(d.conn(0).getWritten()) >= 1 })
	if !ok {
		t.Fatal("expected message to be written")
	}
}

func TestKeepAlivePingAfterOpen(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	ok := waitFor(t, time.Second, func() bool {
		for _, w := range d.conn(0).getWritten() {
			if msg, ok := w.(map[string]any); ok && msg["type"] == types.TypePing {
				return true
			}
		}
		return false
	})
	if !ok {
		t.Error("expected keep-alive ping after open")
	}
}

func TestListenersReceiveFrames(t *testing.T) {
	d := &mockDialer{}
	m := newTestManager(t, d, nil)

	var mu sync.Mutex
	var got [][]byte
	m.OnMessage("test", func(frame []byte) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, frame)
	})

	m.Connect()
	if !waitFor(t, time.Second, m.IsConnected) {
		t.Fatal("expected connection to open")
	}

	d.conn(0).frames <- []byte(`{"type":"pong"}`)

	ok := waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	})
	if !ok {
		t.Fatal("expected listener to receive the frame")
	}

	m.RemoveOnMessage("test")
	d.conn(0).frames <- []byte(`{"type":"pong"}`)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Errorf("detached listener must not receive frames, got %d", len(got))
	}
}
