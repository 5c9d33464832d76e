package conn

import (
	"github.com/fasthttp/websocket"

	"github.com/meetscribe/realtime/config"
	"github.com/meetscribe/realtime/src/types"
)

// Dialer establishes WebSocket connections. Abstracted for testability.
type Dialer interface {
	Dial(url string) (types.Conn, error)
}

// netDialer is the production Dialer backed by fasthttp/websocket.
// The handshake timeout enforces the connection-establishment bound;
// a dial that has not reached the open state by then fails.
type netDialer struct {
	d *websocket.Dialer
}

// NewDialer returns a Dialer configured from cfg.
func NewDialer(cfg *config.Config) Dialer {
	return &netDialer{
		d: &websocket.Dialer{
			HandshakeTimeout: cfg.ConnectTimeout,
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
		},
	}
}

func (n *netDialer) Dial(url string) (types.Conn, error) {
	c, _, err := n.d.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}
