package transport

import (
	"net"
	"time"
)

// idleConn pushes the deadline forward before every operation, so a stalled
// peer fails the pending call instead of blocking forever.
type idleConn struct {
	net.Conn
	timeout time.Duration
}

// WithIdleTimeout wraps c so that any single Read or Write taking longer
// than d fails with a timeout error.
func WithIdleTimeout(c net.Conn, d time.Duration) net.Conn {
	return &idleConn{Conn: c, timeout: d}
}

func (c *idleConn) Read(p []byte) (int, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(p)
}

func (c *idleConn) Write(p []byte) (int, error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

type idleListener struct {
	net.Listener
	timeout time.Duration
}

func (l *idleListener) Accept() (net.Conn, error) {
	c, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	return WithIdleTimeout(c, l.timeout), nil
}
