// Package transport produces the reliable byte streams a session runs over:
// TLS or plain TCP, WebSocket, and a WebRTC DataChannel for peer-to-peer use.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"
)

// Kind selects a stream implementation.
type Kind string

const (
	KindTLS Kind = "tls"
	KindTCP Kind = "tcp"
	KindWS  Kind = "ws"
	KindP2P Kind = "p2p"
)

// ErrUnsupported is returned for kinds that cannot be listened on or dialed
// by address.
var ErrUnsupported = errors.New("transport: unsupported kind")

// ParseKind validates a user supplied transport name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindTLS, KindTCP, KindWS, KindP2P:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupported, s)
	}
}

// Options describes an address-based stream endpoint.
type Options struct {
	Kind Kind
	Addr string

	// TLS is required for KindTLS and optional for KindWS (wss).
	TLS *tls.Config

	// IdleTimeout, when positive, bounds every single Read and Write.
	IdleTimeout time.Duration
}

// Listen opens a listener whose accepted connections are ready-to-use
// session streams.
func Listen(o Options) (net.Listener, error) {
	var (
		ln  net.Listener
		err error
	)
	switch o.Kind {
	case KindTCP:
		ln, err = net.Listen("tcp", o.Addr)
	case KindTLS:
		if o.TLS == nil {
			return nil, errors.New("transport: tls listener needs a certificate")
		}
		ln, err = tls.Listen("tcp", o.Addr, o.TLS)
	case KindWS:
		ln, err = listenWS(o.Addr, o.TLS)
	default:
		return nil, fmt.Errorf("%w: listen %q", ErrUnsupported, o.Kind)
	}
	if err != nil {
		return nil, err
	}

	if o.IdleTimeout > 0 {
		ln = &idleListener{Listener: ln, timeout: o.IdleTimeout}
	}
	return ln, nil
}

// Dial connects to a listener opened with the same Kind.
func Dial(ctx context.Context, o Options) (net.Conn, error) {
	var (
		conn net.Conn
		err  error
	)
	switch o.Kind {
	case KindTCP:
		var d net.Dialer
		conn, err = d.DialContext(ctx, "tcp", o.Addr)
	case KindTLS:
		d := tls.Dialer{Config: o.TLS}
		conn, err = d.DialContext(ctx, "tcp", o.Addr)
	case KindWS:
		conn, err = dialWS(ctx, o.Addr, o.TLS)
	default:
		return nil, fmt.Errorf("%w: dial %q", ErrUnsupported, o.Kind)
	}
	if err != nil {
		return nil, err
	}

	if o.IdleTimeout > 0 {
		conn = WithIdleTimeout(conn, o.IdleTimeout)
	}
	return conn, nil
}
