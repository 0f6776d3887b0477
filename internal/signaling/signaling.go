// Package signaling runs the WebSocket signaling phase that turns two
// processes into a connected transport.Peer. The receiving side hosts a
// PIN-protected WebSocket server; the sending side dials it. All SDP/ICE
// details stay internal; callers receive a ready-to-use Peer.
package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sendfile/internal/transport"
	"github.com/1ureka/sendfile/internal/util"
)

// HostOptions configures EstablishAsHost.
type HostOptions struct {
	Addr        string   // signaling listen address, e.g. ":0"
	PIN         string   // generated when empty
	STUNServers []string // nil uses transport.DefaultSTUNServers

	// OnListen is called once the server is listening, with the bound
	// address and the PIN the remote must present.
	OnListen func(addr net.Addr, pin string)
}

// EstablishAsHost executes the receiver-side signaling flow:
//  1. Start the WS server and report its address and PIN
//  2. Wait for the sender to connect
//  3. Create a Peer and exchange SDP/ICE, sending the offer first
//  4. Wait for the DataChannel to be ready
//  5. Close the WS server and connection
func EstablishAsHost(ctx context.Context, opts HostOptions) (*transport.Peer, error) {
	if opts.PIN == "" {
		opts.PIN = GeneratePIN(6)
	}

	srv := newServer(opts.PIN)
	addr, err := srv.start(opts.Addr)
	if err != nil {
		return nil, err
	}
	defer srv.close()

	if opts.OnListen != nil {
		opts.OnListen(addr, opts.PIN)
	}

	wsConn, err := srv.waitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for sender: %w", err)
	}
	defer wsConn.Close()
	util.LogDebug("signaling client connected from %s", wsConn.RemoteAddr())

	return exchange(ctx, wsConn, stunServers(opts.STUNServers), true)
}

// EstablishAsClient executes the sender-side signaling flow:
//  1. Connect to the host's WS server
//  2. Create a Peer and answer the host's offer
//  3. Wait for the DataChannel to be ready
//  4. Close the WS connection
func EstablishAsClient(ctx context.Context, wsURL string, stun []string) (*transport.Peer, error) {
	wsConn, err := connect(ctx, wsURL)
	if err != nil {
		return nil, err
	}
	defer wsConn.Close()
	util.LogDebug("signaling connected: %s", wsURL)

	return exchange(ctx, wsConn, stunServers(stun), false)
}

// exchange wires a new Peer to the signaling connection and blocks until
// its DataChannel opens. The offering side starts negotiation.
func exchange(ctx context.Context, wsConn *websocket.Conn, stun []string, offer bool) (*transport.Peer, error) {
	peer, err := transport.NewPeer(ctx, stun)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer: %w", err)
	}

	s := &sender{peer: peer, conn: wsConn}
	r := &receiver{peer: peer, conn: wsConn, sender: s}

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		data, err := json.Marshal(c.ToJSON())
		if err != nil {
			return
		}
		if err := s.sendCandidate(string(data)); err != nil {
			util.LogDebug("failed to send ICE candidate: %v", err)
		}
	})

	// Exits when wsConn is closed by the caller.
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.watch()
	}()

	if offer {
		if err := s.sendOffer(); err != nil {
			peer.Close()
			return nil, fmt.Errorf("failed to send offer: %w", err)
		}
	}

	select {
	case <-peer.Ready():
		util.LogDebug("DataChannel established, closing signaling")
		return peer, nil

	case err := <-errCh:
		peer.Close()
		return nil, fmt.Errorf("signaling failed: %w", err)

	case <-peer.Done():
		peer.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("signaling failed: peer connection closed")
	}
}

func stunServers(s []string) []string {
	if s == nil {
		return transport.DefaultSTUNServers
	}
	return s
}
