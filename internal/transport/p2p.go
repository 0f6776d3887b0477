package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sendfile/internal/util"
)

const closeDrainTimeout = 5 * time.Second

// Peer wraps a single PeerConnection + DataChannel pair. Once Ready is
// closed it behaves as an ordered, reliable byte stream: inbound messages
// are concatenated for Read and Write applies DataChannel backpressure.
//
// Its lifecycle is governed by the DataChannel state and the context passed
// at construction time. The PeerConnection state is recorded for logging
// only.
type Peer struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	sender     *sender
	openSignal chan struct{}

	pr *io.PipeReader
	pw *io.PipeWriter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// NewPeer creates a Peer backed by a new PeerConnection and a pre-negotiated
// DataChannel. The caller performs signaling through the exposed methods
// (CreateOffer / CreateAnswer / ...) and waits on Ready before using the
// stream.
func NewPeer(ctx context.Context, stunServers []string) (*Peer, error) {
	pc, err := newPeerConnection(stunServers)
	if err != nil {
		return nil, err
	}

	dc, err := newDataChannel(pc)
	if err != nil {
		pc.Close()
		return nil, err
	}

	pCtx, pCancel := context.WithCancel(ctx)
	pr, pw := io.Pipe()

	p := &Peer{
		pc:         pc,
		dc:         dc,
		openSignal: make(chan struct{}),
		pr:         pr,
		pw:         pw,
		ctx:        pCtx,
		cancel:     pCancel,
		pcState:    webrtc.PeerConnectionStateNew,
	}

	var openOnce sync.Once
	dc.OnOpen(func() {
		openOnce.Do(func() { close(p.openSignal) })
	})

	// Blocking in OnMessage until the session reads holds back the remote
	// sender through SCTP flow control.
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if _, err := pw.Write(msg.Data); err != nil {
			util.LogDebug("dropping DataChannel message: %v", err)
		}
	})

	dc.OnClose(func() {
		util.LogDebug("DataChannel closed")
		pw.CloseWithError(io.EOF)
		pCancel()
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
		p.mu.Lock()
		p.pcState = state
		p.mu.Unlock()

		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			pw.CloseWithError(io.ErrUnexpectedEOF)
			pCancel()
		}
	})

	context.AfterFunc(pCtx, func() {
		pw.CloseWithError(io.ErrClosedPipe)
	})

	p.sender = newSender(dc)

	return p, nil
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Ready returns a channel that is closed when the DataChannel is open.
func (p *Peer) Ready() <-chan struct{} {
	return p.openSignal
}

// Done returns a channel that is closed when the Peer is shut down
// (DataChannel closed, connection failed or parent context cancelled).
func (p *Peer) Done() <-chan struct{} {
	return p.ctx.Done()
}

// Close waits briefly for written data to be acknowledged, then shuts down
// the DataChannel and PeerConnection.
func (p *Peer) Close() error {
	p.drain(closeDrainTimeout)
	p.cancel()
	return errors.Join(p.dc.Close(), p.pc.Close())
}

// drain polls until nothing is left in the outgoing buffer, the peer goes
// away, or timeout passes.
func (p *Peer) drain(timeout time.Duration) {
	select {
	case <-p.openSignal:
	default:
		return
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()

	for p.dc.BufferedAmount() > 0 {
		select {
		case <-tick.C:
		case <-deadline.C:
			util.LogDebug("closing DataChannel with %d bytes unacknowledged", p.dc.BufferedAmount())
			return
		case <-p.ctx.Done():
			return
		}
	}
}

// ConnectionState returns the last observed PeerConnection state.
func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (p *Peer) CreateOffer() (webrtc.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (p *Peer) CreateAnswer() (webrtc.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (p *Peer) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (p *Peer) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(sdp)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (p *Peer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.pc.OnICECandidate(fn)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (p *Peer) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Stream
// ---------------------------------------------------------------------------

// Read returns inbound bytes in order. It reports io.EOF once the remote
// closes the DataChannel.
func (p *Peer) Read(b []byte) (int, error) {
	return p.pr.Read(b)
}

// Write sends b, blocking while the DataChannel is congested or not yet open.
func (p *Peer) Write(b []byte) (int, error) {
	select {
	case <-p.openSignal:
	case <-p.ctx.Done():
		return 0, io.ErrClosedPipe
	}

	n, err := p.sender.write(p.ctx, b)
	if err != nil && p.ctx.Err() != nil {
		return n, io.ErrClosedPipe
	}
	return n, err
}
