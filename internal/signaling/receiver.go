package signaling

import (
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/sendfile/internal/transport"
	"github.com/1ureka/sendfile/internal/util"
)

// receiver applies the remote side's signaling messages to the peer.
type receiver struct {
	peer   *transport.Peer
	conn   *websocket.Conn
	sender *sender
}

// watch processes messages until the WebSocket fails or is closed.
func (r *receiver) watch() error {
	for {
		var msg message
		if err := r.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read signaling message: %w", err)
		}
		if err := r.handle(msg); err != nil {
			return fmt.Errorf("handle %s: %w", msg.Type, err)
		}
	}
}

// handle applies one message. An offer is answered immediately; unknown
// types are ignored.
func (r *receiver) handle(msg message) error {
	switch msg.Type {
	case msgTypeOffer:
		if err := r.setRemote(webrtc.SDPTypeOffer, msg.SDP); err != nil {
			return err
		}
		return r.sender.sendAnswer()

	case msgTypeAnswer:
		return r.setRemote(webrtc.SDPTypeAnswer, msg.SDP)

	case msgTypeCandidate:
		var init webrtc.ICECandidateInit
		if err := json.Unmarshal([]byte(msg.Candidate), &init); err != nil {
			return fmt.Errorf("parse ICE candidate: %w", err)
		}
		return r.peer.AddICECandidate(init)

	default:
		util.LogDebug("ignoring signaling message of type %q", msg.Type)
		return nil
	}
}

func (r *receiver) setRemote(t webrtc.SDPType, sdp string) error {
	util.LogDebug("remote %s received (%d bytes)", t, len(sdp))
	return r.peer.SetRemoteDescription(webrtc.SessionDescription{Type: t, SDP: sdp})
}
