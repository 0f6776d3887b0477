package signaling

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/1ureka/sendfile/internal/transport"
)

// sender serializes outgoing signaling messages to the WebSocket. Local ICE
// candidates gathered before our description went out are held back, since
// the remote cannot add candidates before it has a remote description.
type sender struct {
	peer *transport.Peer
	conn *websocket.Conn

	mu        sync.Mutex
	described bool
	pending   []string
}

func (s *sender) send(msg message) error {
	return s.conn.WriteJSON(msg)
}

// sendOffer creates an SDP offer, sets it as local description, and sends it.
func (s *sender) sendOffer() error {
	offer, err := s.peer.CreateOffer()
	if err != nil {
		return err
	}
	if err := s.peer.SetLocalDescription(offer); err != nil {
		return err
	}
	return s.sendDescription(message{Type: msgTypeOffer, SDP: offer.SDP})
}

// sendAnswer creates an SDP answer, sets it as local description, and sends it.
func (s *sender) sendAnswer() error {
	answer, err := s.peer.CreateAnswer()
	if err != nil {
		return err
	}
	if err := s.peer.SetLocalDescription(answer); err != nil {
		return err
	}
	return s.sendDescription(message{Type: msgTypeAnswer, SDP: answer.SDP})
}

func (s *sender) sendDescription(msg message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.send(msg); err != nil {
		return err
	}
	s.described = true

	for _, c := range s.pending {
		if err := s.send(message{Type: msgTypeCandidate, Candidate: c}); err != nil {
			return err
		}
	}
	s.pending = nil
	return nil
}

// sendCandidate sends an ICE candidate message, or queues it until the local
// description has been sent.
func (s *sender) sendCandidate(candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.described {
		s.pending = append(s.pending, candidate)
		return nil
	}
	return s.send(message{Type: msgTypeCandidate, Candidate: candidate})
}
