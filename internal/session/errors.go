package session

import (
	"errors"
	"fmt"

	"github.com/1ureka/sendfile/internal/protocol"
)

// Error kinds. Every session error wraps exactly one of these, or a
// *protocol.DecodeError for packets that could not be decoded.
var (
	ErrTransport     = errors.New("session: transport failure")
	ErrSequence      = errors.New("session: protocol sequence violation")
	ErrLocalResource = errors.New("session: local resource failure")
)

// ErrNoFiles is returned by a Client constructed without file references.
var ErrNoFiles = fmt.Errorf("%w: no files to send", ErrLocalResource)

// ErrUnsafeName is returned for announced names that do not reduce to a
// plain file name.
var ErrUnsafeName = errors.New("unsafe file name")

// streamErr classifies a failure reported by the streamer.
func streamErr(op string, err error) error {
	var decErr *protocol.DecodeError
	if errors.As(err, &decErr) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrTransport, op, err)
}

func sequenceErr(state fmt.Stringer, p protocol.Packet) error {
	return fmt.Errorf("%w: %s in state %s", ErrSequence, p.Action(), state)
}

func resourceErr(op, name string, err error) error {
	return fmt.Errorf("%w: %s %q: %w", ErrLocalResource, op, name, err)
}
