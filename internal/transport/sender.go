package transport

import (
	"context"

	"github.com/pion/webrtc/v4"
)

const (
	highWaterMark  = 256 * 1024 // pause sending when bufferedAmount exceeds this
	lowWaterMark   = 64 * 1024  // resume sending when bufferedAmount drops below this
	maxMessageSize = 16 * 1024  // largest DataChannel message we emit
)

// sender writes to a DataChannel, holding writers back while the channel's
// outgoing buffer is above the high-water mark.
type sender struct {
	dc          *webrtc.DataChannel
	drainSignal chan struct{}
}

// newSender wires the backpressure callbacks on dc.
func newSender(dc *webrtc.DataChannel) *sender {
	s := &sender{
		dc:          dc,
		drainSignal: make(chan struct{}, 1),
	}

	dc.SetBufferedAmountLowThreshold(uint64(lowWaterMark))
	dc.OnBufferedAmountLow(func() {
		select {
		case s.drainSignal <- struct{}{}:
		default:
		}
	})

	return s
}

// write sends p as one or more messages of at most maxMessageSize bytes.
// It blocks while the buffer is above the high-water mark and returns
// ctx.Err() if ctx ends first.
func (s *sender) write(ctx context.Context, p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		for s.dc.BufferedAmount() > uint64(highWaterMark) {
			select {
			case <-s.drainSignal:
			case <-ctx.Done():
				return written, ctx.Err()
			}
		}

		n := min(len(p), maxMessageSize)
		msg := make([]byte, n)
		copy(msg, p[:n])
		if err := s.dc.Send(msg); err != nil {
			return written, err
		}
		written += n
		p = p[n:]
	}
	return written, nil
}
