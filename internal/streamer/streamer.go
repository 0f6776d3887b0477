// Package streamer turns a duplex byte stream into an exchange of whole packets.
package streamer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/1ureka/sendfile/internal/protocol"
)

// HeaderSize is the fixed frame header size: Action(1) + Length(2).
const HeaderSize = 3

// MaxPayloadSize is the largest payload the 16-bit length field can describe.
const MaxPayloadSize = 65535

// ErrPayloadTooLarge is returned by WritePacket before anything is written.
var ErrPayloadTooLarge = errors.New("streamer: payload exceeds 65535 bytes")

// Flusher is implemented by streams that buffer writes.
type Flusher interface {
	Flush() error
}

// Streamer reads and writes framed packets on a byte stream.
//
// Wire format:
//
//	┌────────────┬───────────────────────────┬──────────────────────┐
//	│ Action     │ Payload Length            │ Payload              │
//	│ (1 byte)   │ (2 bytes, little-endian)  │ (Length bytes)       │
//	└────────────┴───────────────────────────┴──────────────────────┘
//
// A Streamer is not safe for concurrent use; the session that owns it is the
// only reader and writer.
type Streamer struct {
	rw     io.ReadWriter
	header [HeaderSize]byte
}

// New wraps rw. If rw also implements Flusher or io.Closer, WritePacket and
// Close use them.
func New(rw io.ReadWriter) *Streamer {
	return &Streamer{rw: rw}
}

// EncodeFrame serializes p into one complete frame.
func EncodeFrame(p protocol.Packet) ([]byte, error) {
	payload, err := protocol.Payload(p)
	if err != nil {
		return nil, err
	}
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %s with %d bytes", ErrPayloadTooLarge, p.Action(), len(payload))
	}

	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = byte(p.Action())
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	return buf, nil
}

// WritePacket writes the whole frame for p in a single Write and flushes the
// stream when it supports flushing.
func (s *Streamer) WritePacket(p protocol.Packet) error {
	frame, err := EncodeFrame(p)
	if err != nil {
		return err
	}
	if _, err := s.rw.Write(frame); err != nil {
		return err
	}
	if f, ok := s.rw.(Flusher); ok {
		return f.Flush()
	}
	return nil
}

// ReadPacket blocks until one whole frame has arrived and decodes it.
//
// io.EOF is returned only when the stream ends cleanly before a frame starts;
// a stream that ends inside a frame yields io.ErrUnexpectedEOF. Decoding
// failures are *protocol.DecodeError.
func (s *Streamer) ReadPacket() (protocol.Packet, error) {
	if _, err := io.ReadFull(s.rw, s.header[:1]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(s.rw, s.header[1:3]); err != nil {
		return nil, midFrame(err)
	}

	length := binary.LittleEndian.Uint16(s.header[1:3])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(s.rw, payload); err != nil {
			return nil, midFrame(err)
		}
	}

	return protocol.Decode(s.header[0], payload)
}

// Close flushes and closes the underlying stream when it supports those
// operations. It is safe to call more than once if the stream's Close is.
func (s *Streamer) Close() error {
	var errs []error
	if f, ok := s.rw.(Flusher); ok {
		errs = append(errs, f.Flush())
	}
	if c, ok := s.rw.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func midFrame(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
