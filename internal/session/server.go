package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/1ureka/sendfile/internal/protocol"
	"github.com/1ureka/sendfile/internal/streamer"
	"github.com/1ureka/sendfile/internal/util"
)

// ReceivedFile records one file the server fully received.
// Written may differ from Declared; the protocol does not treat that as an
// error, it is only recorded.
type ReceivedFile struct {
	Name     string // sanitized name used on disk
	Declared uint64 // size announced in the StartFile header
	Written  uint64 // bytes actually appended
	Index    int
}

// Mismatch reports whether the streamed size differs from the announced one.
func (f ReceivedFile) Mismatch() bool { return f.Written != f.Declared }

// Server drives an inbound session: receive the list, answer, receive each
// file, finish. It owns its stream and open output file for the whole session.
type Server struct {
	stream *streamer.Streamer
	sink   Sink
	policy Policy
	log    util.Logger
	onFile func(ReceivedFile)

	state    ServerState
	files    []protocol.FileMeta
	out      io.WriteCloser
	buf      *bufio.Writer
	current  ReceivedFile
	next     int
	received []ReceivedFile
	names    map[string]bool // on-disk names taken this session
	rejected bool
	err      error
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithPolicy replaces the default accept-all policy.
func WithPolicy(p Policy) ServerOption {
	return func(s *Server) {
		if p != nil {
			s.policy = p
		}
	}
}

// WithServerLogger tags the server's log lines.
func WithServerLogger(l util.Logger) ServerOption {
	return func(s *Server) { s.log = l }
}

// WithFileReceived registers fn to be called after each file is closed.
func WithFileReceived(fn func(ReceivedFile)) ServerOption {
	return func(s *Server) { s.onFile = fn }
}

// NewServer prepares a session that receives over rw and writes into sink.
func NewServer(rw io.ReadWriter, sink Sink, opts ...ServerOption) *Server {
	s := &Server{
		stream: streamer.New(rw),
		sink:   sink,
		policy: AcceptAll,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drives the session to a terminal state and releases the stream and any
// open output file. It returns nil when the session ends in Finish, whether
// the files were received or rejected by policy. Cancelling ctx closes the
// stream and ends the session in Error.
func (s *Server) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.stream.Close() })
	defer stop()

	s.state = ServerInit
	for !s.state.Terminal() {
		next := s.step()
		if next != s.state {
			s.log.Debugf("server %s → %s", s.state, next)
		}
		s.state = next
	}
	s.release()

	if s.state == ServerError {
		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), s.err)
		}
		return s.err
	}
	return nil
}

// State returns the current state; after Run it is Finish or Error.
func (s *Server) State() ServerState { return s.state }

// Rejected reports whether the policy declined the announced files.
func (s *Server) Rejected() bool { return s.rejected }

// Files returns the list announced by the client.
func (s *Server) Files() []protocol.FileMeta { return s.files }

// Received returns the files completed so far, in order.
func (s *Server) Received() []ReceivedFile { return s.received }

func (s *Server) step() ServerState {
	switch s.state {
	case ServerInit:
		return s.awaitSend()
	case ServerInternalAnswer:
		return s.answer()
	case ServerWaitForFile, ServerEndReceivingFile:
		return s.awaitFile()
	case ServerStartReceivingFile, ServerReceiveFileData:
		return s.receive()
	default:
		return s.fail(errors.New("session: server stepped in terminal state"))
	}
}

func (s *Server) awaitSend() ServerState {
	s.files = nil
	s.received = nil
	s.names = map[string]bool{}
	s.next = 0

	p, err := s.stream.ReadPacket()
	if err != nil {
		return s.fail(streamErr("read Send", err))
	}

	send, ok := p.(protocol.Send)
	if !ok {
		return s.fail(sequenceErr(s.state, p))
	}
	s.files = send.Files
	return ServerInternalAnswer
}

func (s *Server) answer() ServerState {
	s.log.Debugf("client announced %d file(s): %v", len(s.files), s.files)

	if !s.policy(s.files) {
		s.rejected = true
		if err := s.stream.WritePacket(protocol.Reject{}); err != nil {
			return s.fail(streamErr("write Reject", err))
		}
		s.log.Warnf("rejected %d file(s) by policy", len(s.files))
		return ServerFinish
	}

	if err := s.stream.WritePacket(protocol.Accept{}); err != nil {
		return s.fail(streamErr("write Accept", err))
	}
	return ServerWaitForFile
}

// awaitFile expects the next StartFile, or Finish once at least one file has
// ended.
func (s *Server) awaitFile() ServerState {
	p, err := s.stream.ReadPacket()
	if err != nil {
		return s.fail(streamErr("read StartFile", err))
	}

	switch pkt := p.(type) {
	case protocol.StartFile:
		return s.openFile(pkt.Header)
	case protocol.Finish:
		if s.state != ServerEndReceivingFile {
			return s.fail(sequenceErr(s.state, p))
		}
		if s.next < len(s.files) {
			s.log.Warnf("client finished after %d of %d file(s)", s.next, len(s.files))
		}
		return ServerFinish
	default:
		return s.fail(sequenceErr(s.state, p))
	}
}

func (s *Server) openFile(h protocol.FileTransferHeader) ServerState {
	if h.Index != s.next || h.Total != len(s.files) || h.Index >= h.Total {
		return s.fail(fmt.Errorf("%w: StartFile index %d/%d, expected %d/%d",
			ErrSequence, h.Index, h.Total, s.next, len(s.files)))
	}

	name, err := SafeName(h.File.Name)
	if err != nil {
		return s.fail(resourceErr("create", h.File.Name, err))
	}
	name = s.claimName(name)
	if name != h.File.Name {
		s.log.Warnf("announced name %q stored as %q", h.File.Name, name)
	}

	out, err := s.sink.Create(name)
	if err != nil {
		return s.fail(resourceErr("create", name, err))
	}
	s.out = out
	s.buf = bufio.NewWriter(out)
	s.current = ReceivedFile{Name: name, Declared: h.File.Size, Index: h.Index}
	s.log.Debugf("receiving %s (%d/%d, %d bytes)", name, h.Index+1, h.Total, h.File.Size)
	return ServerStartReceivingFile
}

// claimName returns name, or "stem (n).ext" with the lowest free n when an
// earlier file of this session already took it.
func (s *Server) claimName(name string) string {
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	for n := 1; s.names[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	s.names[candidate] = true
	return candidate
}

func (s *Server) receive() ServerState {
	p, err := s.stream.ReadPacket()
	if err != nil {
		return s.fail(streamErr("read FileData", err))
	}

	switch pkt := p.(type) {
	case protocol.FileData:
		if _, err := s.buf.Write(pkt.Data); err != nil {
			return s.fail(resourceErr("write", s.current.Name, err))
		}
		s.current.Written += uint64(len(pkt.Data))
		return ServerReceiveFileData
	case protocol.EndFile:
		return s.closeFile()
	default:
		return s.fail(sequenceErr(s.state, p))
	}
}

func (s *Server) closeFile() ServerState {
	err := s.buf.Flush()
	if cerr := s.out.Close(); err == nil {
		err = cerr
	}
	s.out, s.buf = nil, nil
	if err != nil {
		return s.fail(resourceErr("close", s.current.Name, err))
	}

	if s.current.Mismatch() {
		s.log.Warnf("%s: received %d bytes but %d were announced",
			s.current.Name, s.current.Written, s.current.Declared)
	}
	s.received = append(s.received, s.current)
	s.next++
	util.Stats.AddFile()
	if s.onFile != nil {
		s.onFile(s.current)
	}
	return ServerEndReceivingFile
}

func (s *Server) fail(err error) ServerState {
	s.err = err
	s.log.Debugf("server failed in %s: %v", s.state, err)
	return ServerError
}

func (s *Server) release() {
	if s.out != nil {
		if err := errors.Join(s.buf.Flush(), s.out.Close()); err != nil {
			s.log.Warnf("closing partial %s: %v", s.current.Name, err)
		}
		s.out, s.buf = nil, nil
		if err := s.sink.Remove(s.current.Name); err != nil {
			s.log.Warnf("removing partial %s: %v", s.current.Name, err)
		} else {
			s.log.Debugf("removed partial %s after %d bytes", s.current.Name, s.current.Written)
		}
	}
	if err := s.stream.Close(); err != nil {
		s.log.Debugf("closing stream: %v", err)
	}
}
