// Package session implements the sending and receiving sides of a file
// transfer as explicit state machines over a packet stream.
package session

import (
	"context"
	"errors"
	"io"

	"github.com/1ureka/sendfile/internal/protocol"
	"github.com/1ureka/sendfile/internal/streamer"
	"github.com/1ureka/sendfile/internal/util"
)

// DefaultChunkSize keeps a FileData frame comfortably below the 65535-byte
// payload ceiling.
const DefaultChunkSize = 60 * 1024

// Client drives an outbound session: announce, await the answer, stream each
// file, finish. It owns its stream and open file for the whole session.
type Client struct {
	stream *streamer.Streamer
	source Source
	refs   []string
	chunk  []byte
	log    util.Logger

	state    ClientState
	files    []protocol.FileMeta
	reader   io.ReadCloser
	index    int
	sent     uint64 // bytes of the current file
	total    uint64 // bytes of every file
	rejected bool
	err      error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSource replaces the local filesystem as the origin of file references.
func WithSource(src Source) ClientOption {
	return func(c *Client) { c.source = src }
}

// WithChunkSize sets the FileData chunk bound, clamped to 1..65535.
func WithChunkSize(n int) ClientOption {
	return func(c *Client) {
		n = max(1, min(n, streamer.MaxPayloadSize))
		c.chunk = make([]byte, n)
	}
}

// WithClientLogger tags the client's log lines.
func WithClientLogger(l util.Logger) ClientOption {
	return func(c *Client) { c.log = l }
}

// NewClient prepares a session that sends refs, in order, over rw.
func NewClient(rw io.ReadWriter, refs []string, opts ...ClientOption) *Client {
	c := &Client{
		stream: streamer.New(rw),
		source: OSSource{},
		refs:   append([]string(nil), refs...),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.chunk == nil {
		c.chunk = make([]byte, DefaultChunkSize)
	}
	return c
}

// Run drives the session to a terminal state and releases the stream.
// It returns nil when the session ends in Finish, including when the server
// rejected the files (see Rejected). Cancelling ctx closes the stream, which
// unblocks any pending I/O and ends the session in Error.
func (c *Client) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { c.stream.Close() })
	defer stop()

	c.state = ClientInit
	for !c.state.Terminal() {
		next := c.step()
		if next != c.state {
			c.log.Debugf("client %s → %s", c.state, next)
		}
		c.state = next
	}
	c.release()

	if c.state == ClientError {
		if ctx.Err() != nil {
			return errors.Join(ctx.Err(), c.err)
		}
		return c.err
	}
	return nil
}

// State returns the current state; after Run it is Finish or Error.
func (c *Client) State() ClientState { return c.state }

// Rejected reports whether the server declined the announced files.
func (c *Client) Rejected() bool { return c.rejected }

// Files returns the announced file list.
func (c *Client) Files() []protocol.FileMeta { return c.files }

// BytesSent returns the number of file bytes streamed so far.
func (c *Client) BytesSent() uint64 { return c.total }

func (c *Client) step() ClientState {
	switch c.state {
	case ClientInit:
		return c.announce()
	case ClientWaitForResponse:
		return c.awaitAnswer()
	case ClientAccepted:
		return c.startFile()
	case ClientStartSendingFile, ClientSendFileData:
		return c.sendChunk()
	case ClientEndSendingFile:
		return c.nextFile()
	default:
		return c.fail(errors.New("session: client stepped in terminal state"))
	}
}

// announce sends the Send packet describing every reference.
func (c *Client) announce() ClientState {
	if len(c.refs) == 0 {
		return c.fail(ErrNoFiles)
	}

	c.files = make([]protocol.FileMeta, 0, len(c.refs))
	for _, ref := range c.refs {
		meta, err := c.source.Stat(ref)
		if err != nil {
			return c.fail(resourceErr("stat", ref, err))
		}
		c.files = append(c.files, meta)
	}

	if err := c.stream.WritePacket(protocol.Send{Files: c.files}); err != nil {
		return c.fail(streamErr("write Send", err))
	}
	return ClientWaitForResponse
}

func (c *Client) awaitAnswer() ClientState {
	p, err := c.stream.ReadPacket()
	if err != nil {
		return c.fail(streamErr("read answer", err))
	}

	switch p.(type) {
	case protocol.Accept:
		c.log.Debugf("server accepted %d file(s)", len(c.files))
		return ClientAccepted
	case protocol.Reject:
		c.rejected = true
		c.log.Warnf("server rejected %d file(s)", len(c.files))
		return ClientFinish
	default:
		return c.fail(sequenceErr(c.state, p))
	}
}

// startFile opens the file at c.index and sends its header.
func (c *Client) startFile() ClientState {
	ref := c.refs[c.index]

	r, err := c.source.Open(ref)
	if err != nil {
		return c.fail(resourceErr("open", ref, err))
	}
	c.reader = r
	c.sent = 0

	header := protocol.FileTransferHeader{
		File:  c.files[c.index],
		Index: c.index,
		Total: len(c.files),
	}
	if err := c.stream.WritePacket(protocol.StartFile{Header: header}); err != nil {
		return c.fail(streamErr("write StartFile", err))
	}
	c.log.Debugf("sending %s (%d/%d, %d bytes)", header.File.Name, header.Index+1, header.Total, header.File.Size)
	return ClientStartSendingFile
}

// sendChunk streams one chunk, or ends the file once the reader is exhausted.
func (c *Client) sendChunk() ClientState {
	n, err := io.ReadFull(c.reader, c.chunk)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return c.fail(resourceErr("read", c.refs[c.index], err))
	}

	if n > 0 {
		if err := c.stream.WritePacket(protocol.FileData{Data: c.chunk[:n]}); err != nil {
			return c.fail(streamErr("write FileData", err))
		}
		c.sent += uint64(n)
		c.total += uint64(n)
		return ClientSendFileData
	}

	c.closeReader()
	if declared := c.files[c.index].Size; c.sent != declared {
		c.log.Warnf("%s: streamed %d bytes but announced %d", c.files[c.index].Name, c.sent, declared)
	}
	if err := c.stream.WritePacket(protocol.EndFile{}); err != nil {
		return c.fail(streamErr("write EndFile", err))
	}
	util.Stats.AddFile()
	return ClientEndSendingFile
}

func (c *Client) nextFile() ClientState {
	if c.index < len(c.files)-1 {
		c.index++
		return c.startFile()
	}

	if err := c.stream.WritePacket(protocol.Finish{}); err != nil {
		return c.fail(streamErr("write Finish", err))
	}
	return ClientFinish
}

func (c *Client) fail(err error) ClientState {
	c.err = err
	c.log.Debugf("client failed in %s: %v", c.state, err)
	return ClientError
}

func (c *Client) closeReader() {
	if c.reader != nil {
		c.reader.Close()
		c.reader = nil
	}
}

func (c *Client) release() {
	c.closeReader()
	if err := c.stream.Close(); err != nil {
		c.log.Debugf("closing stream: %v", err)
	}
}
