package transport

import (
	"io"

	"github.com/1ureka/sendfile/internal/util"
)

// Counted reports every byte that crosses the wrapped stream to util.Stats.
type Counted struct {
	io.ReadWriteCloser
}

func (c Counted) Read(p []byte) (int, error) {
	n, err := c.ReadWriteCloser.Read(p)
	util.Stats.AddRecv(n)
	return n, err
}

func (c Counted) Write(p []byte) (int, error) {
	n, err := c.ReadWriteCloser.Write(p)
	util.Stats.AddSent(n)
	return n, err
}
