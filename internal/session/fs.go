package session

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/1ureka/sendfile/internal/protocol"
)

// Source resolves the client's file references.
type Source interface {
	// Stat describes ref as it will be announced: basename and current size.
	Stat(ref string) (protocol.FileMeta, error)
	// Open returns a reader positioned at the start of ref.
	Open(ref string) (io.ReadCloser, error)
}

// Sink creates the server's output files.
type Sink interface {
	// Create returns a writer for a new or truncated file called name.
	Create(name string) (io.WriteCloser, error)
	// Remove deletes a file created by Create, used for incomplete files.
	Remove(name string) error
}

// OSSource reads references as paths on the local filesystem.
type OSSource struct{}

func (OSSource) Stat(ref string) (protocol.FileMeta, error) {
	info, err := os.Stat(ref)
	if err != nil {
		return protocol.FileMeta{}, err
	}
	if !info.Mode().IsRegular() {
		return protocol.FileMeta{}, fmt.Errorf("%s is not a regular file", ref)
	}
	return protocol.FileMeta{Name: filepath.Base(ref), Size: uint64(info.Size())}, nil
}

func (OSSource) Open(ref string) (io.ReadCloser, error) {
	return os.Open(ref)
}

// DirSink writes files into Dir, creating it on first use.
type DirSink struct {
	Dir string
}

// Path returns where a file announced as name would be written.
func (d DirSink) Path(name string) (string, error) {
	base, err := SafeName(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(d.Dir, base), nil
}

func (d DirSink) Create(name string) (io.WriteCloser, error) {
	p, err := d.Path(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
}

func (d DirSink) Remove(name string) error {
	p, err := d.Path(name)
	if err != nil {
		return err
	}
	return os.Remove(p)
}

// SafeName reduces an announced name to its last path element, treating both
// '/' and '\' as separators. Names that reduce to nothing, to a directory
// reference, or to a volume are rejected.
func SafeName(name string) (string, error) {
	if strings.IndexByte(name, 0) >= 0 {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}

	base := path.Base(strings.ReplaceAll(name, `\`, "/"))
	switch base {
	case "", ".", "..", "/":
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	if filepath.VolumeName(base) != "" {
		return "", fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return base, nil
}
