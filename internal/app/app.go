// Package app contains the top-level orchestration for the receiver and
// sender roles: it turns a configuration into streams, runs one session per
// stream, and reports the outcome through logs, metrics, traces and the
// ledger.
package app

import (
	"errors"
	"net"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/1ureka/sendfile/internal/ledger"
	"github.com/1ureka/sendfile/internal/metrics"
	"github.com/1ureka/sendfile/internal/protocol"
)

// ErrRejected is returned by Send when the receiver declined the files.
// The session itself still ended cleanly.
var ErrRejected = errors.New("receiver rejected the files")

const tracerName = "github.com/1ureka/sendfile"

const (
	roleReceiver = "receiver"
	roleSender   = "sender"
)

// Deps carries the optional collaborators of a run. The zero value is usable.
type Deps struct {
	Metrics *metrics.Metrics
	Ledger  ledger.Recorder
	Tracer  trace.Tracer

	// Confirm, when set, is asked before accepting an announced list, after
	// the configured limits have passed.
	Confirm func(remote string, files []protocol.FileMeta) bool

	// OnListen is called once the receiver is reachable: with the listen
	// address, or for p2p with the signaling address and PIN.
	OnListen func(addr net.Addr, pin string)
}

func (d Deps) tracer() trace.Tracer {
	if d.Tracer != nil {
		return d.Tracer
	}
	return otel.Tracer(tracerName)
}

func (d Deps) ledger() ledger.Recorder {
	if d.Ledger != nil {
		return d.Ledger
	}
	return ledger.Nop{}
}
