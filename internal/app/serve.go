package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1ureka/sendfile/internal/config"
	"github.com/1ureka/sendfile/internal/ledger"
	"github.com/1ureka/sendfile/internal/metrics"
	"github.com/1ureka/sendfile/internal/protocol"
	"github.com/1ureka/sendfile/internal/session"
	"github.com/1ureka/sendfile/internal/transport"
	"github.com/1ureka/sendfile/internal/util"
)

// Serve runs the receiver: it listens on the configured transport and runs
// one session per accepted stream until ctx is cancelled, then waits for
// sessions in flight. Session failures are logged, not returned.
func Serve(ctx context.Context, cfg config.Config, deps Deps) error {
	if err := cfg.Validate(config.RoleReceiver); err != nil {
		return err
	}
	kind, _ := cfg.Kind()
	if kind == transport.KindP2P {
		_, err := ServeP2P(ctx, cfg, deps)
		return err
	}

	opts := transport.Options{Kind: kind, Addr: cfg.Addr, IdleTimeout: cfg.IdleTimeout}
	if kind == transport.KindTLS {
		tlsCfg, err := transport.ServerConfig(cfg.TLS.Cert, cfg.TLS.Key)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		opts.TLS = tlsCfg
	}

	ln, err := transport.Listen(opts)
	if err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	util.LogInfo("receiving into %s, listening on %s (%s)", cfg.OutputDir, ln.Addr(), kind)
	if deps.OnListen != nil {
		deps.OnListen(ln.Addr(), "")
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			receive(ctx, conn, conn.RemoteAddr().String(), util.ConnID(conn), cfg, deps)
		}()
	}
}

// receive runs one receiving session over rw and reports it.
func receive(ctx context.Context, rw io.ReadWriteCloser, remote string, id uint32, cfg config.Config, deps Deps) (*session.Server, error) {
	log := util.NewLogger(id)
	log.Infof("session from %s", remote)

	ctx, span := deps.tracer().Start(ctx, "sendfile.receive",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("net.peer.address", remote),
			attribute.String("sendfile.session", fmt.Sprintf("%08x", id)),
		),
	)
	defer span.End()

	util.Stats.AddSession()
	defer util.Stats.CloseSession()
	done := deps.Metrics.SessionStarted(roleReceiver)

	policy := cfg.ReceiverPolicy()
	if deps.Confirm != nil {
		policy = session.All(policy, func(files []protocol.FileMeta) bool {
			return deps.Confirm(remote, files)
		})
	}

	sink := session.DirSink{Dir: cfg.OutputDir}
	rec := deps.ledger()
	start := time.Now()

	srv := session.NewServer(transport.Counted{ReadWriteCloser: rw}, sink,
		session.WithPolicy(policy),
		session.WithServerLogger(log),
		session.WithFileReceived(func(f session.ReceivedFile) {
			deps.Metrics.FileTransferred(roleReceiver, f.Written, f.Mismatch())

			path, _ := sink.Path(f.Name)
			entry := ledger.Entry{
				Session:  fmt.Sprintf("%08x", id),
				Remote:   remote,
				Name:     f.Name,
				Path:     path,
				Declared: f.Declared,
				Written:  f.Written,
				At:       time.Now(),
			}
			if err := rec.Record(ctx, entry); err != nil {
				log.Warnf("failed to record %s in ledger: %v", f.Name, err)
			}
		}),
	)
	err := srv.Run(ctx)

	var written uint64
	for _, f := range srv.Received() {
		written += f.Written
	}
	span.SetAttributes(
		attribute.Int("sendfile.files.announced", len(srv.Files())),
		attribute.Int("sendfile.files.received", len(srv.Received())),
		attribute.Int64("sendfile.bytes", int64(written)),
	)

	switch {
	case err != nil:
		done(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Errorf("session failed in %s: %v", srv.State(), err)
	case srv.Rejected():
		done(metrics.OutcomeRejected)
		span.SetAttributes(attribute.Bool("sendfile.rejected", true))
		log.Warnf("rejected %d file(s) from %s", len(srv.Files()), remote)
	default:
		done(metrics.OutcomeFinished)
		span.SetStatus(codes.Ok, "")
		log.Successf("received %d file(s), %s in %s from %s", len(srv.Received()),
			strings.TrimSpace(util.FormatBytes(float64(written))), time.Since(start).Round(time.Millisecond), remote)
	}
	return srv, err
}
