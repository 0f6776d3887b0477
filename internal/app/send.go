package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/1ureka/sendfile/internal/config"
	"github.com/1ureka/sendfile/internal/metrics"
	"github.com/1ureka/sendfile/internal/session"
	"github.com/1ureka/sendfile/internal/transport"
	"github.com/1ureka/sendfile/internal/util"
)

// Send runs the sender: it checks every path, connects over the configured
// transport and streams the files in order. A rejection is reported as
// ErrRejected.
func Send(ctx context.Context, cfg config.Config, files []string, deps Deps) error {
	if err := cfg.Validate(config.RoleSender); err != nil {
		return err
	}
	if err := CheckFiles(files); err != nil {
		return err
	}

	kind, _ := cfg.Kind()
	if kind == transport.KindP2P {
		return SendP2P(ctx, cfg, files, deps)
	}

	opts := transport.Options{Kind: kind, Addr: cfg.Addr, IdleTimeout: cfg.IdleTimeout}
	if kind == transport.KindTLS {
		tlsCfg, err := transport.ClientConfig(cfg.TLS.CA, cfg.TLS.ServerName)
		if err != nil {
			return fmt.Errorf("tls: %w", err)
		}
		opts.TLS = tlsCfg
	}

	conn, err := transport.Dial(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: connect %s: %w", session.ErrTransport, cfg.Addr, err)
	}
	util.LogInfo("connected to %s (%s)", conn.RemoteAddr(), kind)

	return send(ctx, conn, conn.RemoteAddr().String(), util.ConnID(conn), cfg, files, deps)
}

// CheckFiles verifies that there is at least one path and that each one is
// a regular file, before any connection is made.
func CheckFiles(files []string) error {
	if len(files) == 0 {
		return session.ErrNoFiles
	}
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return fmt.Errorf("%w: %w", session.ErrLocalResource, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", session.ErrLocalResource, f)
		}
	}
	return nil
}

// send runs one sending session over rw and reports it.
func send(ctx context.Context, rw io.ReadWriteCloser, remote string, id uint32, cfg config.Config, files []string, deps Deps) error {
	log := util.NewLogger(id)

	ctx, span := deps.tracer().Start(ctx, "sendfile.send",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("net.peer.address", remote),
			attribute.String("sendfile.session", fmt.Sprintf("%08x", id)),
			attribute.Int("sendfile.files.announced", len(files)),
		),
	)
	defer span.End()

	util.Stats.AddSession()
	defer util.Stats.CloseSession()
	done := deps.Metrics.SessionStarted(roleSender)
	start := time.Now()

	client := session.NewClient(transport.Counted{ReadWriteCloser: rw}, files,
		session.WithChunkSize(cfg.ChunkSize),
		session.WithClientLogger(log),
	)
	err := client.Run(ctx)
	span.SetAttributes(attribute.Int64("sendfile.bytes", int64(client.BytesSent())))

	switch {
	case err != nil:
		done(metrics.OutcomeFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	case client.Rejected():
		done(metrics.OutcomeRejected)
		span.SetAttributes(attribute.Bool("sendfile.rejected", true))
		return ErrRejected
	}

	for _, f := range client.Files() {
		deps.Metrics.FileTransferred(roleSender, f.Size, false)
	}
	done(metrics.OutcomeFinished)
	span.SetStatus(codes.Ok, "")
	log.Successf("sent %d file(s), %s in %s", len(client.Files()),
		strings.TrimSpace(util.FormatBytes(float64(client.BytesSent()))), time.Since(start).Round(time.Millisecond))
	return nil
}
