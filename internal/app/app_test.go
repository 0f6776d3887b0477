package app_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/1ureka/sendfile/internal/app"
	"github.com/1ureka/sendfile/internal/config"
	"github.com/1ureka/sendfile/internal/ledger"
	"github.com/1ureka/sendfile/internal/metrics"
	"github.com/1ureka/sendfile/internal/protocol"
	"github.com/1ureka/sendfile/internal/session"
)

// ---------------------------------------------------------------------------
// Recording tracer
// ---------------------------------------------------------------------------

type recordedSpan struct {
	noop.Span

	mu     sync.Mutex
	name   string
	attrs  map[attribute.Key]attribute.Value
	status codes.Code
	ended  bool
}

func (s *recordedSpan) SetAttributes(kv ...attribute.KeyValue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range kv {
		s.attrs[a.Key] = a.Value
	}
}

func (s *recordedSpan) SetStatus(c codes.Code, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = c
}

func (s *recordedSpan) End(...trace.SpanEndOption) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ended = true
}

type recordingTracer struct {
	embedded.Tracer

	mu    sync.Mutex
	spans []*recordedSpan
}

func (t *recordingTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	s := &recordedSpan{name: name, attrs: map[attribute.Key]attribute.Value{}}
	cfg := trace.NewSpanStartConfig(opts...)
	s.SetAttributes(cfg.Attributes()...)

	t.mu.Lock()
	t.spans = append(t.spans, s)
	t.mu.Unlock()
	return trace.ContextWithSpan(ctx, s), s
}

func (t *recordingTracer) find(name string) *recordedSpan {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.spans {
		if s.name == name {
			return s
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

func writeFiles(t *testing.T, contents map[string]string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for name, body := range contents {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		paths = append(paths, p)
	}
	return paths
}

func baseConfig(t *testing.T, kind string) config.Config {
	t.Helper()
	cfg, err := config.Load(config.New(), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Transport = kind
	cfg.Addr = "127.0.0.1:0"
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	cfg.ChunkSize = 1024
	return cfg
}

// startServe runs Serve in the background and returns the bound address.
func startServe(t *testing.T, cfg config.Config, deps app.Deps) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	addrCh := make(chan net.Addr, 1)
	deps.OnListen = func(addr net.Addr, _ string) { addrCh <- addr }

	errCh := make(chan error, 1)
	go func() { errCh <- app.Serve(ctx, cfg, deps) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-errCh:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not stop after cancel")
		}
	})

	select {
	case addr := <-addrCh:
		return addr.String()
	case err := <-errCh:
		t.Fatalf("Serve failed: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not start")
	}
	return ""
}

// waitForMetrics polls until the registry matches expected.
func waitForMetrics(t *testing.T, m *metrics.Metrics, expected string, names ...string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), names...)
		if err == nil {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("metrics never matched: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

const finishedReceiver = `
# HELP sendfile_sessions_total Sessions ended, by role and outcome
# TYPE sendfile_sessions_total counter
sendfile_sessions_total{outcome="finished",role="receiver"} 1
`

// ---------------------------------------------------------------------------
// End-to-end
// ---------------------------------------------------------------------------

// TestServeAndSend transfers two files over each address-based transport and
// checks the files, the ledger, the metrics and the spans.
func TestServeAndSend(t *testing.T) {
	for _, kind := range []string{"tls", "tcp", "ws"} {
		t.Run(kind, func(t *testing.T) {
			serverCfg := baseConfig(t, kind)
			m := metrics.New()
			rec := &ledger.Memory{}
			tracer := &recordingTracer{}

			addr := startServe(t, serverCfg, app.Deps{Metrics: m, Ledger: rec, Tracer: tracer})

			contents := map[string]string{
				"notes.txt": "hello",
				"big.bin":   strings.Repeat("x", 10_000),
			}
			files := writeFiles(t, contents)

			clientCfg := baseConfig(t, kind)
			clientCfg.Addr = addr
			if err := app.Send(context.Background(), clientCfg, files, app.Deps{Tracer: tracer}); err != nil {
				t.Fatalf("Send failed: %v", err)
			}

			waitForMetrics(t, m, finishedReceiver, "sendfile_sessions_total")

			for name, body := range contents {
				got, err := os.ReadFile(filepath.Join(serverCfg.OutputDir, name))
				if err != nil {
					t.Fatalf("read %s: %v", name, err)
				}
				if string(got) != body {
					t.Errorf("%s: content mismatch", name)
				}
			}

			entries := rec.Entries()
			if len(entries) != 2 {
				t.Fatalf("ledger: got %d entries, want 2", len(entries))
			}
			for _, e := range entries {
				if e.Written != uint64(len(contents[e.Name])) || e.Path != filepath.Join(serverCfg.OutputDir, e.Name) {
					t.Errorf("unexpected ledger entry: %+v", e)
				}
			}

			for _, name := range []string{"sendfile.send", "sendfile.receive"} {
				span := tracer.find(name)
				if span == nil {
					t.Fatalf("no %s span", name)
				}
				span.mu.Lock()
				if span.status != codes.Ok || !span.ended {
					t.Errorf("%s: status %v, ended %v", name, span.status, span.ended)
				}
				span.mu.Unlock()
			}
		})
	}
}

// TestSendRejected verifies limits and operator refusal surface as
// ErrRejected on the sender.
func TestSendRejected(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*config.Config)
		deps   app.Deps
	}{
		{"max files", func(c *config.Config) { c.Policy.MaxFiles = 1 }, app.Deps{}},
		{"max bytes", func(c *config.Config) { c.Policy.MaxBytes = 3 }, app.Deps{}},
		{"operator", func(*config.Config) {}, app.Deps{
			Confirm: func(string, []protocol.FileMeta) bool { return false },
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			serverCfg := baseConfig(t, "tcp")
			tc.mutate(&serverCfg)
			addr := startServe(t, serverCfg, tc.deps)

			clientCfg := baseConfig(t, "tcp")
			clientCfg.Addr = addr
			files := writeFiles(t, map[string]string{"a.txt": "aaaa", "b.txt": "bbbb"})

			err := app.Send(context.Background(), clientCfg, files, app.Deps{})
			if !errors.Is(err, app.ErrRejected) {
				t.Fatalf("expected ErrRejected, got %v", err)
			}
			if _, err := os.Stat(serverCfg.OutputDir); !os.IsNotExist(err) {
				t.Error("nothing should be written after a rejection")
			}
		})
	}
}

// TestConfirmSeesAnnouncement verifies the operator hook receives the list.
func TestConfirmSeesAnnouncement(t *testing.T) {
	var got []protocol.FileMeta
	serverCfg := baseConfig(t, "tcp")
	m := metrics.New()
	addr := startServe(t, serverCfg, app.Deps{
		Metrics: m,
		Confirm: func(_ string, files []protocol.FileMeta) bool {
			got = files
			return true
		},
	})

	clientCfg := baseConfig(t, "tcp")
	clientCfg.Addr = addr
	files := writeFiles(t, map[string]string{"only.txt": "123"})
	if err := app.Send(context.Background(), clientCfg, files, app.Deps{}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitForMetrics(t, m, finishedReceiver, "sendfile_sessions_total")

	if len(got) != 1 || got[0] != (protocol.FileMeta{Name: "only.txt", Size: 3}) {
		t.Errorf("unexpected announcement: %+v", got)
	}
}

func TestSendPreflight(t *testing.T) {
	cfg := baseConfig(t, "tcp")
	cfg.Addr = "127.0.0.1:1" // never dialed

	testCases := []struct {
		name  string
		files []string
		want  error
	}{
		{"no files", nil, session.ErrNoFiles},
		{"missing", []string{filepath.Join(t.TempDir(), "missing")}, session.ErrLocalResource},
		{"directory", []string{t.TempDir()}, session.ErrLocalResource},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := app.Send(context.Background(), cfg, tc.files, app.Deps{}); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSendNoReceiver(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	cfg := baseConfig(t, "tcp")
	cfg.Addr = addr
	files := writeFiles(t, map[string]string{"a.txt": "a"})

	if err := app.Send(context.Background(), cfg, files, app.Deps{}); !errors.Is(err, session.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestServeInvalidConfig(t *testing.T) {
	cfg := baseConfig(t, "carrier-pigeon")
	if err := app.Serve(context.Background(), cfg, app.Deps{}); err == nil {
		t.Fatal("expected an invalid transport to fail")
	}
}

func TestNormalizeSignalURL(t *testing.T) {
	testCases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"ws://host:8080/ws?pin=1234", "ws://host:8080/ws?pin=1234", false},
		{"host:8080?pin=1234", "ws://host:8080/ws?pin=1234", false},
		{"https://abc.devtunnels.ms/?pin=9", "wss://abc.devtunnels.ms/ws?pin=9", false},
		{"http://host/other#frag?pin=1", "", true},
		{"ws://host:8080/ws", "", true},
		{"ftp://host?pin=1", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := app.NormalizeSignalURL(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("NormalizeSignalURL(%q): err %v, wantErr %v", tc.in, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("NormalizeSignalURL(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

// TestServeAndSendP2P runs the full signaling + DataChannel path.
func TestServeAndSendP2P(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping WebRTC negotiation in short mode")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	serverCfg := baseConfig(t, "p2p")
	urlCh := make(chan string, 1)
	type result struct {
		srv *session.Server
		err error
	}
	done := make(chan result, 1)
	go func() {
		srv, err := app.ServeP2P(ctx, serverCfg, app.Deps{
			OnListen: func(addr net.Addr, pin string) {
				urlCh <- fmt.Sprintf("ws://%s/ws?pin=%s", addr, pin)
			},
		})
		done <- result{srv, err}
	}()

	clientCfg := baseConfig(t, "p2p")
	select {
	case clientCfg.SignalURL = <-urlCh:
	case <-time.After(5 * time.Second):
		t.Fatal("signaling server did not start")
	}

	files := writeFiles(t, map[string]string{"p2p.txt": strings.Repeat("p", 300_000)})
	if err := app.Send(ctx, clientCfg, files, app.Deps{}); err != nil {
		if errors.Is(err, session.ErrTransport) {
			t.Skipf("no WebRTC connectivity in this environment: %v", err)
		}
		t.Fatalf("Send failed: %v", err)
	}

	r := <-done
	if r.err != nil {
		t.Fatalf("ServeP2P failed: %v", r.err)
	}
	if got := r.srv.Received(); len(got) != 1 || got[0].Written != 300_000 {
		t.Errorf("unexpected received files: %+v", got)
	}
}
