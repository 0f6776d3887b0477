// Sendfile CLI entry point.
//
// A receiver (serve) accepts an announced list of files and writes them into
// an output directory; a sender (send) streams local files to it over TLS,
// plain TCP, WebSocket or a WebRTC DataChannel.
//
// Started without arguments it falls back to interactive prompts.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/sendfile/internal/app"
	"github.com/1ureka/sendfile/internal/config"
	"github.com/1ureka/sendfile/internal/ledger"
	"github.com/1ureka/sendfile/internal/metrics"
	"github.com/1ureka/sendfile/internal/protocol"
	"github.com/1ureka/sendfile/internal/util"
)

var version = "dev"

var configFile string

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "sendfile",
		Short: "Send files to a receiver over an encrypted stream",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				util.EnableDebug()
			}
			pterm.Info.Println(fmt.Sprintf("Sendfile — v%s", version))
			pterm.Println()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInteractive(cmd.Context(), cmd)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (yaml, json or toml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	rootCmd.AddCommand(
		serveCmd(),
		sendCmd(),
		ledgerCmd(),
		versionCmd(),
	)

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
	case errors.Is(err, app.ErrRejected):
		util.LogWarning("%v", err)
	default:
		util.LogError("%v", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive files into the output directory",
		Long: `Listen on --addr and accept sessions until interrupted.

With --transport p2p, a signaling server is started on --addr instead and
a single session runs over a WebRTC DataChannel.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	commonFlags(cmd)
	f.String("output-dir", "out", "Directory received files are written into")
	f.String("tls-cert", "", "PEM certificate (self-signed when empty)")
	f.String("tls-key", "", "PEM private key")
	f.Int("policy-max-files", 0, "Reject lists with more files (0 = unlimited)")
	f.Uint64("policy-max-bytes", 0, "Reject lists larger than this many bytes (0 = unlimited)")
	f.Bool("policy-confirm", false, "Ask before accepting each list")
	f.String("metrics-addr", "", "Expose Prometheus metrics on this address")
	f.String("redis-addr", "", "Record received files in this Redis server")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database")
	return cmd
}

func sendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send FILE...",
		Short: "Send one or more files to a receiver",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runSend(cmd.Context(), cfg, args)
		},
	}

	f := cmd.Flags()
	commonFlags(cmd)
	f.Int("chunk-size", 0, "Bytes per FileData packet (default 60KiB)")
	f.String("tls-ca", "", "PEM CA used to verify the receiver (verification is skipped when empty)")
	f.String("tls-server-name", "", "Expected server name in the receiver's certificate")
	f.String("signal-url", "", "Receiver's signaling URL with pin (p2p only)")
	f.String("metrics-addr", "", "Expose Prometheus metrics on this address")
	return cmd
}

func commonFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("addr", "", "Address to listen on or connect to")
	f.StringP("transport", "t", "", "tls, tcp, ws or p2p")
	f.Duration("idle-timeout", 0, "Close the stream after this long without traffic (0 = never)")
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(*cobra.Command, []string) {
			pterm.Printf("sendfile %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// loadConfig merges defaults, the config file, the environment and the
// flags that were set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.New()
	if err := config.BindFlags(v, cmd.Flags()); err != nil {
		return config.Config{}, err
	}
	return config.Load(v, configFile)
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

func runServe(ctx context.Context, cfg config.Config) error {
	deps, closeDeps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	if cfg.Policy.Confirm {
		deps.Confirm = confirmPrompt()
	}

	util.StartStatsReporter(ctx)
	if err := app.Serve(ctx, cfg, deps); err != nil {
		return err
	}
	util.LogInfo("receiver stopped")
	return nil
}

func runSend(ctx context.Context, cfg config.Config, files []string) error {
	deps, closeDeps, err := buildDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDeps()

	util.StartStatsReporter(ctx)
	return app.Send(ctx, cfg, files, deps)
}

// buildDeps starts the metrics endpoint and connects the ledger when they
// are configured.
func buildDeps(ctx context.Context, cfg config.Config) (app.Deps, func(), error) {
	var deps app.Deps

	if cfg.MetricsAddr != "" {
		deps.Metrics = metrics.New()
		go func() {
			if err := deps.Metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				util.LogWarning("metrics endpoint stopped: %v", err)
			}
		}()
	}

	if cfg.Redis.Addr == "" {
		return deps, func() {}, nil
	}
	rec, err := ledger.NewRedis(ctx, ledger.RedisOptions{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return app.Deps{}, nil, err
	}
	deps.Ledger = rec
	util.LogInfo("recording received files in redis at %s", cfg.Redis.Addr)
	return deps, func() { rec.Close() }, nil
}

// confirmPrompt asks the operator about each announced list. Concurrent
// sessions take turns at the prompt.
func confirmPrompt() func(string, []protocol.FileMeta) bool {
	var mu sync.Mutex
	return func(remote string, files []protocol.FileMeta) bool {
		mu.Lock()
		defer mu.Unlock()

		var total uint64
		rows := pterm.TableData{{"#", "Name", "Size"}}
		for i, f := range files {
			total += f.Size
			rows = append(rows, []string{fmt.Sprint(i), f.Name, util.FormatBytes(float64(f.Size))})
		}
		pterm.Println()
		pterm.DefaultTable.WithHasHeader().WithData(rows).Render()

		ok, _ := pterm.DefaultInteractiveConfirm.
			WithDefaultText(fmt.Sprintf("Accept %d file(s), %s from %s?", len(files), util.FormatBytes(float64(total)), remote)).
			Show()
		return ok
	}
}
