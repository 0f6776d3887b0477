package main

import (
	"context"
	"os"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/sendfile/internal/app"
	"github.com/1ureka/sendfile/internal/transport"
	"github.com/1ureka/sendfile/internal/util"
)

// runInteractive prompts for the role and the few settings that have no
// sensible default, then runs like serve or send would.
func runInteractive(ctx context.Context, cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	role, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Receive — Accept files into a directory", "Send    — Stream files to a receiver"}).
		WithDefaultText("Select your role").
		Show()
	pterm.Println()

	cfg.Transport = askTransport(cfg.Transport)

	if strings.HasPrefix(role, "Receive") {
		cfg.Addr = askText("Listen address", cfg.Addr)
		cfg.OutputDir = askText("Output directory", cfg.OutputDir)
		return runServe(ctx, cfg)
	}

	if cfg.Transport == string(transport.KindP2P) {
		cfg.SignalURL = askSignalURL()
	} else {
		cfg.Addr = askText("Receiver address", cfg.Addr)
	}
	return runSend(ctx, cfg, askFiles())
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

func askTransport(current string) string {
	kind, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			string(transport.KindTLS),
			string(transport.KindTCP),
			string(transport.KindWS),
			string(transport.KindP2P),
		}).
		WithDefaultOption(current).
		WithDefaultText("Transport").
		Show()
	pterm.Println()
	return kind
}

// askText prompts once and keeps def when the answer is empty.
func askText(prompt, def string) string {
	raw, _ := pterm.DefaultInteractiveTextInput.
		WithDefaultText(prompt).
		WithDefaultValue(def).
		Show()
	pterm.Println()

	if raw = strings.TrimSpace(raw); raw == "" {
		return def
	}
	return raw
}

// askSignalURL prompts until a usable signaling URL is entered.
func askSignalURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Signaling URL (e.g. ws://192.168.1.5:7878/ws?pin=123456)").
			Show()
		pterm.Println()

		if _, err := app.NormalizeSignalURL(raw); err == nil {
			return raw
		}
		util.LogWarning("invalid input: please enter a host or URL with its pin")
	}
}

// askFiles collects paths one per prompt until an empty answer, skipping
// paths that are not regular files.
func askFiles() []string {
	var files []string
	for {
		prompt := "File to send (empty to start)"
		if len(files) == 0 {
			prompt = "File to send"
		}
		raw, _ := pterm.DefaultInteractiveTextInput.WithDefaultText(prompt).Show()
		pterm.Println()

		path := strings.Trim(strings.TrimSpace(raw), `"'`)
		if path == "" {
			if len(files) > 0 {
				return files
			}
			continue
		}

		if info, err := os.Stat(path); err != nil || !info.Mode().IsRegular() {
			util.LogWarning("not a regular file: %s", path)
			continue
		}
		files = append(files, path)
	}
}
