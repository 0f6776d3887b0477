package app

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/pterm/pterm"

	"github.com/1ureka/sendfile/internal/config"
	"github.com/1ureka/sendfile/internal/session"
	"github.com/1ureka/sendfile/internal/signaling"
	"github.com/1ureka/sendfile/internal/util"
)

// ServeP2P hosts the signaling server on cfg.Addr, waits for one sender to
// connect over WebRTC and runs a single receiving session.
func ServeP2P(ctx context.Context, cfg config.Config, deps Deps) (*session.Server, error) {
	onListen := deps.OnListen
	if onListen == nil {
		onListen = printSignalingInfo
	}

	var pin string
	peer, err := signaling.EstablishAsHost(ctx, signaling.HostOptions{
		Addr: cfg.Addr,
		OnListen: func(addr net.Addr, p string) {
			pin = p
			onListen(addr, p)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: p2p: %w", session.ErrTransport, err)
	}
	util.LogSuccess("P2P channel established")

	return receive(ctx, peer, "p2p", util.StringID(cfg.Addr, pin), cfg, deps)
}

// SendP2P dials the receiver's signaling URL and runs one sending session
// over the resulting DataChannel.
func SendP2P(ctx context.Context, cfg config.Config, files []string, deps Deps) error {
	wsURL, err := NormalizeSignalURL(cfg.SignalURL)
	if err != nil {
		return err
	}

	peer, err := signaling.EstablishAsClient(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("%w: p2p: %w", session.ErrTransport, err)
	}
	util.LogSuccess("P2P channel established")

	return send(ctx, peer, "p2p", util.StringID(wsURL), cfg, files, deps)
}

// NormalizeSignalURL accepts a bare host[:port] or a ws/wss/http/https URL
// and returns the signaling endpoint, keeping the pin query parameter.
func NormalizeSignalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid signaling URL: %q", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid signaling URL scheme: %q", u.Scheme)
	}
	if u.Query().Get("pin") == "" {
		return "", fmt.Errorf("signaling URL has no pin: %q", raw)
	}
	u.Path = signaling.Path
	u.Fragment = ""
	return u.String(), nil
}

func printSignalingInfo(addr net.Addr, pin string) {
	pterm.DefaultBox.WithTitle("Signaling").Println(fmt.Sprintf(
		"Address : %s\nPIN     : %s\nURL     : ws://%s%s?pin=%s",
		addr, pin, addr, signaling.Path, pin,
	))
	util.LogInfo("waiting for the sender to connect...")
}
