package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide transfer counter.
var Stats = &stats{}

type stats struct {
	Sessions  atomic.Int64 // cumulative sessions started since process start
	Closed    atomic.Int64 // cumulative sessions ended, whatever the outcome
	Files     atomic.Int64 // cumulative files fully transferred
	BytesSent atomic.Int64 // cumulative bytes written to streams
	BytesRecv atomic.Int64 // cumulative bytes read from streams
}

func (s *stats) AddSession()   { s.Sessions.Add(1) }
func (s *stats) CloseSession() { s.Closed.Add(1) }
func (s *stats) AddFile()      { s.Files.Add(1) }

func (s *stats) AddSent(n int) { s.BytesSent.Add(int64(n)) }
func (s *stats) AddRecv(n int) { s.BytesRecv.Add(int64(n)) }

// Active returns the number of sessions that have started but not ended.
func (s *stats) Active() int64 {
	return s.Sessions.Load() - s.Closed.Load()
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs transfer statistics
// every 10 seconds while there is traffic. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prevSent, prevRecv, prevFiles int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				files := Stats.Files.Load()

				outS := float64(sent-prevSent) / 10.0
				inS := float64(recv-prevRecv) / 10.0

				if files > prevFiles || inS > 10 || outS > 10 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, Stats.Active(), files-prevFiles))
				}

				prevSent = sent
				prevRecv = recv
				prevFiles = files

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// FormatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func FormatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(inS, outS float64, active, files int64) string {
	return fmt.Sprintf("In: %s/s | Out: %s/s | Sessions: %2d | Files: +%d",
		FormatBytes(inS),
		FormatBytes(outS),
		active,
		files,
	)
}
