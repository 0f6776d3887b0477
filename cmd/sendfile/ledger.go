package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/sendfile/internal/ledger"
	"github.com/1ureka/sendfile/internal/util"
)

func ledgerCmd() *cobra.Command {
	var count int64

	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "List the latest files recorded in the Redis ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return errors.New("ledger: --redis-addr is required")
			}
			if count < 1 {
				return fmt.Errorf("ledger: --count must be positive, got %d", count)
			}

			rec, err := ledger.NewRedis(cmd.Context(), ledger.RedisOptions{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			if err != nil {
				return err
			}
			defer rec.Close()

			entries, err := rec.Recent(cmd.Context(), count)
			if err != nil {
				return fmt.Errorf("ledger: %w", err)
			}
			if len(entries) == 0 {
				util.LogInfo("no files recorded yet")
				return nil
			}
			return pterm.DefaultTable.WithHasHeader().WithData(ledgerRows(entries)).Render()
		},
	}

	f := cmd.Flags()
	f.Int64VarP(&count, "count", "n", 20, "Number of entries to show")
	f.String("redis-addr", "", "Redis server holding the ledger")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database")
	return cmd
}

// ledgerRows renders entries oldest first under a header row.
func ledgerRows(entries []ledger.Entry) pterm.TableData {
	rows := pterm.TableData{{"Time", "Session", "Remote", "Name", "Size"}}
	for _, e := range entries {
		size := util.FormatBytes(float64(e.Written))
		if e.Written != e.Declared {
			size += fmt.Sprintf(" (of %d)", e.Declared)
		}
		rows = append(rows, []string{e.At.Local().Format(time.DateTime), e.Session, e.Remote, e.Name, size})
	}
	return rows
}
