package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nft-holdings/internal/app"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <account>",
	Short: "Show recorded holding snapshots and aggregation runs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		if cfg.UseMemory {
			return fmt.Errorf("history needs POSTGRES_DSN and CLICKHOUSE_DSN; in-memory storage is empty")
		}

		ctx := cmd.Context()
		stores, cleanup, err := app.OpenStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()

		snaps, err := stores.Snapshots.ListByAccount(ctx, account.Hex(), historyLimit)
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		runs, err := stores.Runs.ListByAccount(ctx, account.Hex(), historyLimit)
		if err != nil {
			return fmt.Errorf("list runs: %w", err)
		}

		out := cmd.OutOrStdout()
		if flags.Output == "json" {
			return printJSON(out, map[string]interface{}{"snapshots": snaps, "runs": runs})
		}

		rows := make([][2]string, 0, len(snaps)+len(runs))
		for _, s := range snaps {
			block := "-"
			if s.BlockNumber != nil {
				block = fmt.Sprint(*s.BlockNumber)
			}
			rows = append(rows, [2]string{
				time.UnixMilli(s.CreatedAt).UTC().Format(time.RFC3339),
				fmt.Sprintf("snapshot block %s balance %s tokens [%s]", block, s.Balance, strings.Join(s.TokenIDs, ",")),
			})
		}
		for _, r := range runs {
			rows = append(rows, [2]string{
				time.UnixMilli(r.CompletedAt).UTC().Format(time.RFC3339),
				fmt.Sprintf("run %d assets, %d skipped, %d uri failures, %dms", r.AssetCount, r.Skipped, r.URIFailures, r.DurationMs),
			})
		}
		return printPairs(out, rows)
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum rows per table")
}
