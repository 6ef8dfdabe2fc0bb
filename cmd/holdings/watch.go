package main

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"nft-holdings/internal/app"
	"nft-holdings/internal/evm"
	"nft-holdings/internal/holdings"
)

var watchPollInterval time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch <account>",
	Short: "Print the account's holdings whenever they change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		tracker := holdings.NewTracker(holdings.TrackerOptions{
			Aggregator: holdings.NewAggregator(holdings.AggregatorOptions{Tokens: chain.NFT, Logger: &logger}),
			Fetcher:    app.NewFetcher(cfg),
			Logger:     &logger,
		})
		defer tracker.Close()

		tracker.Subscribe(func(s *holdings.Session) {
			if err := printView(out, flags.Output, s.View()); err != nil {
				logger.Error().Err(err).Msg("print holdings")
			}
		})

		var heads evm.HeadSubscriber
		ws, err := app.NewHeads(ctx, cfg, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("websocket unavailable, polling")
		} else if ws != nil {
			defer ws.Close()
			heads = ws
		}

		interval := watchPollInterval
		if interval == 0 && heads == nil {
			interval = cfg.PollInterval
		}

		watcher := holdings.NewWatcher(holdings.WatcherOptions{
			Balances:     chain.NFT,
			Tracker:      tracker,
			Account:      account,
			Heads:        heads,
			PollInterval: interval,
			Logger:       &logger,
		})
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().DurationVar(&watchPollInterval, "poll-interval", 0, "Balance poll interval (default POLL_INTERVAL without a websocket)")
}
