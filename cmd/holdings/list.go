package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"nft-holdings/internal/app"
	"nft-holdings/internal/holdings"
)

var resolveAll bool

var listCmd = &cobra.Command{
	Use:   "list <account>",
	Short: "List the tokens an account owns in enumeration order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		sess, closeFn, err := loadSession(cmd.Context(), account)
		if err != nil {
			return err
		}
		defer closeFn()

		if resolveAll {
			for _, a := range sess.Assets() {
				resolve(cmd.Context(), sess, a.Index)
			}
		}
		return printView(cmd.OutOrStdout(), flags.Output, sess.View())
	},
}

var metadataCmd = &cobra.Command{
	Use:   "metadata <account> <index>...",
	Short: "Resolve metadata for the assets at the given enumeration indices",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAccount(args[0])
		if err != nil {
			return err
		}
		indices := make([]int, 0, len(args)-1)
		for _, s := range args[1:] {
			i, err := strconv.Atoi(s)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid index %q", s)
			}
			indices = append(indices, i)
		}

		sess, closeFn, err := loadSession(cmd.Context(), account)
		if err != nil {
			return err
		}
		defer closeFn()

		for _, i := range indices {
			if _, err := sess.Resolve(cmd.Context(), i); errors.Is(err, holdings.ErrAssetNotFound) {
				return err
			}
		}
		return printView(cmd.OutOrStdout(), flags.Output, sess.View())
	},
}

func init() {
	listCmd.Flags().BoolVar(&resolveAll, "resolve", false, "Resolve metadata for every asset")
}

// loadSession runs one aggregation for account and returns its session.
func loadSession(ctx context.Context, account common.Address) (*holdings.Session, func(), error) {
	balance, err := chain.NFT.BalanceOf(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("read balance: %w", err)
	}

	tracker := holdings.NewTracker(holdings.TrackerOptions{
		Aggregator: holdings.NewAggregator(holdings.AggregatorOptions{Tokens: chain.NFT, Logger: &logger}),
		Fetcher:    app.NewFetcher(cfg),
		Logger:     &logger,
	})
	tracker.Update(account, balance)

	sess, err := tracker.Wait(ctx)
	if err != nil {
		tracker.Close()
		return nil, nil, err
	}
	return sess, tracker.Close, nil
}

// resolve logs failures; the view shows the failed state.
func resolve(ctx context.Context, sess *holdings.Session, index int) {
	if _, err := sess.Resolve(ctx, index); err != nil {
		logger.Debug().Err(err).Int("index", index).Msg("metadata not resolved")
	}
}
