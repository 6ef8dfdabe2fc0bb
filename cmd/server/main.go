// Package main runs the holdings HTTP API: per-account aggregation on request,
// head-driven reruns, metadata resolution and history recording.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nft-holdings/internal/app"
	"nft-holdings/internal/config"
	"nft-holdings/internal/evm"
	"nft-holdings/internal/holdings"
	"nft-holdings/internal/logging"
	"nft-holdings/internal/server"
)

const shutdownTimeout = 30 * time.Second

var (
	flagHTTPAddr  string
	flagUseMemory bool
)

var rootCmd = &cobra.Command{
	Use:           "holdings-server",
	Short:         "Serve ERC-721 holdings over HTTP",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("http-addr") {
			cfg.HTTPAddr = flagHTTPAddr
		}
		if cmd.Flags().Changed("use-memory") {
			cfg.UseMemory = flagUseMemory
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := cfg.ValidateStores(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&flagHTTPAddr, "http-addr", "", "HTTP listen address (overrides HTTP_ADDR)")
	rootCmd.Flags().BoolVar(&flagUseMemory, "use-memory", false, "Use in-memory history storage (overrides USE_MEMORY)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logging.New(cfg.Env, cfg.LogLevel)

	stores, cleanup, err := app.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	chain := app.NewChain(cfg, *logging.Named(&logger, "evm"))
	if id, err := chain.RPC.ChainID(ctx); err != nil {
		logger.Warn().Err(err).Msg("chain id unavailable")
	} else {
		logger.Info().Uint64("chain_id", id).Str("contract", cfg.ContractAddress).Msg("connected to node")
	}

	recorder := holdings.NewRecorder(holdings.RecorderOptions{
		Snapshots: stores.Snapshots,
		Runs:      stores.Runs,
		Blocks:    chain.RPC,
		Contract:  chain.NFT.Address().Hex(),
		Logger:    logging.Named(&logger, "recorder"),
	})

	registry := holdings.NewRegistry(holdings.RegistryOptions{
		Aggregator: holdings.NewAggregator(holdings.AggregatorOptions{
			Tokens: chain.NFT,
			Logger: logging.Named(&logger, "aggregator"),
		}),
		Balances:    chain.NFT,
		Fetcher:     app.NewFetcher(cfg),
		Subscribers: []func(*holdings.Session){recorder.Observe},
		IdleTTL:     cfg.TrackerIdleTTL,
		Logger:      logging.Named(&logger, "registry"),
	})

	srv := server.New(server.Options{
		Holdings:  registry,
		Contract:  chain.NFT,
		Snapshots: stores.Snapshots,
		Runs:      stores.Runs,
		Logger:    logging.Named(&logger, "http"),
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return ignoreCanceled(registry.Run(ctx))
	})

	g.Go(func() error {
		return ignoreCanceled(pollHeads(ctx, cfg, registry, &logger))
	})

	return g.Wait()
}

// pollHeads reruns changed accounts on every new head, or on a ticker when no
// websocket endpoint is configured or the subscription drops.
func pollHeads(ctx context.Context, cfg *config.Config, registry *holdings.Registry, logger *zerolog.Logger) error {
	log := logging.Named(logger, "heads")

	var heads <-chan evm.Head
	ws, err := app.NewHeads(ctx, cfg, *log)
	if err != nil {
		log.Warn().Err(err).Msg("websocket unavailable, polling")
	} else if ws != nil {
		defer ws.Close()
		ch, err := ws.SubscribeNewHeads(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("newHeads subscription failed, polling")
		} else {
			heads = ch
		}
	}

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				heads = nil
				continue
			}
			if n := registry.Poll(ctx); n > 0 {
				log.Debug().Uint64("block", head.Number).Int("reruns", n).Msg("balances changed")
			}
		case <-ticker.C:
			if heads == nil {
				registry.Poll(ctx)
			}
		}
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
