// Command holdings lists and watches the tokens an account owns on the fee
// NFT contract, resolves their metadata and reads contract views.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"nft-holdings/internal/app"
	"nft-holdings/internal/config"
	"nft-holdings/internal/logging"
)

type globalFlags struct {
	Output   string
	RPC      string
	Contract string
	LogLevel string
}

var (
	flags  globalFlags
	cfg    *config.Config
	logger zerolog.Logger
	chain  *app.Chain
)

var rootCmd = &cobra.Command{
	Use:           "holdings",
	Short:         "Inspect ERC-721 holdings on the fee NFT contract",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig(cmd)
		if err != nil {
			return err
		}
		logger = logging.NewWithWriter(os.Stderr, cfg.Env, cfg.LogLevel)
		chain = app.NewChain(cfg, logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flags.Output, "output", "o", "text", "Output format: text|json")
	rootCmd.PersistentFlags().StringVar(&flags.RPC, "rpc", "", "JSON-RPC endpoint (overrides RPC_ENDPOINT)")
	rootCmd.PersistentFlags().StringVar(&flags.Contract, "contract", "", "Contract address (overrides CONTRACT_ADDRESS)")
	rootCmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(metadataCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(quoteCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment and applies flag overrides. Flags are
// applied before validation so they can supply required values.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	for key, flag := range map[string]string{
		"RPC_ENDPOINT":     "rpc",
		"CONTRACT_ADDRESS": "contract",
		"LOG_LEVEL":        "log-level",
	} {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			if err := os.Setenv(key, f.Value.String()); err != nil {
				return nil, err
			}
		}
	}
	if flags.Output != "text" && flags.Output != "json" {
		return nil, fmt.Errorf("unknown output format %q", flags.Output)
	}
	return config.Load()
}

func parseAccount(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("invalid account %q", s)
	}
	return common.HexToAddress(s), nil
}
