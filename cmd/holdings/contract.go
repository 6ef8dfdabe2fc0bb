package main

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/evm"
)

var (
	statsUser     string
	quoteCurrency string
	quoteQuantity uint64
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show contract supply, prices, fees and balances",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var user *common.Address
		if statsUser != "" {
			u, err := parseAccount(statsUser)
			if err != nil {
				return err
			}
			user = &u
		}

		st, err := chain.NFT.Stats(cmd.Context(), user)
		if err != nil {
			return err
		}
		if flags.Output == "json" {
			return printJSON(cmd.OutOrStdout(), st)
		}

		eth, usdc := domain.CurrencyETH.Decimals(), domain.CurrencyUSDC.Decimals()
		rows := [][2]string{
			{"contract", st.Contract},
			{"owner", orDash(st.Owner)},
			{"base uri", orDash(st.BaseURI)},
			{"minting enabled", boolString(st.MintingEnabled)},
			{"supply", fmt.Sprintf("%s / %s (%.2f%%)", intString(st.TotalSupply), intString(st.MaxSupply), st.SupplyPercentage())},
			{"mint price", fmt.Sprintf("%s ETH / %s USDC", evm.FormatUnits(st.MintPriceETH, eth), evm.FormatUnits(st.MintPriceUSDC, usdc))},
			{"fees collected", fmt.Sprintf("%s ETH / %s USDC", evm.FormatUnits(st.TotalETHFees, eth), evm.FormatUnits(st.TotalUSDCFees, usdc))},
			{"contract balance", fmt.Sprintf("%s ETH / %s USDC", evm.FormatUnits(st.ETHBalance, eth), evm.FormatUnits(st.USDCBalance, usdc))},
		}
		if user != nil {
			rows = append(rows, [2]string{
				"fees paid by " + st.User,
				fmt.Sprintf("%s ETH / %s USDC", evm.FormatUnits(st.UserETHFees, eth), evm.FormatUnits(st.UserUSDCFees, usdc)),
			})
		}
		return printPairs(cmd.OutOrStdout(), rows)
	},
}

var quoteCmd = &cobra.Command{
	Use:   "quote",
	Short: "Price a batch mint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		currency := domain.Currency(quoteCurrency)
		q, err := chain.NFT.Quote(cmd.Context(), currency, quoteQuantity)
		if err != nil {
			return err
		}
		if flags.Output == "json" {
			return printJSON(cmd.OutOrStdout(), q)
		}
		unit := currency.Decimals()
		return printPairs(cmd.OutOrStdout(), [][2]string{
			{"currency", string(q.Currency)},
			{"quantity", strconv.FormatUint(q.Quantity, 10)},
			{"unit price", evm.FormatUnits(q.UnitPrice, unit)},
			{"total", evm.FormatUnits(q.Total, unit)},
		})
	},
}

func init() {
	statsCmd.Flags().StringVar(&statsUser, "user", "", "Also show fees paid by this address")
	quoteCmd.Flags().StringVar(&quoteCurrency, "currency", string(domain.CurrencyETH), "Payment currency: eth|usdc")
	quoteCmd.Flags().Uint64Var(&quoteQuantity, "quantity", 1, "Number of tokens to mint")
}

func intString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func boolString(b *bool) string {
	if b == nil {
		return "-"
	}
	return strconv.FormatBool(*b)
}
