package server

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/evm"
)

type StatsRequest struct {
	User string `query:"user" validate:"omitempty,eth_addr"`
}

type QuoteRequest struct {
	Currency string `query:"currency" validate:"required,oneof=eth usdc"`
	Quantity uint64 `query:"quantity" validate:"required,gte=1"`
}

// Amount is a raw integer amount with its display form.
type Amount struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
}

type Stats struct {
	Contract         string  `json:"contract"`
	TotalSupply      *string `json:"total_supply"`
	MaxSupply        *string `json:"max_supply"`
	SupplyPercentage float64 `json:"supply_percentage"`
	MintPriceETH     *Amount `json:"mint_price_eth"`
	MintPriceUSDC    *Amount `json:"mint_price_usdc"`
	TotalETHFees     *Amount `json:"total_eth_fees"`
	TotalUSDCFees    *Amount `json:"total_usdc_fees"`
	ETHBalance       *Amount `json:"eth_balance"`
	USDCBalance      *Amount `json:"usdc_balance"`
	MintingEnabled   *bool   `json:"minting_enabled"`
	Owner            *string `json:"owner"`
	BaseURI          *string `json:"base_uri"`
	User             string  `json:"user,omitempty"`
	UserETHFees      *Amount `json:"user_eth_fees,omitempty"`
	UserUSDCFees     *Amount `json:"user_usdc_fees,omitempty"`
}

type Quote struct {
	Currency  string `json:"currency"`
	Quantity  uint64 `json:"quantity"`
	UnitPrice Amount `json:"unit_price"`
	Total     Amount `json:"total"`
}

func (s *Server) GetStats(c echo.Context) error {
	var req StatsRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return fail(c, http.StatusUnprocessableEntity, err)
	}

	var user *common.Address
	if req.User != "" {
		u := common.HexToAddress(req.User)
		user = &u
	}

	st, err := s.contract.Stats(c.Request().Context(), user)
	if err != nil {
		return fail(c, http.StatusBadGateway, err)
	}

	eth, usdc := domain.CurrencyETH.Decimals(), domain.CurrencyUSDC.Decimals()
	return c.JSON(http.StatusOK, Res{Data: Stats{
		Contract:         st.Contract,
		TotalSupply:      intString(st.TotalSupply),
		MaxSupply:        intString(st.MaxSupply),
		SupplyPercentage: st.SupplyPercentage(),
		MintPriceETH:     amount(st.MintPriceETH, eth),
		MintPriceUSDC:    amount(st.MintPriceUSDC, usdc),
		TotalETHFees:     amount(st.TotalETHFees, eth),
		TotalUSDCFees:    amount(st.TotalUSDCFees, usdc),
		ETHBalance:       amount(st.ETHBalance, eth),
		USDCBalance:      amount(st.USDCBalance, usdc),
		MintingEnabled:   st.MintingEnabled,
		Owner:            st.Owner,
		BaseURI:          st.BaseURI,
		User:             st.User,
		UserETHFees:      amount(st.UserETHFees, eth),
		UserUSDCFees:     amount(st.UserUSDCFees, usdc),
	}})
}

func (s *Server) GetQuote(c echo.Context) error {
	var req QuoteRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, err)
	}
	if err := s.validator.Struct(req); err != nil {
		return fail(c, http.StatusUnprocessableEntity, err)
	}

	currency := domain.Currency(req.Currency)
	q, err := s.contract.Quote(c.Request().Context(), currency, req.Quantity)
	if err != nil {
		if errors.Is(err, evm.ErrInvalidQuantity) {
			return fail(c, http.StatusUnprocessableEntity, err)
		}
		return fail(c, http.StatusBadGateway, err)
	}

	return c.JSON(http.StatusOK, Res{Data: Quote{
		Currency:  string(q.Currency),
		Quantity:  q.Quantity,
		UnitPrice: *amount(q.UnitPrice, currency.Decimals()),
		Total:     *amount(q.Total, currency.Decimals()),
	}})
}

func amount(v *big.Int, decimals int32) *Amount {
	if v == nil {
		return nil
	}
	return &Amount{Raw: v.String(), Formatted: evm.FormatUnits(v, decimals)}
}

func intString(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}
