package evm_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/evm"
	"nft-holdings/internal/evm/stub"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	ownerAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
)

func scriptStats(r *stub.Reader) {
	r.SetResult("nftTotalSupply", nil, big.NewInt(250))
	r.SetResult("nftMaxSupply", nil, big.NewInt(1000))
	r.SetResult("nftMintPriceEth", nil, big.NewInt(1e16))
	r.SetResult("nftMintPriceUsdc", nil, big.NewInt(25_000_000))
	r.SetResult("totalEthFees", nil, big.NewInt(3e17))
	r.SetResult("totalUsdcFees", nil, big.NewInt(100_000_000))
	r.SetResult("getEthBalance", nil, big.NewInt(2e17))
	r.SetResult("getUsdcBalance", nil, big.NewInt(75_000_000))
	r.SetResult("nftMintingEnabled", nil, true)
	r.SetResult("owner", nil, ownerAddr)
	r.SetResult("baseURI", nil, "ipfs://QmBase/")
}

func TestNFT_EnumerableViews(t *testing.T) {
	r := stub.NewReader()
	r.SetBalance(ownerAddr, 2)
	r.AddToken(ownerAddr, 0, 7, "ipfs://QmSeven")
	nft := evm.NewNFT(r, contractAddr)
	ctx := context.Background()

	bal, err := nft.BalanceOf(ctx, ownerAddr)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bal.Int64())

	id, err := nft.TokenOfOwnerByIndex(ctx, ownerAddr, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id.Int64())

	uri, err := nft.TokenURI(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "ipfs://QmSeven", uri)

	for _, c := range r.Calls() {
		assert.Equal(t, contractAddr, c.Contract)
	}
}

func TestNFT_TokenURIUnexpectedReturn(t *testing.T) {
	r := stub.NewReader()
	r.SetResult("tokenURI", []interface{}{big.NewInt(1)}, big.NewInt(1))
	nft := evm.NewNFT(r, contractAddr)

	_, err := nft.TokenURI(context.Background(), big.NewInt(1))
	assert.Error(t, err)
}

func TestNFT_Stats(t *testing.T) {
	r := stub.NewReader()
	scriptStats(r)
	r.SetResult("userEthFees", []interface{}{ownerAddr}, big.NewInt(5e15))
	r.SetResult("userUsdcFees", []interface{}{ownerAddr}, big.NewInt(1_000_000))
	nft := evm.NewNFT(r, contractAddr)

	stats, err := nft.Stats(context.Background(), &ownerAddr)
	require.NoError(t, err)

	assert.Equal(t, contractAddr.Hex(), stats.Contract)
	assert.Equal(t, int64(250), stats.TotalSupply.Int64())
	assert.Equal(t, int64(1000), stats.MaxSupply.Int64())
	assert.InDelta(t, 25.0, stats.SupplyPercentage(), 1e-9)
	require.NotNil(t, stats.MintingEnabled)
	assert.True(t, *stats.MintingEnabled)
	require.NotNil(t, stats.Owner)
	assert.Equal(t, ownerAddr.Hex(), *stats.Owner)
	require.NotNil(t, stats.BaseURI)
	assert.Equal(t, "ipfs://QmBase/", *stats.BaseURI)
	assert.Equal(t, ownerAddr.Hex(), stats.User)
	assert.Equal(t, int64(5e15), stats.UserETHFees.Int64())
	assert.Equal(t, int64(1_000_000), stats.UserUSDCFees.Int64())
}

func TestNFT_StatsPartialFailure(t *testing.T) {
	r := stub.NewReader()
	scriptStats(r)
	r.SetError("nftMaxSupply", nil, errors.New("execution reverted"))
	r.SetError("owner", nil, errors.New("execution reverted"))
	nft := evm.NewNFT(r, contractAddr)

	stats, err := nft.Stats(context.Background(), nil)
	require.NoError(t, err)

	assert.Nil(t, stats.MaxSupply)
	assert.Nil(t, stats.Owner)
	assert.Equal(t, 0.0, stats.SupplyPercentage())
	assert.Equal(t, int64(250), stats.TotalSupply.Int64())
	assert.Empty(t, stats.User)
	assert.Zero(t, r.CallCount("userEthFees"))
}

func TestNFT_Quote(t *testing.T) {
	r := stub.NewReader()
	scriptStats(r)
	nft := evm.NewNFT(r, contractAddr)
	ctx := context.Background()

	q, err := nft.Quote(ctx, domain.CurrencyUSDC, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.CurrencyUSDC, q.Currency)
	assert.Equal(t, uint64(4), q.Quantity)
	assert.Equal(t, int64(100_000_000), q.Total.Int64())
	assert.Equal(t, "100", evm.FormatUnits(q.Total, domain.CurrencyUSDC.Decimals()))

	q, err = nft.Quote(ctx, domain.CurrencyETH, 3)
	require.NoError(t, err)
	assert.Equal(t, "0.03", evm.FormatUnits(q.Total, domain.CurrencyETH.Decimals()))
}

func TestNFT_QuoteRejectsBadInput(t *testing.T) {
	r := stub.NewReader()
	scriptStats(r)
	nft := evm.NewNFT(r, contractAddr)
	ctx := context.Background()

	_, err := nft.Quote(ctx, domain.CurrencyETH, 0)
	assert.ErrorIs(t, err, evm.ErrInvalidQuantity)

	_, err = nft.Quote(ctx, domain.Currency("dai"), 1)
	assert.Error(t, err)

	assert.Zero(t, r.CallCount(""))
}
