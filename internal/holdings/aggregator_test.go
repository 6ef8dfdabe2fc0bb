package holdings

import (
	"context"
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_EmptyInputsIssueNoCalls(t *testing.T) {
	r, nft := newChain()
	agg := NewAggregator(AggregatorOptions{Tokens: nft})
	ctx := context.Background()

	cases := []struct {
		name    string
		account common.Address
		balance *big.Int
	}{
		{"zero balance", accountA, big.NewInt(0)},
		{"unknown balance", accountA, nil},
		{"negative balance", accountA, big.NewInt(-1)},
		{"missing account", common.Address{}, big.NewInt(3)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := agg.Aggregate(ctx, tc.account, tc.balance)
			require.NoError(t, err)
			assert.Empty(t, res.Assets)
			assert.Empty(t, res.Skipped)
		})
	}

	assert.Zero(t, r.CallCount(""), "no chain calls expected")
}

func TestAggregate_AllSucceedInIndexOrder(t *testing.T) {
	r, nft := newChain()
	for i := int64(0); i < 4; i++ {
		r.AddToken(accountA, i, 100+i, "ipfs://token/"+big.NewInt(100+i).String())
	}
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	res, err := agg.Aggregate(context.Background(), accountA, big.NewInt(4))
	require.NoError(t, err)

	require.Len(t, res.Assets, 4)
	for i, a := range res.Assets {
		assert.Equal(t, i, a.Index)
		assert.Equal(t, int64(100+i), a.TokenID.Int64())
		assert.Nil(t, a.Metadata)
	}
	assert.Equal(t, uint64(4), res.Balance)
	assert.Equal(t, accountA, res.Account)
}

func TestAggregate_Scenario(t *testing.T) {
	r, nft := newChain()
	r.AddToken(accountA, 0, 7, "uriA")
	r.AddToken(accountA, 1, 12, "uriB")
	r.AddToken(accountA, 2, 9, "uriC")
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	res, err := agg.Aggregate(context.Background(), accountA, big.NewInt(3))
	require.NoError(t, err)

	require.Len(t, res.Assets, 3)
	got := make([][2]interface{}, len(res.Assets))
	for i, a := range res.Assets {
		got[i] = [2]interface{}{a.TokenID.Int64(), a.URI}
	}
	assert.Equal(t, [][2]interface{}{{int64(7), "uriA"}, {int64(12), "uriB"}, {int64(9), "uriC"}}, got)
}

func TestAggregate_ReadsEachURIBeforeNextIndex(t *testing.T) {
	r, nft := newChain()
	r.AddToken(accountA, 0, 7, "uriA")
	r.AddToken(accountA, 1, 12, "uriB")

	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	_, err := agg.Aggregate(context.Background(), accountA, big.NewInt(2))
	require.NoError(t, err)

	var methods []string
	for _, c := range r.Calls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"tokenOfOwnerByIndex", "tokenURI", "tokenOfOwnerByIndex", "tokenURI"}, methods)
}

func TestAggregate_EnumerationFailureSkipsIndex(t *testing.T) {
	r, nft := newChain()
	r.AddToken(accountA, 0, 7, "uriA")
	r.FailIndex(accountA, 1, errNode)
	r.AddToken(accountA, 2, 9, "uriC")
	r.AddToken(accountA, 3, 4, "uriD")
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	res, err := agg.Aggregate(context.Background(), accountA, big.NewInt(4))
	require.NoError(t, err)

	require.Len(t, res.Assets, 3)
	assert.Equal(t, []int64{7, 9, 4}, []int64{
		res.Assets[0].TokenID.Int64(),
		res.Assets[1].TokenID.Int64(),
		res.Assets[2].TokenID.Int64(),
	})
	assert.Equal(t, []int{0, 2, 3}, []int{res.Assets[0].Index, res.Assets[1].Index, res.Assets[2].Index})
	assert.Equal(t, []uint64{1}, res.Skipped)
	assert.Equal(t, 4, r.CallCount("tokenOfOwnerByIndex"), "indices after the failure are still attempted")
	assert.Equal(t, 3, r.CallCount("tokenURI"))
}

func TestAggregate_URIFailureKeepsAsset(t *testing.T) {
	r, nft := newChain()
	r.AddToken(accountA, 0, 7, "uriA")
	r.AddToken(accountA, 1, 12, "uriB")
	r.FailURI(12, errNode)
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	res, err := agg.Aggregate(context.Background(), accountA, big.NewInt(2))
	require.NoError(t, err)

	require.Len(t, res.Assets, 2)
	assert.Equal(t, int64(12), res.Assets[1].TokenID.Int64())
	assert.Equal(t, "", res.Assets[1].URI)
	assert.Nil(t, res.Assets[1].Metadata)
	assert.Equal(t, 1, res.URIFailures)
}

func TestAggregate_TokenIDZeroIsIncluded(t *testing.T) {
	r, nft := newChain()
	r.AddToken(accountA, 0, 0, "uri0")
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	res, err := agg.Aggregate(context.Background(), accountA, big.NewInt(1))
	require.NoError(t, err)

	require.Len(t, res.Assets, 1)
	assert.Zero(t, res.Assets[0].TokenID.Sign())
	assert.Equal(t, "uri0", res.Assets[0].URI)
}

func TestAggregate_BalanceOverflow(t *testing.T) {
	r, nft := newChain()
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	huge := new(big.Int).Lsh(big.NewInt(1), 64)
	_, err := agg.Aggregate(context.Background(), accountA, huge)
	assert.ErrorIs(t, err, ErrBalanceOverflow)

	// Fits in uint64 but not in an int index.
	aboveInt := new(big.Int).Add(big.NewInt(math.MaxInt), big.NewInt(1))
	require.True(t, aboveInt.IsUint64())
	_, err = agg.Aggregate(context.Background(), accountA, aboveInt)
	assert.ErrorIs(t, err, ErrBalanceOverflow)

	assert.Zero(t, r.CallCount(""))
}

func TestAggregate_CancelledRunIsDiscarded(t *testing.T) {
	r, nft := newChain()
	for i := int64(0); i < 5; i++ {
		r.AddToken(accountA, i, i+1, "uri")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Hook = func(_ context.Context, method string, _ []interface{}) error {
		if method == "tokenURI" {
			cancel()
		}
		return nil
	}
	agg := NewAggregator(AggregatorOptions{Tokens: nft})

	res, err := agg.Aggregate(ctx, accountA, big.NewInt(5))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, res.Assets)
	assert.Equal(t, 1, r.CallCount("tokenOfOwnerByIndex"))
}
