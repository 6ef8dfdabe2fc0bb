package holdings

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegistry_SyncAndSession(t *testing.T) {
	r, nft := newChain()
	r.SetBalance(accountA, 2)
	r.AddToken(accountA, 0, 7, "uriA")
	r.AddToken(accountA, 1, 12, "uriB")

	var log sessionLog
	reg := NewRegistry(RegistryOptions{
		Aggregator:  NewAggregator(AggregatorOptions{Tokens: nft}),
		Balances:    nft,
		Fetcher:     newFakeFetcher(),
		Subscribers: []func(*Session){log.observe},
	})
	defer reg.Close()

	_, ok := reg.Session(accountA)
	assert.False(t, ok)

	sess, err := reg.Sync(waitCtx(t), accountA)
	require.NoError(t, err)
	assert.Equal(t, []int64{7, 12}, tokenIDs(t, sess))
	assert.Equal(t, 1, reg.Len())

	got, ok := reg.Session(accountA)
	require.True(t, ok)
	assert.Same(t, sess, got)

	again, err := reg.Sync(waitCtx(t), accountA)
	require.NoError(t, err)
	assert.Same(t, sess, again, "unchanged balance keeps the session")
	assert.Len(t, log.all(), 1)

	_, ok = reg.Session(accountB)
	assert.False(t, ok)
}

func TestRegistry_Refresh(t *testing.T) {
	r, nft := newChain()
	r.SetBalance(accountA, 1)
	r.AddToken(accountA, 0, 7, "uriA")

	reg := NewRegistry(RegistryOptions{
		Aggregator: NewAggregator(AggregatorOptions{Tokens: nft}),
		Balances:   nft,
		Fetcher:    newFakeFetcher(),
	})
	defer reg.Close()

	first, err := reg.Sync(waitCtx(t), accountA)
	require.NoError(t, err)

	second, err := reg.Refresh(waitCtx(t), accountA)
	require.NoError(t, err)
	assert.Greater(t, second.Generation(), first.Generation())
	assert.Equal(t, 2, r.CallCount("tokenOfOwnerByIndex"))

	r.SetBalance(accountA, 0)
	third, err := reg.Refresh(waitCtx(t), accountA)
	require.NoError(t, err)
	assert.Empty(t, third.Assets())
}

func TestRegistry_BalanceReadFailure(t *testing.T) {
	r, nft := newChain()
	r.SetError("balanceOf", []interface{}{accountA}, errNode)

	reg := NewRegistry(RegistryOptions{
		Aggregator: NewAggregator(AggregatorOptions{Tokens: nft}),
		Balances:   nft,
		Fetcher:    newFakeFetcher(),
	})
	defer reg.Close()

	_, err := reg.Sync(context.Background(), accountA)
	assert.ErrorIs(t, err, errNode)
	assert.Zero(t, reg.Len())
}

func TestRegistry_Prune(t *testing.T) {
	r, nft := newChain()
	r.SetBalance(accountA, 0)
	r.SetBalance(accountB, 0)

	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	reg := NewRegistry(RegistryOptions{
		Aggregator: NewAggregator(AggregatorOptions{Tokens: nft}),
		Balances:   nft,
		Fetcher:    newFakeFetcher(),
		IdleTTL:    time.Minute,
	})
	reg.now = clock.Now
	defer reg.Close()

	_, err := reg.Sync(waitCtx(t), accountA)
	require.NoError(t, err)

	clock.Advance(45 * time.Second)
	_, err = reg.Sync(waitCtx(t), accountB)
	require.NoError(t, err)
	assert.Equal(t, 0, reg.Prune())

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, reg.Prune())
	assert.Equal(t, 1, reg.Len())

	_, ok := reg.Session(accountA)
	assert.False(t, ok)
	_, ok = reg.Session(accountB)
	assert.True(t, ok)
}

func TestRegistry_RunClosesOnCancel(t *testing.T) {
	r, nft := newChain()
	r.SetBalance(accountA, 0)

	reg := NewRegistry(RegistryOptions{
		Aggregator: NewAggregator(AggregatorOptions{Tokens: nft}),
		Balances:   nft,
		Fetcher:    newFakeFetcher(),
		IdleTTL:    time.Minute,
	})

	_, err := reg.Sync(waitCtx(t), accountA)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("registry did not stop")
	}
	assert.Zero(t, reg.Len())
}

func TestRegistry_Poll(t *testing.T) {
	r, nft := newChain()
	r.SetBalance(accountA, 1)
	r.AddToken(accountA, 0, 7, "uriA")
	r.AddToken(accountA, 1, 12, "uriB")
	r.SetBalance(accountB, 0)

	reg := NewRegistry(RegistryOptions{
		Aggregator: NewAggregator(AggregatorOptions{Tokens: nft}),
		Balances:   nft,
		Fetcher:    newFakeFetcher(),
	})
	defer reg.Close()

	_, err := reg.Sync(waitCtx(t), accountA)
	require.NoError(t, err)
	_, err = reg.Sync(waitCtx(t), accountB)
	require.NoError(t, err)

	assert.Equal(t, 0, reg.Poll(context.Background()), "no balance changed")

	r.SetBalance(accountA, 2)
	assert.Equal(t, 1, reg.Poll(context.Background()))

	require.Eventually(t, func() bool {
		s, ok := reg.Session(accountA)
		return ok && len(s.Assets()) == 2
	}, 2*time.Second, 10*time.Millisecond)
}
