package holdings

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-holdings/internal/domain"
	"nft-holdings/internal/metadata"
)

const docA = `{"name":"Fee NFT #7","description":"first","image":"ipfs://QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"}`

func testSession(f metadata.Fetcher, assets ...domain.Asset) *Session {
	return newSession(Result{
		Account: accountA,
		Balance: uint64(len(assets)),
		Assets:  assets,
	}, 1, f, zerolog.Nop())
}

func asset(index int, tokenID int64, uri string) domain.Asset {
	return domain.Asset{Index: index, TokenID: big.NewInt(tokenID), URI: uri}
}

func TestSession_InitialState(t *testing.T) {
	s := testSession(newFakeFetcher(), asset(0, 7, "uriA"), asset(2, 9, "uriC"))

	st, ok := s.State(0)
	require.True(t, ok)
	assert.Equal(t, domain.StateIdle, st)

	_, ok = s.State(1)
	assert.False(t, ok, "index 1 was skipped during enumeration")

	for _, a := range s.Assets() {
		assert.Nil(t, a.Metadata)
	}
}

func TestSession_ResolveAttachesMetadata(t *testing.T) {
	f := newFakeFetcher()
	f.set("uriA", docA)
	s := testSession(f, asset(0, 7, "uriA"), asset(1, 12, "uriB"))

	got, err := s.Resolve(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, "Fee NFT #7", got.Metadata.Name)

	st, _ := s.State(0)
	assert.Equal(t, domain.StateResolved, st)

	assets := s.Assets()
	require.NotNil(t, assets[0].Metadata)
	assert.Nil(t, assets[1].Metadata, "resolution is per asset")
	assert.Equal(t, 1, f.count("uriA"))
}

func TestSession_EmptyURIIsNoOp(t *testing.T) {
	f := newFakeFetcher()
	s := testSession(f, asset(0, 7, ""))

	got, err := s.Resolve(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, got.Metadata)
	assert.Zero(t, f.total())

	st, _ := s.State(0)
	assert.Equal(t, domain.StateIdle, st)
}

func TestSession_ResolvedIsNotFetchedAgain(t *testing.T) {
	f := newFakeFetcher()
	f.set("uriA", docA)
	s := testSession(f, asset(0, 7, "uriA"))

	_, err := s.Resolve(context.Background(), 0)
	require.NoError(t, err)
	got, err := s.Resolve(context.Background(), 0)
	require.NoError(t, err)

	require.NotNil(t, got.Metadata)
	assert.Equal(t, 1, f.count("uriA"))
}

func TestSession_ConcurrentResolveIsSuppressed(t *testing.T) {
	f := newFakeFetcher()
	f.set("uriA", docA)
	f.gate = make(chan struct{})
	s := testSession(f, asset(0, 7, "uriA"))

	var (
		wg       sync.WaitGroup
		firstErr error
		first    domain.Asset
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, firstErr = s.Resolve(context.Background(), 0)
	}()

	select {
	case <-f.started:
	case <-time.After(2 * time.Second):
		t.Fatal("first resolution never reached the fetcher")
	}

	st, _ := s.State(0)
	assert.Equal(t, domain.StateResolving, st)

	_, err := s.Resolve(context.Background(), 0)
	assert.ErrorIs(t, err, ErrResolutionInFlight)

	close(f.gate)
	wg.Wait()

	require.NoError(t, firstErr)
	require.NotNil(t, first.Metadata)
	assert.Equal(t, 1, f.count("uriA"), "exactly one fetch for the asset")

	st, _ = s.State(0)
	assert.Equal(t, domain.StateResolved, st)
}

func TestSession_FailureThenManualRetry(t *testing.T) {
	f := newFakeFetcher()
	f.fail("uriA", errors.New("gateway timeout"))
	s := testSession(f, asset(0, 7, "uriA"))

	_, err := s.Resolve(context.Background(), 0)
	var rerr *ResolveError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 0, rerr.Index)
	assert.Equal(t, "uriA", rerr.URI)
	assert.Equal(t, int64(7), rerr.TokenID.Int64())

	st, _ := s.State(0)
	assert.Equal(t, domain.StateFailed, st)
	assert.Nil(t, s.Assets()[0].Metadata)
	assert.Equal(t, 1, f.count("uriA"), "no automatic retry")

	view := s.View()
	assert.Equal(t, domain.StateFailed, view.Assets[0].State)
	assert.Contains(t, view.Assets[0].Error, "gateway timeout")

	f.set("uriA", docA)
	got, err := s.Resolve(context.Background(), 0)
	require.NoError(t, err)
	require.NotNil(t, got.Metadata)
	assert.Equal(t, 2, f.count("uriA"))

	view = s.View()
	assert.Equal(t, domain.StateResolved, view.Assets[0].State)
	assert.Empty(t, view.Assets[0].Error)
}

func TestSession_MalformedDocumentFails(t *testing.T) {
	f := newFakeFetcher()
	f.set("uriA", `["not","an","object"]`)
	s := testSession(f, asset(0, 7, "uriA"))

	_, err := s.Resolve(context.Background(), 0)
	assert.ErrorIs(t, err, metadata.ErrNotObject)

	st, _ := s.State(0)
	assert.Equal(t, domain.StateFailed, st)
}

func TestSession_UnknownIndex(t *testing.T) {
	s := testSession(newFakeFetcher(), asset(0, 7, "uriA"))

	_, err := s.Resolve(context.Background(), 5)
	assert.ErrorIs(t, err, ErrAssetNotFound)
}

func TestSession_AssetsAreCopies(t *testing.T) {
	s := testSession(newFakeFetcher(), asset(0, 7, "uriA"))

	assets := s.Assets()
	assets[0].TokenID.SetInt64(99)
	assets[0].URI = "changed"

	again := s.Assets()
	assert.Equal(t, int64(7), again[0].TokenID.Int64())
	assert.Equal(t, "uriA", again[0].URI)
}

func TestSession_View(t *testing.T) {
	s := newSession(Result{
		Account:     accountA,
		Balance:     3,
		Assets:      []domain.Asset{asset(0, 7, "uriA"), asset(2, 9, "")},
		Skipped:     []uint64{1},
		URIFailures: 1,
		Duration:    1500 * time.Millisecond,
	}, 4, newFakeFetcher(), zerolog.Nop())

	v := s.View()
	assert.Equal(t, accountA.Hex(), v.Account)
	assert.Equal(t, uint64(3), v.Balance)
	assert.Equal(t, uint64(4), v.Generation)
	assert.Equal(t, []uint64{1}, v.Skipped)
	assert.Equal(t, 1, v.URIFailures)
	assert.Equal(t, int64(1500), v.DurationMs)
	require.Len(t, v.Assets, 2)
	assert.Equal(t, "9", v.Assets[1].TokenID)
	assert.Equal(t, 2, v.Assets[1].Index)
	assert.Equal(t, domain.StateIdle, v.Assets[1].State)
}
