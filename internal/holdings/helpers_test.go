package holdings

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"nft-holdings/internal/evm"
	"nft-holdings/internal/evm/stub"
)

var (
	contractAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	accountA     = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	accountB     = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")

	errNode = errors.New("node unavailable")
)

// newChain returns a stub reader and an NFT bound to it.
func newChain() (*stub.Reader, *evm.NFT) {
	r := stub.NewReader()
	return r, newNFT(r)
}

func newNFT(r *stub.Reader) *evm.NFT {
	return evm.NewNFT(r, contractAddr)
}

// fakeFetcher serves scripted documents and counts requests per uri.
// When gate is non-nil every Get blocks until it is closed.
type fakeFetcher struct {
	mu      sync.Mutex
	docs    map[string][]byte
	errs    map[string]error
	calls   map[string]int
	gate    chan struct{}
	started chan string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		docs:    make(map[string][]byte),
		errs:    make(map[string]error),
		calls:   make(map[string]int),
		started: make(chan string, 16),
	}
}

func (f *fakeFetcher) Get(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	f.calls[uri]++
	gate := f.gate
	f.mu.Unlock()

	f.started <- uri
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[uri]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[uri]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return doc, nil
}

func (f *fakeFetcher) set(uri, doc string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[uri] = []byte(doc)
	delete(f.errs, uri)
}

func (f *fakeFetcher) fail(uri string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[uri] = err
}

func (f *fakeFetcher) count(uri string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[uri]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func tokenIDs(t *testing.T, s *Session) []int64 {
	t.Helper()
	var ids []int64
	for _, a := range s.Assets() {
		ids = append(ids, a.TokenID.Int64())
	}
	return ids
}
