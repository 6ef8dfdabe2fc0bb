package evm

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Caller executes read-only contract calls against a node.
type Caller interface {
	// CallContract runs eth_call against the latest block and returns the raw return data.
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
}

// Reader calls a contract function by name and returns its decoded outputs.
type Reader interface {
	Call(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error)
}

// HeadSubscriber delivers new chain heads.
type HeadSubscriber interface {
	// SubscribeNewHeads subscribes to newHeads. The channel is closed when the client closes.
	SubscribeNewHeads(ctx context.Context) (<-chan Head, error)

	// Close closes the underlying connection.
	Close() error
}

// Head is a newHeads notification.
type Head struct {
	Number uint64
	Hash   string
}
