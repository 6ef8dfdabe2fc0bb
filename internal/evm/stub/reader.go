// Package stub provides a scriptable evm.Reader for tests.
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"nft-holdings/internal/evm"
)

// ErrNotFound is returned for a call with no scripted response.
var ErrNotFound = errors.New("no scripted response")

// Call is one recorded Reader.Call invocation.
type Call struct {
	Contract common.Address
	Method   string
	Args     []interface{}
}

type response struct {
	out []interface{}
	err error
}

// Reader implements evm.Reader from scripted responses keyed by method and args.
type Reader struct {
	mu        sync.Mutex
	responses map[string]response
	calls     []Call

	// Hook, if set, runs before every call is answered. A non-nil error
	// is returned in place of the scripted response.
	Hook func(ctx context.Context, method string, args []interface{}) error
}

// NewReader creates an empty stub reader.
func NewReader() *Reader {
	return &Reader{responses: make(map[string]response)}
}

// Call answers from the scripted responses and records the call.
func (r *Reader) Call(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	r.mu.Lock()
	r.calls = append(r.calls, Call{Contract: contract, Method: method, Args: args})
	hook := r.Hook
	r.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, method, args); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	resp, ok := r.responses[key(method, args)]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", key(method, args), ErrNotFound)
	}
	return resp.out, resp.err
}

// SetResult scripts the outputs of method(args...).
func (r *Reader) SetResult(method string, args []interface{}, out ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key(method, args)] = response{out: out}
}

// SetError scripts a failure of method(args...).
func (r *Reader) SetError(method string, args []interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[key(method, args)] = response{err: err}
}

// SetBalance scripts balanceOf(owner).
func (r *Reader) SetBalance(owner common.Address, balance int64) {
	r.SetResult("balanceOf", []interface{}{owner}, big.NewInt(balance))
}

// AddToken scripts tokenOfOwnerByIndex(owner, index) and tokenURI(tokenID).
func (r *Reader) AddToken(owner common.Address, index, tokenID int64, uri string) {
	r.SetResult("tokenOfOwnerByIndex", []interface{}{owner, big.NewInt(index)}, big.NewInt(tokenID))
	r.SetResult("tokenURI", []interface{}{big.NewInt(tokenID)}, uri)
}

// FailIndex scripts a failing tokenOfOwnerByIndex(owner, index).
func (r *Reader) FailIndex(owner common.Address, index int64, err error) {
	r.SetError("tokenOfOwnerByIndex", []interface{}{owner, big.NewInt(index)}, err)
}

// FailURI scripts a failing tokenURI(tokenID).
func (r *Reader) FailURI(tokenID int64, err error) {
	r.SetError("tokenURI", []interface{}{big.NewInt(tokenID)}, err)
}

// Calls returns a copy of the recorded calls.
func (r *Reader) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// CallCount returns the number of recorded calls to method, or all calls when method is empty.
func (r *Reader) CallCount(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if method == "" {
		return len(r.calls)
	}
	n := 0
	for _, c := range r.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears recorded calls, keeping scripted responses.
func (r *Reader) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func key(method string, args []interface{}) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case *big.Int:
			parts[i] = v.String()
		case common.Address:
			parts[i] = v.Hex()
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return method + "(" + strings.Join(parts, ",") + ")"
}

var _ evm.Reader = (*Reader)(nil)
