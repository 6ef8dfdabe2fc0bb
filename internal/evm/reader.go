package evm

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoContract is returned when a call with declared outputs comes back empty,
// which is what a node answers for an address without contract code.
var ErrNoContract = errors.New("empty return data: no contract code at address")

// ContractReader implements Reader by packing calls with an ABI and
// sending them through a Caller.
type ContractReader struct {
	caller Caller
	abi    abi.ABI
}

// NewContractReader creates a reader for the given ABI.
func NewContractReader(caller Caller, contractABI abi.ABI) *ContractReader {
	return &ContractReader{caller: caller, abi: contractABI}
}

// Call packs method with args, performs eth_call and unpacks the outputs.
func (r *ContractReader) Call(ctx context.Context, contract common.Address, method string, args ...interface{}) ([]interface{}, error) {
	m, ok := r.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not in abi", method)
	}

	input, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	output, err := r.caller.CallContract(ctx, contract, input)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	if len(output) == 0 && len(m.Outputs) > 0 {
		return nil, fmt.Errorf("call %s: %w", method, ErrNoContract)
	}

	values, err := r.abi.Unpack(method, output)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

var _ Reader = (*ContractReader)(nil)
