package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// aggregatorABI covers the read-only subset of AggregatorV3Interface.
const aggregatorABI = `[
	{
		"inputs": [],
		"name": "decimals",
		"outputs": [{"name": "", "type": "uint8"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "latestRoundData",
		"outputs": [
			{"name": "roundId", "type": "uint80"},
			{"name": "answer", "type": "int256"},
			{"name": "startedAt", "type": "uint256"},
			{"name": "updatedAt", "type": "uint256"},
			{"name": "answeredInRound", "type": "uint80"}
		],
		"stateMutability": "view",
		"type": "function"
	}
]`

// AggregatorFeed reads an on-chain AggregatorV3 contract.
type AggregatorFeed struct {
	caller  ethereum.ContractCaller
	address common.Address
	abi     abi.ABI

	mu       sync.Mutex
	decimals *uint8
}

// DialAggregator connects to an RPC endpoint and binds the feed at address.
func DialAggregator(ctx context.Context, rpcURL string, address common.Address) (*AggregatorFeed, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewAggregatorFeed(client, address)
}

// NewAggregatorFeed binds the feed at address using caller for eth_call.
func NewAggregatorFeed(caller ethereum.ContractCaller, address common.Address) (*AggregatorFeed, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("parse aggregator abi: %w", err)
	}
	return &AggregatorFeed{caller: caller, address: address, abi: parsed}, nil
}

// Address returns the aggregator contract address.
func (f *AggregatorFeed) Address() common.Address {
	return f.address
}

// LatestRate fetches the latest round answer. Decimals are read once and
// remembered.
func (f *AggregatorFeed) LatestRate(ctx context.Context) (Rate, error) {
	decimals, err := f.loadDecimals(ctx)
	if err != nil {
		return Rate{}, err
	}

	out, err := f.call(ctx, "latestRoundData")
	if err != nil {
		return Rate{}, err
	}
	if len(out) != 5 {
		return Rate{}, fmt.Errorf("%w: latestRoundData returned %d values", ErrUnavailable, len(out))
	}
	answer, ok := out[1].(*big.Int)
	if !ok || answer == nil {
		return Rate{}, fmt.Errorf("%w: unexpected answer type %T", ErrUnavailable, out[1])
	}

	rate := Rate{Value: answer, Decimals: decimals}
	if err := Validate(rate); err != nil {
		return Rate{}, err
	}
	return rate, nil
}

func (f *AggregatorFeed) loadDecimals(ctx context.Context) (uint8, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decimals != nil {
		return *f.decimals, nil
	}

	out, err := f.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: decimals returned %d values", ErrUnavailable, len(out))
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%w: unexpected decimals type %T", ErrUnavailable, out[0])
	}
	f.decimals = &d
	return d, nil
}

func (f *AggregatorFeed) call(ctx context.Context, method string) ([]interface{}, error) {
	data, err := f.abi.Pack(method)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	to := f.address
	result, err := f.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: call %s: %v", ErrUnavailable, method, err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: empty %s result from %s", ErrUnavailable, method, f.address.Hex())
	}

	out, err := f.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%w: unpack %s: %v", ErrUnavailable, method, err)
	}
	return out, nil
}
