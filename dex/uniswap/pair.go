package uniswap

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/backrunner/dex"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Pair contract ABI
const pairABIJson = `[{
	"constant": true,
	"inputs": [],
	"name": "getReserves",
	"outputs": [
		{"name": "reserve0", "type": "uint112"},
		{"name": "reserve1", "type": "uint112"},
		{"name": "blockTimestampLast", "type": "uint32"}
	],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token0",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "token1",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}, {
	"constant": true,
	"inputs": [],
	"name": "factory",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// Factory contract ABI
const factoryABIJson = `[{
	"constant": true,
	"inputs": [
		{"name": "", "type": "address"},
		{"name": "", "type": "address"}
	],
	"name": "getPair",
	"outputs": [{"name": "", "type": "address"}],
	"payable": false,
	"stateMutability": "view",
	"type": "function"
}]`

// Reader reads V2 pair and factory state through eth_call. Sushiswap shares
// the same contract interface, so one Reader serves both exchanges.
type Reader struct {
	caller     bind.ContractCaller
	pairABI    abi.ABI
	factoryABI abi.ABI
}

// NewReader creates a new Reader over any contract caller, usually an *ethclient.Client.
func NewReader(caller bind.ContractCaller) (*Reader, error) {
	pairABI, err := abi.JSON(strings.NewReader(pairABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse pair ABI: %w", err)
	}
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}

	return &Reader{
		caller:     caller,
		pairABI:    pairABI,
		factoryABI: factoryABI,
	}, nil
}

var (
	_ dex.PairReader    = (*Reader)(nil)
	_ dex.FactoryReader = (*Reader)(nil)
)

// GetReserves returns the current reserves of the pair
func (r *Reader) GetReserves(ctx context.Context, pair common.Address) (*dex.Reserves, error) {
	var out []interface{}
	contract := bind.NewBoundContract(pair, r.pairABI, r.caller, nil, nil)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "getReserves"); err != nil {
		return nil, fmt.Errorf("failed to get reserves: %w", err)
	}
	if len(out) < 3 {
		return nil, fmt.Errorf("unexpected getReserves output length %d", len(out))
	}

	reserve0, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve0")
	}
	reserve1, ok := out[1].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to parse reserve1")
	}
	timestamp, ok := out[2].(uint32)
	if !ok {
		return nil, fmt.Errorf("failed to parse blockTimestampLast")
	}

	return &dex.Reserves{
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: timestamp,
	}, nil
}

// Token0 returns the address of token0
func (r *Reader) Token0(ctx context.Context, pair common.Address) (common.Address, error) {
	return r.callAddress(ctx, pair, r.pairABI, "token0")
}

// Token1 returns the address of token1
func (r *Reader) Token1(ctx context.Context, pair common.Address) (common.Address, error) {
	return r.callAddress(ctx, pair, r.pairABI, "token1")
}

// Factory returns the factory that deployed the pair
func (r *Reader) Factory(ctx context.Context, pair common.Address) (common.Address, error) {
	return r.callAddress(ctx, pair, r.pairABI, "factory")
}

// GetPair returns the pair address registered for tokenA/tokenB
func (r *Reader) GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	return r.callAddress(ctx, factory, r.factoryABI, "getPair", tokenA, tokenB)
}

func (r *Reader) callAddress(ctx context.Context, target common.Address, parsed abi.ABI, method string, params ...interface{}) (common.Address, error) {
	var out []interface{}
	contract := bind.NewBoundContract(target, parsed, r.caller, nil, nil)
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return common.Address{}, fmt.Errorf("failed to get %s: %w", method, err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("empty %s output", method)
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("failed to parse %s address", method)
	}

	return addr, nil
}
