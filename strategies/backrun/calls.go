package backrun

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/backrunner/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StrategyKind selects how the executor contract is called.
type StrategyKind string

const (
	// StrategyDirect calls executeArbitrage(poolA, poolB, pct); the contract
	// sizes and funds the trade itself.
	StrategyDirect StrategyKind = "direct"
	// StrategyFlashLoan sizes the trade off-chain and borrows it.
	StrategyFlashLoan StrategyKind = "flashloan"
)

// Validate checks the strategy kind.
func (k StrategyKind) Validate() error {
	switch k {
	case StrategyDirect, StrategyFlashLoan:
		return nil
	default:
		return fmt.Errorf("unknown bundle strategy %q", k)
	}
}

// CallEncoder builds executor calldata for one direction of a candidate.
// It may return arbitrage.ErrNoOpportunity to skip that direction.
type CallEncoder interface {
	Name() string
	Encode(ctx context.Context, c types.ArbitrageCandidate) ([]byte, error)
}

// Executor entry point for direct backruns
const directABIJson = `[{
	"inputs": [
		{"internalType": "address", "name": "_firstPair", "type": "address"},
		{"internalType": "address", "name": "_secondPair", "type": "address"},
		{"internalType": "uint256", "name": "_percentageToKeep", "type": "uint256"}
	],
	"name": "executeArbitrage",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// DirectCall encodes executeArbitrage(poolA, poolB, percentageToKeep).
type DirectCall struct {
	executorABI      abi.ABI
	percentageToKeep *big.Int
}

// NewDirectCall creates the direct strategy encoder.
func NewDirectCall(percentageToKeep uint64) (*DirectCall, error) {
	parsed, err := abi.JSON(strings.NewReader(directABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse executor ABI: %w", err)
	}
	return &DirectCall{
		executorABI:      parsed,
		percentageToKeep: new(big.Int).SetUint64(percentageToKeep),
	}, nil
}

// Name identifies the strategy in logs.
func (d *DirectCall) Name() string {
	return string(StrategyDirect)
}

// Encode packs the call for c's direction.
func (d *DirectCall) Encode(ctx context.Context, c types.ArbitrageCandidate) ([]byte, error) {
	data, err := d.executorABI.Pack("executeArbitrage", c.PoolA, c.PoolB, d.percentageToKeep)
	if err != nil {
		return nil, fmt.Errorf("failed to pack executeArbitrage: %w", err)
	}
	return data, nil
}
