package flashloan

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/michaelpento.lv/backrunner/types"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Executor entry point for flash-loan funded backruns
const executorABIJson = `[{
	"inputs": [
		{"internalType": "address", "name": "_token", "type": "address"},
		{"internalType": "uint256", "name": "_amount", "type": "uint256"},
		{"internalType": "bytes", "name": "_params", "type": "bytes"}
	],
	"name": "requestFlashLoan",
	"outputs": [],
	"stateMutability": "nonpayable",
	"type": "function"
}]`

// Call encodes requestFlashLoan(asset, amount, abi.encode(poolA, poolB, pct)).
type Call struct {
	planner          *Planner
	asset            common.Address
	percentageToKeep *big.Int
	executorABI      abi.ABI
	logger           *zap.Logger
}

// NewCall creates a flash-loan call encoder.
func NewCall(planner *Planner, asset common.Address, percentageToKeep uint64, logger *zap.Logger) (*Call, error) {
	parsed, err := abi.JSON(strings.NewReader(executorABIJson))
	if err != nil {
		return nil, fmt.Errorf("failed to parse executor ABI: %w", err)
	}
	return &Call{
		planner:          planner,
		asset:            asset,
		percentageToKeep: new(big.Int).SetUint64(percentageToKeep),
		executorABI:      parsed,
		logger:           logger,
	}, nil
}

// Name identifies the strategy in logs.
func (c *Call) Name() string {
	return "flashloan"
}

// Encode sizes the loan for the candidate's direction and packs the call. It
// returns arbitrage.ErrNoOpportunity when the direction is not profitable.
func (c *Call) Encode(ctx context.Context, candidate types.ArbitrageCandidate) ([]byte, error) {
	plan, err := c.planner.Plan(ctx, candidate)
	if err != nil {
		return nil, err
	}

	params := Params{
		Asset:            c.asset,
		Amount:           plan.Amount,
		PoolA:            candidate.PoolA,
		PoolB:            candidate.PoolB,
		PercentageToKeep: c.percentageToKeep,
	}
	route, err := params.EncodeRoute()
	if err != nil {
		return nil, err
	}

	data, err := c.executorABI.Pack("requestFlashLoan", params.Asset, params.Amount, route)
	if err != nil {
		return nil, fmt.Errorf("failed to pack requestFlashLoan: %w", err)
	}

	c.logger.Debug("Sized flash loan",
		zap.String("pool_a", candidate.PoolA.Hex()),
		zap.String("pool_b", candidate.PoolB.Hex()),
		zap.String("amount", plan.Amount.String()),
		zap.String("expected_profit", plan.ExpectedProfit.String()))

	return data, nil
}
