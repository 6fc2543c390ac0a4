package flashloan

import (
	"context"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/backrunner/dex"
	"github.com/michaelpento.lv/backrunner/strategies/arbitrage"
	"github.com/michaelpento.lv/backrunner/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Plan is a sized loan for one direction.
type Plan struct {
	Amount         *big.Int
	ExpectedProfit *big.Int
}

// Planner sizes the loan for a candidate from the pools' current reserves.
type Planner struct {
	pairs     dex.PairReader
	baseAsset common.Address
	fee       arbitrage.FeeFactor
	minProfit *big.Int
	logger    *zap.Logger
}

// NewPlanner creates a planner borrowing baseAsset. Directions whose expected
// profit is below minProfit report arbitrage.ErrNoOpportunity.
func NewPlanner(pairs dex.PairReader, baseAsset common.Address, fee arbitrage.FeeFactor, minProfit *big.Int, logger *zap.Logger) *Planner {
	if minProfit == nil {
		minProfit = big.NewInt(1)
	}
	return &Planner{
		pairs:     pairs,
		baseAsset: baseAsset,
		fee:       fee,
		minProfit: minProfit,
		logger:    logger,
	}
}

// Plan sizes a loan that buys the intermediate token in PoolA and sells it in PoolB.
func (p *Planner) Plan(ctx context.Context, c types.ArbitrageCandidate) (*Plan, error) {
	a, err := p.orient(ctx, c.PoolA)
	if err != nil {
		return nil, err
	}
	b, err := p.orient(ctx, c.PoolB)
	if err != nil {
		return nil, err
	}

	amount, err := arbitrage.OptimalInput(a, b, p.fee)
	if err != nil {
		return nil, err
	}

	profit := arbitrage.ExpectedProfit(amount, a, b, p.fee)
	if profit.Cmp(p.minProfit) < 0 {
		p.logger.Debug("Loan below minimum profit",
			zap.String("pool_a", c.PoolA.Hex()),
			zap.String("pool_b", c.PoolB.Hex()),
			zap.String("amount", amount.String()),
			zap.String("profit", profit.String()))
		return nil, arbitrage.ErrNoOpportunity
	}

	return &Plan{Amount: amount, ExpectedProfit: profit}, nil
}

// orient maps a pool's reserves so that role1 is the borrowed base asset.
// Each pool is oriented by its own token0; mirrors may list the pair in the
// opposite order.
func (p *Planner) orient(ctx context.Context, pool common.Address) (arbitrage.Reserves, error) {
	token0, err := p.pairs.Token0(ctx, pool)
	if err != nil {
		return arbitrage.Reserves{}, fmt.Errorf("failed to get token0 of %s: %w", pool.Hex(), err)
	}
	reserves, err := p.pairs.GetReserves(ctx, pool)
	if err != nil {
		return arbitrage.Reserves{}, fmt.Errorf("failed to read reserves of %s: %w", pool.Hex(), err)
	}

	base := reserves.Of(p.baseAsset, token0)
	other := reserves.Reserve0
	if p.baseAsset == token0 {
		other = reserves.Reserve1
	}

	return arbitrage.Reserves{Role0: other, Role1: base}, nil
}
