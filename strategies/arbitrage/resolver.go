package arbitrage

import (
	"context"
	"errors"
	"fmt"

	"github.com/michaelpento.lv/backrunner/dex"
	"github.com/michaelpento.lv/backrunner/types"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

var (
	// ErrNotQualified means the pool does not hold the base asset or was not
	// deployed by either known factory.
	ErrNotQualified = errors.New("pool does not qualify")

	// ErrMirrorNotFound means the competing factory has no pool for the pair.
	ErrMirrorNotFound = errors.New("mirror pool not found")
)

// Resolver finds the competing-exchange mirror of a pool touched by a
// pending transaction. It holds no per-call state.
type Resolver struct {
	pairs     dex.PairReader
	factories dex.FactoryReader
	baseAsset common.Address
	exchanges [2]dex.Exchange
	logger    *zap.Logger
}

// NewResolver creates a resolver for pools holding baseAsset on one of the
// two exchanges.
func NewResolver(pairs dex.PairReader, factories dex.FactoryReader, baseAsset common.Address, exchanges [2]dex.Exchange, logger *zap.Logger) (*Resolver, error) {
	if baseAsset == (common.Address{}) {
		return nil, fmt.Errorf("base asset must be set")
	}
	if exchanges[0].Factory == exchanges[1].Factory {
		return nil, fmt.Errorf("exchanges %s and %s share factory %s",
			exchanges[0].Name, exchanges[1].Name, exchanges[0].Factory.Hex())
	}

	return &Resolver{
		pairs:     pairs,
		factories: factories,
		baseAsset: baseAsset,
		exchanges: exchanges,
		logger:    logger,
	}, nil
}

// ResolvePair reads the pool's tokens and factory. For a qualifying pool it
// returns the pool and the factory of the other exchange.
func (r *Resolver) ResolvePair(ctx context.Context, pool common.Address) (*types.Pool, common.Address, error) {
	token0, err := r.pairs.Token0(ctx, pool)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to read pool %s: %w", pool.Hex(), err)
	}
	token1, err := r.pairs.Token1(ctx, pool)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to read pool %s: %w", pool.Hex(), err)
	}

	p := &types.Pool{Address: pool, Token0: token0, Token1: token1}
	if !p.Has(r.baseAsset) {
		return nil, common.Address{}, ErrNotQualified
	}

	factory, err := r.pairs.Factory(ctx, pool)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("failed to read pool %s: %w", pool.Hex(), err)
	}
	p.Factory = factory

	var other dex.Exchange
	switch factory {
	case r.exchanges[0].Factory:
		other = r.exchanges[1]
	case r.exchanges[1].Factory:
		other = r.exchanges[0]
	default:
		r.logger.Debug("Pool from unknown factory",
			zap.String("pool", pool.Hex()),
			zap.String("factory", factory.Hex()))
		return nil, common.Address{}, ErrNotQualified
	}

	return p, other.Factory, nil
}

// FindMirrorPool asks otherFactory for its token0/token1 pool. The factory's
// zero-address answer maps to ErrMirrorNotFound.
func (r *Resolver) FindMirrorPool(ctx context.Context, otherFactory, token0, token1 common.Address) (common.Address, error) {
	pair, err := r.factories.GetPair(ctx, otherFactory, token0, token1)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to query factory %s: %w", otherFactory.Hex(), err)
	}
	if pair == (common.Address{}) {
		return common.Address{}, ErrMirrorNotFound
	}
	return pair, nil
}

// Resolve runs ResolvePair then FindMirrorPool and returns a candidate with
// the observed pool as PoolA.
func (r *Resolver) Resolve(ctx context.Context, pool common.Address, trigger common.Hash) (*types.ArbitrageCandidate, error) {
	p, otherFactory, err := r.ResolvePair(ctx, pool)
	if err != nil {
		return nil, err
	}

	mirror, err := r.FindMirrorPool(ctx, otherFactory, p.Token0, p.Token1)
	if err != nil {
		return nil, err
	}

	return &types.ArbitrageCandidate{
		PoolA:         pool,
		PoolB:         mirror,
		Token0:        p.Token0,
		Token1:        p.Token1,
		TriggerTxHash: trigger,
	}, nil
}

// IsNonOpportunity reports whether err is an expected skip rather than a failure.
func IsNonOpportunity(err error) bool {
	return errors.Is(err, ErrNotQualified) ||
		errors.Is(err, ErrMirrorNotFound) ||
		errors.Is(err, ErrNoOpportunity)
}
