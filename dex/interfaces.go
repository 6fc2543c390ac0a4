package dex

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PairReader reads state from a Uniswap V2 style pair contract.
type PairReader interface {
	Token0(ctx context.Context, pair common.Address) (common.Address, error)
	Token1(ctx context.Context, pair common.Address) (common.Address, error)
	Factory(ctx context.Context, pair common.Address) (common.Address, error)
	GetReserves(ctx context.Context, pair common.Address) (*Reserves, error)
}

// FactoryReader looks up pairs registered in a V2 factory.
type FactoryReader interface {
	// GetPair returns the zero address when the factory has no pool for the pair.
	GetPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error)
}

// Exchange names a V2 fork by its factory.
type Exchange struct {
	Name    string
	Factory common.Address
}

// Reserves represents token pair reserves
type Reserves struct {
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// Of returns the reserve held for token, given the pair's token0.
func (r *Reserves) Of(token, token0 common.Address) *big.Int {
	if token == token0 {
		return r.Reserve0
	}
	return r.Reserve1
}
