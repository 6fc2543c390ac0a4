package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// Pool is a V2 pair as read from chain for a single event. Token order is
// whatever the pair contract reports.
type Pool struct {
	Address common.Address
	Token0  common.Address
	Token1  common.Address
	Factory common.Address
}

// Has reports whether token is one side of the pool.
func (p *Pool) Has(token common.Address) bool {
	return p.Token0 == token || p.Token1 == token
}

// ArbitrageCandidate pairs a pool touched by a pending transaction with its
// mirror on the competing exchange. Token0 and Token1 follow PoolA's ordering;
// the mirror may hold them the other way round.
type ArbitrageCandidate struct {
	PoolA         common.Address
	PoolB         common.Address
	Token0        common.Address
	Token1        common.Address
	TriggerTxHash common.Hash
}

// Reversed returns the candidate with the pool order swapped.
func (c ArbitrageCandidate) Reversed() ArbitrageCandidate {
	c.PoolA, c.PoolB = c.PoolB, c.PoolA
	return c
}
