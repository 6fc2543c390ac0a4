package signer

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// NonceSource reports the account's next nonce including pending transactions.
type NonceSource interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
}

// NonceManager hands out nonces for bundles that may still be in flight.
// Overlapping events get consecutive nonces instead of each reading the same
// pending nonce from the node.
type NonceManager struct {
	source  NonceSource
	account common.Address
	logger  *zap.Logger

	mu       sync.Mutex
	next     uint64
	inflight map[uint64]uint64 // nonce -> last block its bundle can land in
}

// NewNonceManager creates a manager for account.
func NewNonceManager(source NonceSource, account common.Address, logger *zap.Logger) *NonceManager {
	return &NonceManager{
		source:   source,
		account:  account,
		logger:   logger,
		inflight: make(map[uint64]uint64),
	}
}

// Reserve returns a nonce for a bundle observed at currentBlock whose
// inclusion window ends at untilBlock.
//
// Reservations below the node's pending nonce are considered settled. When
// the lowest outstanding reservation can no longer land, or there is a gap
// below it, every reservation is dropped and numbering restarts at the
// node's pending nonce.
func (m *NonceManager) Reserve(ctx context.Context, currentBlock, untilBlock uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pending, err := m.source.PendingNonceAt(ctx, m.account)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending nonce: %w", err)
	}

	for n := range m.inflight {
		if n < pending {
			delete(m.inflight, n)
		}
	}

	if lowest, ok := m.lowest(); ok {
		if lowest != pending || m.inflight[lowest] <= currentBlock {
			m.logger.Debug("Rewinding nonce reservations",
				zap.Uint64("pending", pending),
				zap.Uint64("lowest_reserved", lowest),
				zap.Int("dropped", len(m.inflight)))
			m.inflight = make(map[uint64]uint64)
		}
	}

	if len(m.inflight) == 0 || pending > m.next {
		m.next = pending
	}

	nonce := m.next
	m.next++
	m.inflight[nonce] = untilBlock

	return nonce, nil
}

// Release returns a reserved nonce that was never submitted.
func (m *NonceManager) Release(nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.inflight[nonce]; !ok {
		return
	}
	delete(m.inflight, nonce)
	if nonce+1 == m.next {
		m.next = nonce
	}
}

// Outstanding returns the number of reservations not yet settled.
func (m *NonceManager) Outstanding() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inflight)
}

func (m *NonceManager) lowest() (uint64, bool) {
	var (
		min   uint64
		found bool
	)
	for n := range m.inflight {
		if !found || n < min {
			min, found = n, true
		}
	}
	return min, found
}
