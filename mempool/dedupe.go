package mempool

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru"
)

// SeenIndex remembers recently delivered transaction hashes.
type SeenIndex struct {
	cache *lru.Cache
}

// NewSeenIndex creates an index holding up to size hashes.
func NewSeenIndex(size int) (*SeenIndex, error) {
	cache, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &SeenIndex{cache: cache}, nil
}

// Observe records hash and reports whether it was already present.
func (s *SeenIndex) Observe(hash common.Hash) bool {
	seen, _ := s.cache.ContainsOrAdd(xxhash.Sum64(hash.Bytes()), struct{}{})
	return seen
}

// Len returns the number of remembered hashes.
func (s *SeenIndex) Len() int {
	return s.cache.Len()
}
