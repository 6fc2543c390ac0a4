package flashbots

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// BundleVersion is the MEV-Share bundle format version.
const BundleVersion = "beta-1"

// DefaultBlocksToTry is how many blocks past the first target the relay keeps
// retrying inclusion.
const DefaultBlocksToTry = 10

// Inclusion is the block window a bundle may land in.
type Inclusion struct {
	Block    hexutil.Uint64 `json:"block"`
	MaxBlock hexutil.Uint64 `json:"maxBlock"`
}

// BodyEntry is either a reference to someone else's transaction (Hash) or one
// of ours (Tx, CanRevert).
type BodyEntry struct {
	Hash      *common.Hash  `json:"hash,omitempty"`
	Tx        hexutil.Bytes `json:"tx,omitempty"`
	CanRevert *bool         `json:"canRevert,omitempty"`
}

// IsReference reports whether the entry points at a transaction by hash.
func (e BodyEntry) IsReference() bool {
	return e.Hash != nil
}

// Bundle represents an MEV-Share bundle
type Bundle struct {
	Version   string      `json:"version"`
	Inclusion Inclusion   `json:"inclusion"`
	Body      []BodyEntry `json:"body"`
}

// NewBackrunBundle places signedTx right after trigger, targeting the block
// after currentBlock and the blocksToTry blocks that follow.
func NewBackrunBundle(trigger common.Hash, signedTx []byte, canRevert bool, currentBlock, blocksToTry uint64) (*Bundle, error) {
	if blocksToTry == 0 {
		return nil, errors.New("blocks to try must be positive")
	}
	if len(signedTx) == 0 {
		return nil, errors.New("empty signed transaction")
	}

	hash := trigger
	revert := canRevert
	start := currentBlock + 1

	return &Bundle{
		Version: BundleVersion,
		Inclusion: Inclusion{
			Block:    hexutil.Uint64(start),
			MaxBlock: hexutil.Uint64(start + blocksToTry),
		},
		Body: []BodyEntry{
			{Hash: &hash},
			{Tx: signedTx, CanRevert: &revert},
		},
	}, nil
}

// Validate checks the ordering and window rules relays enforce.
func (b *Bundle) Validate() error {
	if b.Version != BundleVersion {
		return fmt.Errorf("unsupported bundle version %q", b.Version)
	}
	if b.Inclusion.MaxBlock <= b.Inclusion.Block {
		return fmt.Errorf("max block %d must be after block %d", b.Inclusion.MaxBlock, b.Inclusion.Block)
	}
	if len(b.Body) < 2 {
		return errors.New("bundle body needs a reference and a transaction")
	}
	if !b.Body[0].IsReference() {
		return errors.New("first body entry must reference the trigger transaction")
	}
	for i, entry := range b.Body[1:] {
		if entry.IsReference() == (len(entry.Tx) > 0) {
			return fmt.Errorf("body entry %d must be either a hash or a transaction", i+1)
		}
	}
	return nil
}

// Trigger returns the referenced transaction hash.
func (b *Bundle) Trigger() common.Hash {
	if len(b.Body) == 0 || b.Body[0].Hash == nil {
		return common.Hash{}
	}
	return *b.Body[0].Hash
}
