package backrun

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/michaelpento.lv/backrunner/flashbots"
	"github.com/michaelpento.lv/backrunner/strategies/arbitrage"
	"github.com/michaelpento.lv/backrunner/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// BlockReader returns the chain head.
type BlockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// NonceReserver hands out nonces for bundles with a bounded inclusion window.
type NonceReserver interface {
	Reserve(ctx context.Context, currentBlock, untilBlock uint64) (uint64, error)
	Release(nonce uint64)
}

// GasOracle prices and limits executor transactions.
type GasOracle interface {
	GasPrice(ctx context.Context) (*big.Int, error)
	GasLimit(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// TxSigner signs executor transactions with the bot's account.
type TxSigner interface {
	Address() common.Address
	SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error)
}

// Options configures a Builder.
type Options struct {
	Executor    common.Address
	BlocksToTry uint64
	CanRevert   bool
}

// Bundles holds the two directions built for one candidate. A direction is
// nil when it was skipped or could not be signed.
type Bundles struct {
	Forward *flashbots.Bundle
	Reverse *flashbots.Bundle
	Nonce   uint64
	Block   uint64
}

// List returns the built bundles, forward first.
func (b *Bundles) List() []*flashbots.Bundle {
	out := make([]*flashbots.Bundle, 0, 2)
	for _, bundle := range []*flashbots.Bundle{b.Forward, b.Reverse} {
		if bundle != nil {
			out = append(out, bundle)
		}
	}
	return out
}

// Builder turns arbitrage candidates into signed backrun bundles.
type Builder struct {
	blocks BlockReader
	nonces NonceReserver
	gas    GasOracle
	signer TxSigner
	calls  CallEncoder
	opts   Options
	logger *zap.Logger
}

// NewBuilder creates a bundle builder
func NewBuilder(blocks BlockReader, nonces NonceReserver, gas GasOracle, signer TxSigner, calls CallEncoder, opts Options, logger *zap.Logger) (*Builder, error) {
	if opts.Executor == (common.Address{}) {
		return nil, errors.New("executor address is required")
	}
	if opts.BlocksToTry == 0 {
		opts.BlocksToTry = flashbots.DefaultBlocksToTry
	}
	return &Builder{
		blocks: blocks,
		nonces: nonces,
		gas:    gas,
		signer: signer,
		calls:  calls,
		opts:   opts,
		logger: logger,
	}, nil
}

// Build creates the forward and reverse bundles for c. Both transactions share
// one nonce, so at most one of them can land.
func (b *Builder) Build(ctx context.Context, c types.ArbitrageCandidate) (*Bundles, error) {
	current, err := b.blocks.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get block number: %w", err)
	}

	directions := [2]types.ArbitrageCandidate{c, c.Reversed()}
	var calldata [2][]byte
	skipped := 0
	for i, d := range directions {
		data, err := b.calls.Encode(ctx, d)
		if errors.Is(err, arbitrage.ErrNoOpportunity) {
			skipped++
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s call: %w", b.calls.Name(), err)
		}
		calldata[i] = data
	}
	if skipped == len(directions) {
		return nil, arbitrage.ErrNoOpportunity
	}

	gasPrice, err := b.gas.GasPrice(ctx)
	if err != nil {
		return nil, err
	}

	limits, err := b.gasLimits(ctx, gasPrice, calldata)
	if err != nil {
		return nil, err
	}

	nonce, err := b.nonces.Reserve(ctx, current, current+1+b.opts.BlocksToTry)
	if err != nil {
		return nil, err
	}

	out := &Bundles{Nonce: nonce, Block: current + 1}
	var errs []error
	for i, data := range calldata {
		if data == nil {
			continue
		}
		bundle, err := b.bundle(c.TriggerTxHash, nonce, gasPrice, limits[i], data, current)
		if err != nil {
			b.logger.Warn("Failed to build bundle direction",
				zap.String("trigger", c.TriggerTxHash.Hex()),
				zap.Int("direction", i),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if i == 0 {
			out.Forward = bundle
		} else {
			out.Reverse = bundle
		}
	}

	if out.Forward == nil && out.Reverse == nil {
		b.nonces.Release(nonce)
		return nil, errors.Join(errs...)
	}

	return out, nil
}

// gasLimits sizes each direction. A direction whose estimate fails reuses its
// sibling's limit.
func (b *Builder) gasLimits(ctx context.Context, gasPrice *big.Int, calldata [2][]byte) ([2]uint64, error) {
	var (
		limits [2]uint64
		ok     [2]bool
		errs   []error
	)
	for i, data := range calldata {
		if data == nil {
			continue
		}
		limit, err := b.gas.GasLimit(ctx, ethereum.CallMsg{
			From:     b.signer.Address(),
			To:       &b.opts.Executor,
			GasPrice: gasPrice,
			Data:     data,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		limits[i], ok[i] = limit, true
	}

	switch {
	case ok[0] && !ok[1]:
		limits[1] = limits[0]
	case ok[1] && !ok[0]:
		limits[0] = limits[1]
	case !ok[0] && !ok[1]:
		return limits, errors.Join(errs...)
	}
	return limits, nil
}

func (b *Builder) bundle(trigger common.Hash, nonce uint64, gasPrice *big.Int, gasLimit uint64, data []byte, current uint64) (*flashbots.Bundle, error) {
	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &b.opts.Executor,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := b.signer.SignTx(tx)
	if err != nil {
		return nil, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}

	return flashbots.NewBackrunBundle(trigger, raw, b.opts.CanRevert, current, b.opts.BlocksToTry)
}
