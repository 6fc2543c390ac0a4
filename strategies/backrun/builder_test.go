package backrun

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/michaelpento.lv/backrunner/flashbots"
	"github.com/michaelpento.lv/backrunner/signer"
	"github.com/michaelpento.lv/backrunner/strategies/arbitrage"
	"github.com/michaelpento.lv/backrunner/types"
	"github.com/michaelpento.lv/backrunner/utils/testutils"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	executor = common.HexToAddress("0x00000000000000000000000000000000000e0e0e")
	poolA    = testutils.UniWETHUSDT
	poolB    = testutils.SushiWETHUSDT
	trigger  = common.HexToHash("0xabc123")
)

type staticBlocks struct {
	block uint64
	err   error
}

func (s staticBlocks) BlockNumber(ctx context.Context) (uint64, error) {
	return s.block, s.err
}

type recordingNonces struct {
	mu       sync.Mutex
	next     uint64
	reserved [][2]uint64
	released []uint64
	err      error
}

func (n *recordingNonces) Reserve(ctx context.Context, currentBlock, untilBlock uint64) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return 0, n.err
	}
	n.reserved = append(n.reserved, [2]uint64{currentBlock, untilBlock})
	nonce := n.next
	n.next++
	return nonce, nil
}

func (n *recordingNonces) Release(nonce uint64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.released = append(n.released, nonce)
}

type fakeGas struct {
	price    *big.Int
	priceErr error
	// limit returns the gas limit for calldata
	limit func(data []byte) (uint64, error)
}

func (g *fakeGas) GasPrice(ctx context.Context) (*big.Int, error) {
	if g.priceErr != nil {
		return nil, g.priceErr
	}
	return new(big.Int).Set(g.price), nil
}

func (g *fakeGas) GasLimit(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	if g.limit == nil {
		return 210000, nil
	}
	return g.limit(msg.Data)
}

// flakySigner fails for transactions whose calldata matches failOn.
type flakySigner struct {
	*signer.Identity
	failOn []byte
}

func (s *flakySigner) SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	if s.failOn != nil && bytes.Equal(tx.Data(), s.failOn) {
		return nil, errors.New("hsm unavailable")
	}
	return s.Identity.SignTx(tx)
}

// scriptedCalls skips the directions listed in skip.
type scriptedCalls struct {
	*DirectCall
	skip map[common.Address]bool
}

func (s *scriptedCalls) Encode(ctx context.Context, c types.ArbitrageCandidate) ([]byte, error) {
	if s.skip[c.PoolA] {
		return nil, arbitrage.ErrNoOpportunity
	}
	return s.DirectCall.Encode(ctx, c)
}

func testIdentity(t *testing.T) *signer.Identity {
	id, err := signer.ParseIdentity(testutils.HardhatKey, big.NewInt(1))
	require.NoError(t, err)
	return id
}

func testCandidate() types.ArbitrageCandidate {
	return types.ArbitrageCandidate{
		PoolA:         poolA,
		PoolB:         poolB,
		Token0:        testutils.WETH,
		Token1:        testutils.USDT,
		TriggerTxHash: trigger,
	}
}

func newTestBuilder(t *testing.T, txSigner TxSigner, calls CallEncoder, gas *fakeGas, nonces *recordingNonces) *Builder {
	b, err := NewBuilder(staticBlocks{block: 17000000}, nonces, gas, txSigner, calls, Options{
		Executor:    executor,
		BlocksToTry: 10,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return b
}

func decodeTx(t *testing.T, bundle *flashbots.Bundle) *gethtypes.Transaction {
	require.Len(t, bundle.Body, 2)
	tx := new(gethtypes.Transaction)
	require.NoError(t, tx.UnmarshalBinary(bundle.Body[1].Tx))
	return tx
}

func TestBuildBothDirections(t *testing.T) {
	id := testIdentity(t)
	direct, err := NewDirectCall(10)
	require.NoError(t, err)
	nonces := &recordingNonces{next: 7}
	builder := newTestBuilder(t, id, direct, &fakeGas{price: big.NewInt(30e9)}, nonces)

	bundles, err := builder.Build(context.Background(), testCandidate())
	require.NoError(t, err)
	require.NotNil(t, bundles.Forward)
	require.NotNil(t, bundles.Reverse)
	assert.Len(t, bundles.List(), 2)
	assert.Equal(t, uint64(7), bundles.Nonce)
	assert.Equal(t, uint64(17000001), bundles.Block)

	// one reservation covering the whole window
	require.Len(t, nonces.reserved, 1)
	assert.Equal(t, [2]uint64{17000000, 17000011}, nonces.reserved[0])

	for _, bundle := range bundles.List() {
		require.NoError(t, bundle.Validate())
		assert.Equal(t, trigger, bundle.Trigger())
		assert.Equal(t, uint64(17000001), uint64(bundle.Inclusion.Block))
		assert.Equal(t, uint64(17000011), uint64(bundle.Inclusion.MaxBlock))
		require.NotNil(t, bundle.Body[1].CanRevert)
		assert.False(t, *bundle.Body[1].CanRevert)

		tx := decodeTx(t, bundle)
		assert.Equal(t, uint64(7), tx.Nonce())
		assert.Equal(t, executor, *tx.To())
		assert.Equal(t, big.NewInt(30e9), tx.GasPrice())
		assert.Equal(t, uint64(210000), tx.Gas())
		assert.Equal(t, uint8(gethtypes.LegacyTxType), tx.Type())

		from, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1)), tx)
		require.NoError(t, err)
		assert.Equal(t, id.Address(), from)
	}

	forward := decodeTx(t, bundles.Forward).Data()
	reverse := decodeTx(t, bundles.Reverse).Data()

	wantForward, err := direct.Encode(context.Background(), testCandidate())
	require.NoError(t, err)
	wantReverse, err := direct.Encode(context.Background(), testCandidate().Reversed())
	require.NoError(t, err)
	assert.Equal(t, wantForward, forward)
	assert.Equal(t, wantReverse, reverse)

	// same selector and percentage, pool arguments swapped
	assert.Equal(t, forward[:4], reverse[:4])
	assert.Equal(t, forward[4:36], reverse[36:68])
	assert.Equal(t, forward[36:68], reverse[4:36])
	assert.Equal(t, forward[68:], reverse[68:])
	assert.Equal(t, common.LeftPadBytes(big.NewInt(10).Bytes(), 32), forward[68:])
}

func TestBuildSigningFailureIsolated(t *testing.T) {
	id := testIdentity(t)
	direct, err := NewDirectCall(10)
	require.NoError(t, err)
	reverseData, err := direct.Encode(context.Background(), testCandidate().Reversed())
	require.NoError(t, err)

	nonces := &recordingNonces{}
	builder := newTestBuilder(t, &flakySigner{Identity: id, failOn: reverseData}, direct, &fakeGas{price: big.NewInt(1)}, nonces)

	bundles, err := builder.Build(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.NotNil(t, bundles.Forward)
	assert.Nil(t, bundles.Reverse)
	assert.Len(t, bundles.List(), 1)
	assert.Empty(t, nonces.released)
}

func TestBuildSigningFailureBothReleasesNonce(t *testing.T) {
	id := testIdentity(t)
	direct, err := NewDirectCall(10)
	require.NoError(t, err)

	nonces := &recordingNonces{next: 3}
	failing := &failingSigner{Identity: id}
	builder := newTestBuilder(t, failing, direct, &fakeGas{price: big.NewInt(1)}, nonces)

	_, err = builder.Build(context.Background(), testCandidate())
	assert.ErrorContains(t, err, "hsm unavailable")
	assert.Equal(t, []uint64{3}, nonces.released)
}

type failingSigner struct {
	*signer.Identity
}

func (s *failingSigner) SignTx(tx *gethtypes.Transaction) (*gethtypes.Transaction, error) {
	return nil, errors.New("hsm unavailable")
}

func TestBuildGasFallback(t *testing.T) {
	id := testIdentity(t)
	direct, err := NewDirectCall(10)
	require.NoError(t, err)
	forwardData, err := direct.Encode(context.Background(), testCandidate())
	require.NoError(t, err)

	gas := &fakeGas{
		price: big.NewInt(1),
		limit: func(data []byte) (uint64, error) {
			if bytes.Equal(data, forwardData) {
				return 0, errors.New("execution reverted")
			}
			return 180000, nil
		},
	}
	builder := newTestBuilder(t, id, direct, gas, &recordingNonces{})

	bundles, err := builder.Build(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.Equal(t, uint64(180000), decodeTx(t, bundles.Forward).Gas())
	assert.Equal(t, uint64(180000), decodeTx(t, bundles.Reverse).Gas())
}

func TestBuildAborts(t *testing.T) {
	id := testIdentity(t)
	direct, err := NewDirectCall(10)
	require.NoError(t, err)

	tests := []struct {
		name   string
		blocks staticBlocks
		gas    *fakeGas
		nonces *recordingNonces
		want   string
	}{
		{
			name:   "block number",
			blocks: staticBlocks{err: errors.New("rpc down")},
			gas:    &fakeGas{price: big.NewInt(1)},
			nonces: &recordingNonces{},
			want:   "failed to get block number",
		},
		{
			name:   "gas price",
			blocks: staticBlocks{block: 1},
			gas:    &fakeGas{priceErr: errors.New("no price")},
			nonces: &recordingNonces{},
			want:   "no price",
		},
		{
			name:   "both estimates",
			blocks: staticBlocks{block: 1},
			gas: &fakeGas{price: big.NewInt(1), limit: func([]byte) (uint64, error) {
				return 0, errors.New("execution reverted")
			}},
			nonces: &recordingNonces{},
			want:   "execution reverted",
		},
		{
			name:   "nonce",
			blocks: staticBlocks{block: 1},
			gas:    &fakeGas{price: big.NewInt(1)},
			nonces: &recordingNonces{err: errors.New("nonce unavailable")},
			want:   "nonce unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder, err := NewBuilder(tt.blocks, tt.nonces, tt.gas, id, direct, Options{Executor: executor}, zaptest.NewLogger(t))
			require.NoError(t, err)
			_, err = builder.Build(context.Background(), testCandidate())
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestBuildSkipsUnprofitableDirection(t *testing.T) {
	id := testIdentity(t)
	direct, err := NewDirectCall(10)
	require.NoError(t, err)

	calls := &scriptedCalls{DirectCall: direct, skip: map[common.Address]bool{poolA: true}}
	builder := newTestBuilder(t, id, calls, &fakeGas{price: big.NewInt(1)}, &recordingNonces{})

	bundles, err := builder.Build(context.Background(), testCandidate())
	require.NoError(t, err)
	assert.Nil(t, bundles.Forward)
	require.NotNil(t, bundles.Reverse)
	assert.Equal(t, trigger, bundles.Reverse.Trigger())

	nonces := &recordingNonces{}
	calls.skip[poolB] = true
	builder = newTestBuilder(t, id, calls, &fakeGas{price: big.NewInt(1)}, nonces)
	_, err = builder.Build(context.Background(), testCandidate())
	assert.ErrorIs(t, err, arbitrage.ErrNoOpportunity)
	assert.Empty(t, nonces.reserved)
}

func TestNewBuilderDefaults(t *testing.T) {
	direct, err := NewDirectCall(10)
	require.NoError(t, err)

	_, err = NewBuilder(staticBlocks{}, &recordingNonces{}, &fakeGas{}, testIdentity(t), direct, Options{}, zaptest.NewLogger(t))
	assert.Error(t, err)

	b, err := NewBuilder(staticBlocks{}, &recordingNonces{}, &fakeGas{}, testIdentity(t), direct, Options{Executor: executor}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, uint64(flashbots.DefaultBlocksToTry), b.opts.BlocksToTry)
}

func TestStrategyKindValidate(t *testing.T) {
	assert.NoError(t, StrategyDirect.Validate())
	assert.NoError(t, StrategyFlashLoan.Validate())
	assert.Error(t, StrategyKind("sandwich").Validate())
}
