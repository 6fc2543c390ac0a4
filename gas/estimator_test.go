package gas

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockClient struct {
	mu          sync.Mutex
	gasPrice    *big.Int
	estimate    uint64
	shouldError bool
	estimates   int
}

func (m *mockClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	if m.shouldError {
		return nil, errors.New("node unavailable")
	}
	return new(big.Int).Set(m.gasPrice), nil
}

func (m *mockClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.estimates++
	if m.shouldError {
		return 0, errors.New("execution reverted")
	}
	return m.estimate, nil
}

func TestEstimatePolicy(t *testing.T) {
	client := &mockClient{gasPrice: big.NewInt(30_000_000_000), estimate: 183_000}
	e, err := NewEstimator(client, DefaultPolicy(), zaptest.NewLogger(t))
	require.NoError(t, err)

	price, err := e.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "36000000000", price.String())

	limit, err := e.GasLimit(context.Background(), ethereum.CallMsg{})
	require.NoError(t, err)
	assert.Equal(t, uint64(201_300), limit)
	assert.Equal(t, 1, client.estimates)
}

func TestEstimatePolicyRoundsDown(t *testing.T) {
	client := &mockClient{gasPrice: big.NewInt(7), estimate: 19}
	e, err := NewEstimator(client, DefaultPolicy(), zaptest.NewLogger(t))
	require.NoError(t, err)

	price, err := e.GasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8", price.String())

	limit, err := e.GasLimit(context.Background(), ethereum.CallMsg{})
	require.NoError(t, err)
	assert.Equal(t, uint64(20), limit)
}

func TestStaticPolicy(t *testing.T) {
	client := &mockClient{gasPrice: big.NewInt(30_000_000_000), estimate: 183_000}

	t.Run("configured limit", func(t *testing.T) {
		e, err := NewEstimator(client, Policy{Kind: PolicyStatic, StaticGasLimit: 500_000}, zaptest.NewLogger(t))
		require.NoError(t, err)

		price, err := e.GasPrice(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "30000000000", price.String())

		limit, err := e.GasLimit(context.Background(), ethereum.CallMsg{})
		require.NoError(t, err)
		assert.Equal(t, uint64(500_000), limit)
	})

	t.Run("hop formula", func(t *testing.T) {
		e, err := NewEstimator(client, Policy{Kind: PolicyStatic}, zaptest.NewLogger(t))
		require.NoError(t, err)

		limit, err := e.GasLimit(context.Background(), ethereum.CallMsg{})
		require.NoError(t, err)
		assert.Equal(t, uint64(325_000), limit)
	})

	assert.Equal(t, 0, client.estimates)
}

func TestEstimatorErrors(t *testing.T) {
	client := &mockClient{shouldError: true}
	e, err := NewEstimator(client, DefaultPolicy(), zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = e.GasPrice(context.Background())
	assert.ErrorContains(t, err, "failed to get gas price")

	_, err = e.GasLimit(context.Background(), ethereum.CallMsg{})
	assert.ErrorContains(t, err, "execution reverted")

	_, err = NewEstimator(client, Policy{Kind: "eip1559"}, zaptest.NewLogger(t))
	assert.ErrorContains(t, err, "unknown gas policy")
}
