package flashbots

import (
	"encoding/json"
	"testing"

	"github.com/michaelpento.lv/backrunner/utils/testutils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackrunBundleWindow(t *testing.T) {
	trigger := common.HexToHash("0x5b1c")

	for _, tc := range []struct {
		current, n uint64
	}{
		{current: 0, n: 1},
		{current: 17_000_000, n: DefaultBlocksToTry},
		{current: 18_123_456, n: 25},
	} {
		b, err := NewBackrunBundle(trigger, []byte{0x01}, false, tc.current, tc.n)
		require.NoError(t, err)
		assert.Equal(t, tc.current+1, uint64(b.Inclusion.Block))
		assert.Equal(t, uint64(b.Inclusion.Block)+tc.n, uint64(b.Inclusion.MaxBlock))
		assert.NoError(t, b.Validate())
	}
}

func TestNewBackrunBundleBody(t *testing.T) {
	trigger := common.HexToHash("0x5b1c")
	b, err := NewBackrunBundle(trigger, []byte{0xaa, 0xbb}, true, 10, 3)
	require.NoError(t, err)

	require.Len(t, b.Body, 2)
	assert.True(t, b.Body[0].IsReference())
	assert.Equal(t, trigger, b.Trigger())
	assert.False(t, b.Body[1].IsReference())
	assert.Equal(t, []byte{0xaa, 0xbb}, []byte(b.Body[1].Tx))
	require.NotNil(t, b.Body[1].CanRevert)
	assert.True(t, *b.Body[1].CanRevert)
	assert.Equal(t, BundleVersion, b.Version)
}

func TestNewBackrunBundleCarriesSignedTx(t *testing.T) {
	tx := testutils.CreateMockTransaction(t, 3)
	raw, err := tx.MarshalBinary()
	require.NoError(t, err)

	b, err := NewBackrunBundle(common.HexToHash("0x5b1c"), raw, false, 10, 3)
	require.NoError(t, err)

	encoded, err := json.Marshal(b)
	require.NoError(t, err)
	var decoded Bundle
	require.NoError(t, json.Unmarshal(encoded, &decoded))

	var back types.Transaction
	require.NoError(t, back.UnmarshalBinary(decoded.Body[1].Tx))
	assert.Equal(t, tx.Hash(), back.Hash())
	assert.Equal(t, uint64(3), back.Nonce())
}

func TestNewBackrunBundleRejects(t *testing.T) {
	_, err := NewBackrunBundle(common.Hash{}, []byte{0x01}, false, 10, 0)
	assert.Error(t, err)

	_, err = NewBackrunBundle(common.Hash{}, nil, false, 10, 5)
	assert.Error(t, err)
}

func TestBundleValidate(t *testing.T) {
	valid := func() *Bundle {
		b, err := NewBackrunBundle(common.HexToHash("0x01"), []byte{0x01}, false, 10, 5)
		require.NoError(t, err)
		return b
	}

	tests := []struct {
		name   string
		mutate func(b *Bundle)
	}{
		{name: "version", mutate: func(b *Bundle) { b.Version = "v0.1" }},
		{name: "empty window", mutate: func(b *Bundle) { b.Inclusion.MaxBlock = b.Inclusion.Block }},
		{name: "reversed order", mutate: func(b *Bundle) { b.Body[0], b.Body[1] = b.Body[1], b.Body[0] }},
		{name: "missing tx", mutate: func(b *Bundle) { b.Body = b.Body[:1] }},
		{name: "blank entry", mutate: func(b *Bundle) { b.Body[1] = BodyEntry{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := valid()
			tt.mutate(b)
			assert.Error(t, b.Validate())
		})
	}
}
