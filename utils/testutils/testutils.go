package testutils

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

// HardhatKey is the first well-known development account key.
const HardhatKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// HardhatAddress is the account of HardhatKey.
var HardhatAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

// Mainnet pools and tokens used across tests
var (
	WETH          = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	USDT          = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")
	UniWETHUSDT   = common.HexToAddress("0x0d4a11d5EEaaC28EC3F61d100daF4d40471f1852")
	SushiWETHUSDT = common.HexToAddress("0x06da0fd433C1A5d7a4faa01111c044910A184553")
)

// PrivateKey parses HardhatKey.
func PrivateKey(t *testing.T) *ecdsa.PrivateKey {
	key, err := crypto.HexToECDSA(HardhatKey[2:])
	require.NoError(t, err)
	return key
}

// CreateMockTransaction creates a legacy transfer signed by HardhatKey on
// mainnet.
func CreateMockTransaction(t *testing.T, nonce uint64) *types.Transaction {
	to := common.HexToAddress("0x1234567890123456789012345678901234567890")
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(1000000000000000000), // 1 ETH
		Gas:      21000,
		GasPrice: big.NewInt(20000000000),
	})

	signedTx, err := types.SignTx(tx, types.LatestSignerForChainID(big.NewInt(1)), PrivateKey(t))
	require.NoError(t, err)

	return signedTx
}
