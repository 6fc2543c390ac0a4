package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Identity is the bot's key. It signs transactions and relay requests and is
// safe for concurrent use.
type Identity struct {
	key      *ecdsa.PrivateKey
	address  common.Address
	txSigner types.Signer
}

// NewIdentity wraps key for chainID.
func NewIdentity(key *ecdsa.PrivateKey, chainID *big.Int) *Identity {
	return &Identity{
		key:      key,
		address:  crypto.PubkeyToAddress(key.PublicKey),
		txSigner: types.LatestSignerForChainID(chainID),
	}
}

// ParseIdentity loads a hex private key, with or without the 0x prefix.
func ParseIdentity(hexKey string, chainID *big.Int) (*Identity, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	return NewIdentity(key, chainID), nil
}

// Address returns the account address.
func (i *Identity) Address() common.Address {
	return i.address
}

// SignTx signs tx for the identity's chain.
func (i *Identity) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, i.txSigner, i.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// SignPayload signs a relay request body the way relays verify
// X-Flashbots-Signature: a personal-sign over the hex keccak of the body.
func (i *Identity) SignPayload(body []byte) ([]byte, error) {
	signature, err := crypto.Sign(
		accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(body)))),
		i.key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to sign payload: %w", err)
	}
	if signature[crypto.RecoveryIDOffset] < 27 {
		signature[crypto.RecoveryIDOffset] += 27
	}
	return signature, nil
}

// RecoverPayloadSigner returns the address that produced signature over body.
func RecoverPayloadSigner(body, signature []byte) (common.Address, error) {
	if len(signature) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(signature))
	}
	sig := make([]byte, len(signature))
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(hexutil.Encode(crypto.Keccak256(body)))), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
