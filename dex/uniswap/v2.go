package uniswap

import (
	"math/big"

	"github.com/michaelpento.lv/backrunner/dex"

	"github.com/ethereum/go-ethereum/common"
)

// Contract addresses
var (
	MainnetFactory = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")
	GoerliFactory  = common.HexToAddress("0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f")

	WETHAddress       = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	GoerliWETHAddress = common.HexToAddress("0xB4FBF271143F4FBf7B91A5ded31805e42b2208d6")
)

// Default V2 swap fee: 0.3%
const (
	FeeNumerator   = 997
	FeeDenominator = 1000
)

// Exchange describes Uniswap V2 on the given factory.
func Exchange(factory common.Address) dex.Exchange {
	return dex.Exchange{Name: "UniswapV2", Factory: factory}
}

// GetAmountOut calculates the output amount for a given input amount, using
// the same integer arithmetic as UniswapV2Library.getAmountOut.
func GetAmountOut(amountIn, reserveIn, reserveOut *big.Int, feeNum, feeDen int64) *big.Int {
	if amountIn.Sign() <= 0 || reserveIn.Sign() <= 0 || reserveOut.Sign() <= 0 {
		return big.NewInt(0)
	}

	amountInWithFee := new(big.Int).Mul(amountIn, big.NewInt(feeNum))
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Add(new(big.Int).Mul(reserveIn, big.NewInt(feeDen)), amountInWithFee)

	return new(big.Int).Div(numerator, denominator)
}
