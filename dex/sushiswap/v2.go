package sushiswap

import (
	"github.com/michaelpento.lv/backrunner/dex"

	"github.com/ethereum/go-ethereum/common"
)

// Factory addresses
var (
	MainnetFactory = common.HexToAddress("0xC0AEe478e3658e2610c5F7A4A2E1777cE9e4f2Ac")
	GoerliFactory  = common.HexToAddress("0xc35DADB65012eC5796536bD9864eD8773aBc74C4")
)

// Exchange describes Sushiswap on the given factory. Sushiswap pairs are a
// byte-for-byte fork of Uniswap V2, so uniswap.Reader reads them as well.
func Exchange(factory common.Address) dex.Exchange {
	return dex.Exchange{Name: "SushiswapV2", Factory: factory}
}
