package config

import (
	"sort"

	"github.com/michaelpento.lv/backrunner/dex/sushiswap"
	"github.com/michaelpento.lv/backrunner/dex/uniswap"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	NetworkMainnet = "mainnet"
	NetworkGoerli  = "goerli"

	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// SyncTopic is the topic of the Uniswap V2 Sync(uint112,uint112) event.
var SyncTopic = crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))

// NetworkPreset holds the per-network defaults.
type NetworkPreset struct {
	ChainID          uint64
	UniswapFactory   string
	SushiswapFactory string
	WETH             string
	MatchmakerURL    string
	BundleAPIURL     string
	SyncTopic        string
}

var Networks = map[string]NetworkPreset{
	NetworkMainnet: {
		ChainID:          1,
		UniswapFactory:   uniswap.MainnetFactory.Hex(),
		SushiswapFactory: sushiswap.MainnetFactory.Hex(),
		WETH:             uniswap.WETHAddress.Hex(),
		MatchmakerURL:    "https://mev-share.flashbots.net",
		BundleAPIURL:     "https://relay.flashbots.net",
		SyncTopic:        SyncTopic.Hex(),
	},
	NetworkGoerli: {
		ChainID:          5,
		UniswapFactory:   uniswap.GoerliFactory.Hex(),
		SushiswapFactory: sushiswap.GoerliFactory.Hex(),
		WETH:             uniswap.GoerliWETHAddress.Hex(),
		MatchmakerURL:    "https://mev-share-goerli.flashbots.net",
		BundleAPIURL:     "https://relay-goerli.flashbots.net",
		SyncTopic:        SyncTopic.Hex(),
	},
}

// NetworkNames lists the supported networks in sorted order.
func NetworkNames() []string {
	names := make([]string, 0, len(Networks))
	for name := range Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
