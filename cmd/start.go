package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/michaelpento.lv/backrunner/cmd/bot"
	"github.com/michaelpento.lv/backrunner/config"
	"github.com/michaelpento.lv/backrunner/dex"
	"github.com/michaelpento.lv/backrunner/dex/sushiswap"
	"github.com/michaelpento.lv/backrunner/dex/uniswap"
	"github.com/michaelpento.lv/backrunner/flashbots"
	"github.com/michaelpento.lv/backrunner/flashloan"
	"github.com/michaelpento.lv/backrunner/gas"
	"github.com/michaelpento.lv/backrunner/mempool"
	"github.com/michaelpento.lv/backrunner/signer"
	"github.com/michaelpento.lv/backrunner/simulator"
	"github.com/michaelpento.lv/backrunner/strategies/arbitrage"
	"github.com/michaelpento.lv/backrunner/strategies/backrun"
	"github.com/michaelpento.lv/backrunner/utils"
	"github.com/michaelpento.lv/backrunner/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the backrun bot",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load(cfgFile, network)
		if err != nil {
			utils.InitLogger(debug).Fatal("Failed to load config", zap.Error(err))
		}
		log := utils.InitLogger(debug || cfg.Logging.Debug, cfg.Logging.OutputPaths...)

		if err := runBot(cmd.Context(), cfg, log); err != nil {
			log.Fatal("Bot stopped", zap.Error(err))
		}
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runBot(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	secure, err := config.LoadSecureConfig()
	if err != nil {
		return err
	}

	rpcClient, err := rpc.DialOptions(ctx, cfg.RPCURL,
		rpc.WithHTTPClient(&http.Client{Timeout: cfg.RPCTimeout}))
	if err != nil {
		return fmt.Errorf("failed to connect to Ethereum node: %w", err)
	}
	client := ethclient.NewClient(rpcClient)
	defer client.Close()

	chainCtx, cancel := context.WithTimeout(ctx, cfg.RPCTimeout)
	chainID, err := client.ChainID(chainCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if chainID.Uint64() != cfg.Chain.ChainID {
		return fmt.Errorf("node is on chain %s, config expects %d", chainID, cfg.Chain.ChainID)
	}

	identity, err := signer.ParseIdentity(secure.PrivateKey, chainID)
	if err != nil {
		return err
	}
	relayIdentity, err := signer.ParseIdentity(secure.RelayAuthKey, chainID)
	if err != nil {
		return fmt.Errorf("relay auth key: %w", err)
	}
	log.Info("Loaded signing keys",
		zap.String("network", cfg.Network),
		zap.Stringer("account", identity.Address()),
		zap.Stringer("relay_signer", relayIdentity.Address()))

	reader, err := uniswap.NewReader(client)
	if err != nil {
		return err
	}
	weth := common.HexToAddress(cfg.Chain.WETH)
	resolver, err := arbitrage.NewResolver(reader, reader, weth, [2]dex.Exchange{
		uniswap.Exchange(common.HexToAddress(cfg.Chain.UniswapFactory)),
		sushiswap.Exchange(common.HexToAddress(cfg.Chain.SushiswapFactory)),
	}, log)
	if err != nil {
		return err
	}

	estimator, err := gas.NewEstimator(client, cfg.Bundle.GasPolicy(), log)
	if err != nil {
		return err
	}
	nonces := signer.NewNonceManager(client, identity.Address(), log)

	calls, err := newCallEncoder(cfg, reader, weth, log)
	if err != nil {
		return err
	}
	builder, err := backrun.NewBuilder(client, nonces, estimator, identity, calls, backrun.Options{
		Executor:    common.HexToAddress(cfg.ExecutorAddress),
		BlocksToTry: cfg.Bundle.BlocksToTry,
		CanRevert:   cfg.Bundle.CanRevert,
	}, log.Named("builder"))
	if err != nil {
		return err
	}

	relay := flashbots.NewClient(cfg.Relay.URL, relayIdentity, flashbots.ClientOptions{
		Timeout:      cfg.Relay.Timeout,
		MaxRetries:   cfg.Relay.MaxRetries,
		RetryBackoff: cfg.Relay.RetryBackoff,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.Relay.RateLimit.RequestsPerSecond), cfg.Relay.RateLimit.BurstSize),
		LimiterWait:  cfg.Relay.RateLimit.WaitTimeout,
	}, log.Named("relay"))

	var source mempool.Source
	switch cfg.Feed.Transport {
	case config.TransportWebSocket:
		source = mempool.NewWebSocketSource(cfg.Feed.URL)
	default:
		source = mempool.NewSSESource(cfg.Feed.URL)
	}
	stream, err := mempool.NewStream(source, mempool.StreamConfig{
		BufferSize:       cfg.Feed.BufferSize,
		DedupeSize:       cfg.Feed.DedupeSize,
		ReconnectBackoff: cfg.Feed.ReconnectBackoff,
		MaxReconnects:    cfg.Feed.MaxReconnects,
	}, log.Named("feed"))
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registerStreamMetrics(registry, cfg.Metrics.Namespace, stream)
	botMetrics := metrics.NewBotMetrics(registry, cfg.Metrics.Namespace)

	if cfg.Metrics.ListenAddr != "" {
		server := metrics.NewServer(cfg.Metrics.ListenAddr, registry, log)
		if err := server.Start(); err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Warn("Failed to stop metrics server", zap.Error(err))
			}
		}()
	}

	components := bot.Components{
		Events:   stream,
		Resolver: resolver,
		Builder:  builder,
		Relay:    relay,
		Nonces:   nonces,
		Metrics:  botMetrics,
	}
	if cfg.Bundle.Simulate {
		components.Simulator = simulator.NewSimulator(relay, log)
	}

	b, err := bot.New(components, bot.Options{
		SyncTopic:    common.HexToHash(cfg.Chain.SyncTopic),
		EventTimeout: cfg.EventTimeout,
	}, log)
	if err != nil {
		return err
	}

	log.Info("Listening for MEV-Share events",
		zap.String("feed", cfg.Feed.URL),
		zap.String("transport", cfg.Feed.Transport),
		zap.String("relay", cfg.Relay.URL),
		zap.String("strategy", calls.Name()))

	return b.Run(ctx)
}

func newCallEncoder(cfg *config.Config, pairs dex.PairReader, weth common.Address, log *zap.Logger) (backrun.CallEncoder, error) {
	switch cfg.Bundle.Strategy {
	case backrun.StrategyFlashLoan:
		minProfit, err := cfg.Bundle.MinProfitWei()
		if err != nil {
			return nil, err
		}
		planner := flashloan.NewPlanner(pairs, weth, arbitrage.FeeFromBps(int64(cfg.Bundle.FeeBps)), minProfit, log)
		return flashloan.NewCall(planner, weth, cfg.Bundle.PercentageToKeep, log)
	default:
		return backrun.NewDirectCall(cfg.Bundle.PercentageToKeep)
	}
}

// registerStreamMetrics exposes the feed's own counters.
func registerStreamMetrics(reg prometheus.Registerer, namespace string, stream *mempool.Stream) {
	counter := func(name, help string, read func() uint64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read()) })
	}
	reg.MustRegister(
		counter("messages_total", "Events decoded from the feed", stream.Received),
		counter("duplicates_total", "Events dropped as already seen", stream.Duplicates),
		counter("reconnects_total", "Feed reconnect attempts", stream.Reconnects),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "dedupe_entries",
			Help:      "Transaction hashes held for dedupe",
		}, func() float64 { return float64(stream.Tracked()) }),
	)
}
