package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/michaelpento.lv/backrunner/flashbots"
	"github.com/michaelpento.lv/backrunner/mempool"
	"github.com/michaelpento.lv/backrunner/simulator"
	"github.com/michaelpento.lv/backrunner/strategies/arbitrage"
	"github.com/michaelpento.lv/backrunner/strategies/backrun"
	"github.com/michaelpento.lv/backrunner/types"
	"github.com/michaelpento.lv/backrunner/utils/metrics"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// EventSource delivers feed events until it is exhausted or ctx ends.
type EventSource interface {
	Start(ctx context.Context) (<-chan *mempool.Event, error)
	Err() error
}

// CandidateResolver pairs a touched pool with its mirror.
type CandidateResolver interface {
	Resolve(ctx context.Context, pool common.Address, trigger common.Hash) (*types.ArbitrageCandidate, error)
}

// BundleBuilder signs the two directions of a candidate.
type BundleBuilder interface {
	Build(ctx context.Context, c types.ArbitrageCandidate) (*backrun.Bundles, error)
}

// Relay submits bundles.
type Relay interface {
	SendBundle(ctx context.Context, bundle *flashbots.Bundle) (*flashbots.Response, error)
}

// Simulator checks bundles before submission.
type Simulator interface {
	SimulateBundle(ctx context.Context, bundle *flashbots.Bundle) (*simulator.SimulationResult, error)
}

// NonceTracker reports reservations still in flight.
type NonceTracker interface {
	Outstanding() int
}

// Components are the collaborators a Bot drives. Simulator and Nonces are
// optional.
type Components struct {
	Events    EventSource
	Resolver  CandidateResolver
	Builder   BundleBuilder
	Relay     Relay
	Simulator Simulator
	Nonces    NonceTracker
	Metrics   *metrics.BotMetrics
}

// Options tunes event handling.
type Options struct {
	SyncTopic    common.Hash
	EventTimeout time.Duration
}

// Bot represents the backrunning bot instance
type Bot struct {
	Components
	opts   Options
	logger *zap.Logger
	wg     sync.WaitGroup
}

// New creates a new bot instance
func New(c Components, opts Options, logger *zap.Logger) (*Bot, error) {
	if c.Events == nil || c.Resolver == nil || c.Builder == nil || c.Relay == nil || c.Metrics == nil {
		return nil, errors.New("bot requires events, resolver, builder, relay and metrics")
	}
	if opts.SyncTopic == (common.Hash{}) {
		return nil, errors.New("sync topic is required")
	}
	if opts.EventTimeout <= 0 {
		return nil, errors.New("event timeout must be positive")
	}
	return &Bot{Components: c, opts: opts, logger: logger}, nil
}

// Run consumes events until ctx is cancelled or the feed gives up, then waits
// for in-flight submissions. A failed initial feed connection is returned
// immediately.
func (b *Bot) Run(ctx context.Context) error {
	events, err := b.Events.Start(ctx)
	if err != nil {
		return err
	}
	b.logger.Info("Starting backrun bot")
	defer b.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Stopping backrun bot")
			return nil
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				if err := b.Events.Err(); err != nil {
					return fmt.Errorf("event feed closed: %w", err)
				}
				return errors.New("event feed closed")
			}
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bot) handleEvent(ctx context.Context, ev *mempool.Event) {
	b.Metrics.EventsReceived.Inc()
	log := b.logger.With(zap.String("tx_hash", ev.Hash.Hex()))

	if ev.Logs == nil {
		log.Debug("Transaction has no logs")
		return
	}

	evCtx, cancel := context.WithTimeout(ctx, b.opts.EventTimeout)
	defer cancel()

	seen := make(map[common.Address]bool)
	for _, l := range ev.LogsWithTopic(b.opts.SyncTopic) {
		b.Metrics.SyncLogs.Inc()
		if seen[l.Address] {
			b.Metrics.Skipped.WithLabelValues("duplicate_pool").Inc()
			continue
		}
		seen[l.Address] = true

		bundles, err := b.handleLog(evCtx, ev.Hash, l.Address)
		if err != nil {
			if arbitrage.IsNonOpportunity(err) {
				log.Debug("Skipping pool", zap.Stringer("pool", l.Address), zap.Error(err))
				b.Metrics.Skipped.WithLabelValues(skipReason(err)).Inc()
				continue
			}
			log.Error("Failed to handle event", zap.Stringer("pool", l.Address), zap.Error(err))
			b.Metrics.EventErrors.Inc()
			return
		}

		b.submit(ctx, ev.Hash, bundles)
	}
}

func (b *Bot) handleLog(ctx context.Context, trigger common.Hash, pool common.Address) (*backrun.Bundles, error) {
	candidate, err := b.Resolver.Resolve(ctx, pool, trigger)
	if err != nil {
		return nil, err
	}
	b.Metrics.Candidates.Inc()
	b.logger.Info("Found mirror pool",
		zap.String("tx_hash", trigger.Hex()),
		zap.Stringer("pool_a", candidate.PoolA),
		zap.Stringer("pool_b", candidate.PoolB))

	bundles, err := b.Builder.Build(ctx, *candidate)
	if err != nil {
		return nil, err
	}
	b.Metrics.BundlesBuilt.Add(float64(len(bundles.List())))
	if b.Nonces != nil {
		b.Metrics.OutstandingNonce.Set(float64(b.Nonces.Outstanding()))
	}
	return bundles, nil
}

// submit sends every bundle concurrently without holding up the consumer.
func (b *Bot) submit(ctx context.Context, trigger common.Hash, bundles *backrun.Bundles) {
	list := bundles.List()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()

		var wg sync.WaitGroup
		for _, bundle := range list {
			wg.Add(1)
			go func(bundle *flashbots.Bundle) {
				defer wg.Done()
				b.send(ctx, bundle)
			}(bundle)
		}
		wg.Wait()

		b.logger.Info("Submitted bundles",
			zap.String("tx_hash", trigger.Hex()),
			zap.Int("count", len(list)),
			zap.Uint64("nonce", bundles.Nonce),
			zap.Uint64("block", bundles.Block))
	}()
}

func (b *Bot) send(ctx context.Context, bundle *flashbots.Bundle) {
	log := b.logger.With(zap.String("tx_hash", bundle.Trigger().Hex()))

	if b.Simulator != nil {
		result, err := b.Simulator.SimulateBundle(ctx, bundle)
		switch {
		case err != nil:
			log.Warn("Bundle simulation unavailable, sending anyway", zap.Error(err))
			b.Metrics.Simulations.WithLabelValues("error").Inc()
		case !result.Success:
			log.Info("Dropping bundle that failed simulation", zap.Error(result.Error))
			b.Metrics.Simulations.WithLabelValues("failed").Inc()
			return
		default:
			b.Metrics.Simulations.WithLabelValues("success").Inc()
		}
	}

	start := time.Now()
	resp, err := b.Relay.SendBundle(ctx, bundle)
	elapsed := time.Since(start).Seconds()

	switch {
	case err != nil:
		var httpErr *flashbots.HTTPError
		if errors.As(err, &httpErr) {
			log.Warn("Relay rejected bundle",
				zap.Int("status", httpErr.StatusCode),
				zap.String("body", httpErr.Body))
			b.Metrics.RecordSubmission(flashbots.MethodSendBundle, metrics.OutcomeRejected, elapsed)
			return
		}
		log.Error("Failed to send bundle", zap.Error(err))
		b.Metrics.RecordSubmission(flashbots.MethodSendBundle, metrics.OutcomeFailed, elapsed)
	case resp.Error != nil:
		log.Warn("Relay rejected bundle", zap.Error(resp.Error))
		b.Metrics.RecordSubmission(flashbots.MethodSendBundle, metrics.OutcomeRejected, elapsed)
	default:
		log.Info("Relay accepted bundle",
			zap.Uint64("request_id", resp.ID),
			zap.String("result", string(resp.Result)))
		b.Metrics.RecordSubmission(flashbots.MethodSendBundle, metrics.OutcomeAccepted, elapsed)
	}
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, arbitrage.ErrNotQualified):
		return "not_qualified"
	case errors.Is(err, arbitrage.ErrMirrorNotFound):
		return "no_mirror"
	case errors.Is(err, arbitrage.ErrNoOpportunity):
		return "no_opportunity"
	default:
		return "unknown"
	}
}
