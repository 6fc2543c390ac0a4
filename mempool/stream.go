package mempool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"gopkg.in/cenkalti/backoff.v1"
)

const maxReconnectInterval = 30 * time.Second

// StreamConfig tunes a Stream.
type StreamConfig struct {
	BufferSize       int
	DedupeSize       int
	ReconnectBackoff time.Duration
	// MaxReconnects bounds consecutive failed reconnects. Zero means unlimited.
	MaxReconnects int
}

// DefaultStreamConfig returns the default stream settings
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		BufferSize:       256,
		DedupeSize:       4096,
		ReconnectBackoff: time.Second,
	}
}

// Stream delivers decoded feed events on a bounded channel. When the
// consumer falls behind, reading from the feed stops until there is room.
type Stream struct {
	source Source
	cfg    StreamConfig
	seen   *SeenIndex
	logger *zap.Logger

	events chan *Event
	done   chan struct{}

	mu  sync.Mutex
	err error

	received   atomic.Uint64
	duplicates atomic.Uint64
	reconnects atomic.Uint64
}

// NewStream creates a new event stream
func NewStream(source Source, cfg StreamConfig, logger *zap.Logger) (*Stream, error) {
	if cfg.BufferSize <= 0 {
		return nil, errors.New("stream buffer size must be positive")
	}
	seen, err := NewSeenIndex(cfg.DedupeSize)
	if err != nil {
		return nil, err
	}
	return &Stream{
		source: source,
		cfg:    cfg,
		seen:   seen,
		logger: logger,
		events: make(chan *Event, cfg.BufferSize),
		done:   make(chan struct{}),
	}, nil
}

// Start connects to the feed and begins delivering events. A failed initial
// connection is returned to the caller; later drops are retried in the
// background. The returned channel is closed when the stream stops.
func (s *Stream) Start(ctx context.Context) (<-chan *Event, error) {
	session, err := s.source.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open event feed: %w", err)
	}
	s.logger.Info("Connected to event feed")

	go s.run(ctx, session)
	return s.events, nil
}

// Done is closed when the stream stops.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the reason the stream stopped, or nil after a clean shutdown.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Received returns the number of events decoded from the feed.
func (s *Stream) Received() uint64 { return s.received.Load() }

// Duplicates returns the number of events dropped as already seen.
func (s *Stream) Duplicates() uint64 { return s.duplicates.Load() }

// Reconnects returns the number of successful reconnects.
func (s *Stream) Reconnects() uint64 { return s.reconnects.Load() }

// Tracked returns the number of transaction hashes held for dedupe.
func (s *Stream) Tracked() int { return s.seen.Len() }

func (s *Stream) run(ctx context.Context, session Session) {
	defer close(s.done)
	defer close(s.events)

	for {
		err := s.consume(ctx, session)
		session.Close()
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("Event feed disconnected", zap.Error(err))

		session, err = s.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Error("Giving up on event feed", zap.Error(err))
				s.setErr(err)
			}
			return
		}
	}
}

// consume reads a session until it fails or ctx is cancelled.
func (s *Stream) consume(ctx context.Context, session Session) error {
	stop := context.AfterFunc(ctx, func() { session.Close() })
	defer stop()

	for {
		raw, err := session.Next()
		if err != nil {
			return err
		}

		ev, err := DecodeEvent(raw)
		if err != nil {
			s.logger.Warn("Dropping malformed event", zap.Error(err))
			continue
		}
		s.received.Add(1)

		if ev.Hash != (common.Hash{}) && s.seen.Observe(ev.Hash) {
			s.duplicates.Add(1)
			s.logger.Debug("Dropping duplicate event", zap.String("tx_hash", ev.Hash.Hex()))
			continue
		}

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconnect retries the source with exponential backoff starting at
// ReconnectBackoff, capped at maxReconnectInterval.
func (s *Stream) reconnect(ctx context.Context) (Session, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.ReconnectBackoff
	policy.MaxInterval = maxReconnectInterval
	policy.MaxElapsedTime = 0
	policy.Reset()

	var lastErr error
	for attempt := 1; s.cfg.MaxReconnects == 0 || attempt <= s.cfg.MaxReconnects; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(policy.NextBackOff()):
		}

		session, err := s.source.Connect(ctx)
		if err == nil {
			s.reconnects.Add(1)
			s.logger.Info("Reconnected to event feed", zap.Int("attempt", attempt))
			return session, nil
		}
		lastErr = err
		s.logger.Warn("Event feed reconnect failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return nil, fmt.Errorf("event feed unavailable after %d reconnects: %w", s.cfg.MaxReconnects, lastErr)
}

func (s *Stream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
