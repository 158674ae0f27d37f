// Package trades keeps a local copy of the account's executed trades by polling
// the REST trade history incrementally.
package trades

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradestream/pkg/core"
	"tradestream/pkg/rest"
)

// TradeLister lists trades filled after a point in time. *rest.Client implements it.
type TradeLister interface {
	ListTrades(ctx context.Context, afterMillis int64, status string) (*rest.TradesResponse, error)
}

var _ TradeLister = (*rest.Client)(nil)

// ErrRunning is returned by Start when the poller is already running.
var ErrRunning = errors.New("trade poller already running")

// Service polls for new trades and caches them by ID. The high-water mark of
// trade creation times is passed as the "after" filter of the next poll, so each
// poll asks only for trades newer than the newest one seen.
type Service struct {
	lister   TradeLister
	interval time.Duration
	status   string
	logger   zerolog.Logger

	mu     sync.RWMutex
	trades map[string]rest.Trade
	last   int64

	runMu  sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService builds a poller using the poll interval and status filter of config.
func NewService(lister TradeLister, config *core.RESTConfig) *Service {
	interval := config.PollInterval
	if interval <= 0 {
		interval = core.DefaultPollInterval
	}
	return &Service{
		lister:   lister,
		interval: interval,
		status:   config.TradeStatus,
		logger:   zerolog.Nop(),
		trades:   make(map[string]rest.Trade),
	}
}

// SetLogger sets the logger.
func (s *Service) SetLogger(logger zerolog.Logger) {
	s.logger = logger
}

// Start polls once immediately and then every poll interval until ctx is done or
// Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.cancel != nil {
		return ErrRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Go(func() { s.run(ctx) })

	s.logger.Info().Dur("interval", s.interval).Str("status", s.status).Msg("trade poller started")
	return nil
}

// Stop cancels polling and waits for an in-flight poll to return. The cache is kept.
func (s *Service) Stop() {
	s.runMu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info().Int("trades", s.Len()).Msg("trade poller stopped")
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Msg("failed to poll trades")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll fetches trades newer than the high-water mark and processes each of them.
func (s *Service) Poll(ctx context.Context) error {
	after := s.LastTimestamp()
	resp, err := s.lister.ListTrades(ctx, after, s.status)
	if err != nil {
		return fmt.Errorf("poll trades after %d: %w", after, err)
	}
	if resp == nil {
		return nil
	}
	for _, trade := range resp.Data {
		s.ProcessTrade(trade)
	}
	return nil
}

// ProcessTrade stores trade under its ID, replacing any earlier copy, and raises
// the high-water mark to its creation time. A trade with an unparseable creation
// time is stored but leaves the mark unchanged.
func (s *Service) ProcessTrade(trade rest.Trade) {
	created, err := trade.CreatedTime()
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to parse trade timestamp")
	}

	s.mu.Lock()
	s.trades[trade.ID] = trade
	if err == nil && created.UnixMilli() > s.last {
		s.last = created.UnixMilli()
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("trade_id", trade.ID).
		Str("market", trade.Asset+"/"+trade.CounterAsset).
		Str("side", trade.Side).
		Float64("price", trade.Price).
		Float64("quantity", trade.Quantity).
		Msg("processed trade")
}

// Get returns the cached trade with the given ID.
func (s *Service) Get(id string) (rest.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trades[id]
	return t, ok
}

// All returns a copy of the cache keyed by trade ID.
func (s *Service) All() map[string]rest.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.trades)
}

// Len returns the number of cached trades.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

// LastTimestamp returns the high-water mark in epoch milliseconds, zero before any
// trade was seen.
func (s *Service) LastTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
