// Package quote keeps the latest level snapshot per market.
package quote

import (
	"sort"
	"sync"

	"tradestream/pkg/wire"
)

// Store holds the most recent LevelData for each market. Entries are replaced on
// every update and never deleted. Stored snapshots must be treated as read-only.
type Store struct {
	mu     sync.RWMutex
	levels map[string]*wire.LevelData
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{levels: make(map[string]*wire.LevelData)}
}

// Update replaces the snapshot for data.Market. Nil data is ignored.
func (s *Store) Update(data *wire.LevelData) {
	if data == nil {
		return
	}
	s.mu.Lock()
	s.levels[data.Market] = data
	s.mu.Unlock()
}

// Get returns the latest snapshot for market.
func (s *Store) Get(market string) (*wire.LevelData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.levels[market]
	return data, ok
}

// Markets returns the markets that have a snapshot, sorted.
func (s *Store) Markets() []string {
	s.mu.RLock()
	markets := make([]string, 0, len(s.levels))
	for market := range s.levels {
		markets = append(markets, market)
	}
	s.mu.RUnlock()

	sort.Strings(markets)
	return markets
}

// Len returns the number of markets held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.levels)
}
