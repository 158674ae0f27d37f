package quote

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradestream/pkg/wire"
)

func TestStore_UpdateOverwrites(t *testing.T) {
	store := NewStore()

	_, ok := store.Get("BTC/USD")
	assert.False(t, ok)

	store.Update(&wire.LevelData{Market: "BTC/USD", QuoteID: "q1"})
	store.Update(&wire.LevelData{Market: "BTC/USD", QuoteID: "q2"})

	got, ok := store.Get("BTC/USD")
	require.True(t, ok)
	assert.Equal(t, "q2", got.QuoteID)
	assert.Equal(t, 1, store.Len())
}

func TestStore_IgnoresNil(t *testing.T) {
	store := NewStore()
	store.Update(nil)
	assert.Equal(t, 0, store.Len())
}

func TestStore_Markets(t *testing.T) {
	store := NewStore()
	store.Update(&wire.LevelData{Market: "ETH/USD"})
	store.Update(&wire.LevelData{Market: "BTC/USD"})

	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, store.Markets())
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := NewStore()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Update(&wire.LevelData{Market: fmt.Sprintf("M%d", i%4)})
		}(i)
		go func(i int) {
			defer wg.Done()
			store.Get(fmt.Sprintf("M%d", i%4))
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, store.Len(), 4)
}
