package pending

import (
	"sync"

	"github.com/rs/zerolog"

	"tradestream/pkg/core"
)

// Table maps correlation IDs to the handles waiting on them. Resolve, Fail and
// Remove take the entry out under the lock, so each handle is completed by at
// most one caller.
type Table struct {
	mu      sync.Mutex
	entries map[string]Completer
	logger  zerolog.Logger
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[string]Completer),
		logger:  zerolog.Nop(),
	}
}

// SetLogger sets the logger.
func (t *Table) SetLogger(logger zerolog.Logger) {
	t.logger = logger
}

// Register stores c under id. It fails with core.ErrDuplicateRequest when id is
// already pending.
func (t *Table) Register(id string, c Completer) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.entries[id]; exists {
		return core.ErrDuplicateRequest
	}
	t.entries[id] = c
	return nil
}

func (t *Table) take(id string) (Completer, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	return c, ok
}

// Resolve completes the handle registered under id with v and removes it.
// It returns false if no handle is pending for id.
func (t *Table) Resolve(id string, v any) bool {
	c, ok := t.take(id)
	if !ok {
		return false
	}
	c.Resolve(v)
	return true
}

// Fail completes the handle registered under id with err and removes it.
// It returns false if no handle is pending for id.
func (t *Table) Fail(id string, err error) bool {
	c, ok := t.take(id)
	if !ok {
		return false
	}
	c.Fail(err)
	return true
}

// Remove drops the entry without completing it.
func (t *Table) Remove(id string) bool {
	_, ok := t.take(id)
	return ok
}

// Contains reports whether id is pending.
func (t *Table) Contains(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[id]
	return ok
}

// Len returns the number of pending requests.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// FailAll fails and removes every pending handle. It returns how many were failed.
func (t *Table) FailAll(err error) int {
	t.mu.Lock()
	entries := t.entries
	t.entries = make(map[string]Completer)
	t.mu.Unlock()

	for _, c := range entries {
		c.Fail(err)
	}
	if len(entries) > 0 {
		t.logger.Debug().Int("count", len(entries)).Err(err).Msg("failed pending requests")
	}
	return len(entries)
}
