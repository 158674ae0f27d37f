package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradestream/pkg/core"
)

var errServer = core.NewHTTPError(503, "unavailable")

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(fail, success int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := New(Config{FailThreshold: fail, SuccessThreshold: success, Timeout: time.Second})
	b.now = clock.now
	return b, clock
}

func TestState_String(t *testing.T) {
	tests := []struct {
		name  string
		state State
		want  string
	}{
		{"closed", StateClosed, "CLOSED"},
		{"open", StateOpen, "OPEN"},
		{"half_open", StateHalfOpen, "HALF_OPEN"},
		{"unknown", State(9), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(2, 1)
	require.NoError(t, b.Allow())

	b.Record(errServer)
	assert.Equal(t, StateClosed, b.State())

	b.Record(errServer)
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), core.ErrCircuitOpen)
}

func TestBreaker_NonRetryableErrorsDoNotTrip(t *testing.T) {
	b, _ := newTestBreaker(1, 1)

	b.Record(core.NewHTTPError(401, "bad key"))
	b.Record(errors.New("decode failed"))

	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, int64(2), b.Counts().Successes)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b, _ := newTestBreaker(3, 1)

	b.Record(errServer)
	b.Record(errServer)
	b.Record(nil)
	b.Record(errServer)
	b.Record(errServer)

	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	b, clock := newTestBreaker(1, 2)
	b.Record(errServer)
	require.Equal(t, StateOpen, b.State())

	clock.advance(500 * time.Millisecond)
	assert.ErrorIs(t, b.Allow(), core.ErrCircuitOpen)

	clock.advance(500 * time.Millisecond)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), core.ErrCircuitOpen, "only one probe at a time")

	b.Record(nil)
	assert.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, b.Allow())
	b.Record(nil)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(1, 1)
	b.Record(errServer)

	clock.advance(time.Second)
	require.NoError(t, b.Allow())
	b.Record(errServer)

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), core.ErrCircuitOpen)
}

func TestBreaker_Reset(t *testing.T) {
	b, _ := newTestBreaker(1, 1)
	b.Record(errServer)
	require.Equal(t, StateOpen, b.State())

	b.Reset()

	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Allow())
}

func TestBreaker_Counts(t *testing.T) {
	b, _ := newTestBreaker(1, 1)

	require.NoError(t, b.Allow())
	b.Record(errServer)
	_ = b.Allow()

	counts := b.Counts()
	assert.Equal(t, int64(1), counts.Allowed)
	assert.Equal(t, int64(1), counts.Rejected)
	assert.Equal(t, int64(1), counts.Failures)
	assert.Equal(t, int32(1), counts.StateChanges)
}
