package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles REST calls with one account-wide token bucket plus one bucket
// per endpoint, both sized to the same requests-per-period budget.
type Limiter struct {
	mu       sync.Mutex
	global   *rate.Limiter
	buckets  map[string]*rate.Limiter
	requests int
	period   time.Duration
	waited   time.Duration
}

// New creates a Limiter allowing requests per period, with bursts up to requests.
func New(requests int, period time.Duration) *Limiter {
	return &Limiter{
		global:   rate.NewLimiter(every(requests, period), requests),
		buckets:  make(map[string]*rate.Limiter),
		requests: requests,
		period:   period,
	}
}

func every(requests int, period time.Duration) rate.Limit {
	if requests <= 0 || period <= 0 {
		return rate.Inf
	}
	return rate.Every(period / time.Duration(requests))
}

// Wait blocks until both the global bucket and the endpoint bucket grant a token,
// or ctx is done.
func (l *Limiter) Wait(ctx context.Context, endpoint string) error {
	start := time.Now()
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	if err := l.bucket(endpoint).Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	l.waited += time.Since(start)
	l.mu.Unlock()
	return nil
}

// Allow reports whether a call to endpoint may proceed now, consuming a token if so.
func (l *Limiter) Allow(endpoint string) bool {
	now := time.Now()
	global := l.global.ReserveN(now, 1)
	if !global.OK() || global.DelayFrom(now) > 0 {
		global.CancelAt(now)
		return false
	}
	if !l.bucket(endpoint).AllowN(now, 1) {
		global.CancelAt(now)
		return false
	}
	return true
}

func (l *Limiter) bucket(endpoint string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[endpoint]
	if !ok {
		b = rate.NewLimiter(every(l.requests, l.period), l.requests)
		l.buckets[endpoint] = b
	}
	return b
}

// SetLimit changes the budget of the global bucket and every endpoint bucket.
func (l *Limiter) SetLimit(requests int, period time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requests = requests
	l.period = period
	limit := every(requests, period)
	l.global.SetLimit(limit)
	l.global.SetBurst(requests)
	for _, b := range l.buckets {
		b.SetLimit(limit)
		b.SetBurst(requests)
	}
}

// Endpoints returns the number of endpoint buckets created so far.
func (l *Limiter) Endpoints() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Waited returns the cumulative time spent blocked in Wait.
func (l *Limiter) Waited() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.waited
}
