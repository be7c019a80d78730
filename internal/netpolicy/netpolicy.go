// Package netpolicy implements C4: per-provider request pacing and a
// failure-triggered circuit breaker. Pacing is a golang.org/x/time/rate
// token bucket per provider (burst 1, rate.Inf when MinInterval is unset),
// following internal/network's BandwidthManager use of the same package;
// the breaker is a fresh three-state implementation, since
// BandwidthManager's CongestionController tunes concurrency rather than
// gating request admission.
package netpolicy

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BreakerState is one of the three circuit-breaker states.
type BreakerState int

const (
	Closed BreakerState = iota
	Open
	HalfOpen
)

// ProviderPolicy configures one provider's pacing and breaker thresholds.
type ProviderPolicy struct {
	MinInterval      time.Duration
	JitterMax        time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

type providerState struct {
	mu sync.Mutex

	limiter *rate.Limiter

	state        BreakerState
	failureCount int
	openedAt     time.Time
	policy       ProviderPolicy
}

// limiterFor builds the token bucket enforcing policy.MinInterval: burst 1
// so every request waits for a fresh token, rate.Inf when pacing is off.
func limiterFor(policy ProviderPolicy) *rate.Limiter {
	if policy.MinInterval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(policy.MinInterval), 1)
}

// Policy is the per-provider rate limiter and circuit breaker, keyed by
// provider key. One instance guards all providers; each provider's internal
// mutex is independent so one flaky provider never slows another.
type Policy struct {
	mu        sync.Mutex
	providers map[string]*providerState
	defaults  ProviderPolicy
}

// New constructs a Policy using defaults for any provider without explicit
// configuration.
func New(defaults ProviderPolicy) *Policy {
	if defaults.FailureThreshold <= 0 {
		defaults.FailureThreshold = 3
	}
	if defaults.Cooldown <= 0 {
		defaults.Cooldown = 60 * time.Second
	}
	return &Policy{providers: map[string]*providerState{}, defaults: defaults}
}

// Configure sets explicit pacing/breaker policy for a provider key.
func (p *Policy) Configure(providerKey string, policy ProviderPolicy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(providerKey)
	st.mu.Lock()
	st.policy = policy
	st.limiter = limiterFor(policy)
	st.mu.Unlock()
}

func (p *Policy) stateLocked(providerKey string) *providerState {
	st, ok := p.providers[providerKey]
	if !ok {
		st = &providerState{policy: p.defaults, limiter: limiterFor(p.defaults)}
		p.providers[providerKey] = st
	}
	return st
}

func (p *Policy) state(providerKey string) *providerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked(providerKey)
}

// ErrBreakerOpen is returned by Admit when the provider's breaker is OPEN
// and its cooldown has not yet elapsed.
var ErrBreakerOpen = breakerOpenError{}

type breakerOpenError struct{}

func (breakerOpenError) Error() string { return "circuit breaker open" }

// Admit applies the circuit-breaker gate and then the rate limiter sleep, in
// that order, per §4.2 steps 2-3. It blocks for ctx's duration if necessary.
func (p *Policy) Admit(ctx context.Context, providerKey string) error {
	st := p.state(providerKey)

	st.mu.Lock()
	switch st.state {
	case Open:
		if time.Since(st.openedAt) < st.policy.Cooldown {
			st.mu.Unlock()
			return ErrBreakerOpen
		}
		st.state = HalfOpen
	}
	limiter := st.limiter
	jitterMax := st.policy.JitterMax
	st.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return err
	}

	if jitterMax > 0 {
		t := time.NewTimer(time.Duration(rand.Int63n(int64(jitterMax))))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// RecordSuccess closes the breaker and resets the failure count.
func (p *Policy) RecordSuccess(providerKey string) {
	st := p.state(providerKey)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state = Closed
	st.failureCount = 0
}

// RecordFailure increments the failure count and opens the breaker once the
// configured threshold is reached (or immediately, from HALF_OPEN).
func (p *Policy) RecordFailure(providerKey string) {
	st := p.state(providerKey)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state == HalfOpen {
		st.state = Open
		st.openedAt = time.Now()
		return
	}
	st.failureCount++
	if st.failureCount >= st.policy.FailureThreshold {
		st.state = Open
		st.openedAt = time.Now()
	}
}

// State reports the current breaker state for diagnostics/tests.
func (p *Policy) State(providerKey string) BreakerState {
	st := p.state(providerKey)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.state
}
