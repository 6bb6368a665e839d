package retry

import (
	"context"
	"errors"
	"math"
	"time"
)

// Policy defines reconnect behavior for a long-lived connection.
// A BackoffMultiplier of 1 yields a fixed delay.
type Policy struct {
	InitialDelay      time.Duration // Delay before the first reconnect attempt
	MaxDelay          time.Duration // Maximum delay between attempts
	BackoffMultiplier float64       // Multiplier applied per failed attempt (1 = fixed)
}

// FixedPolicy returns a policy that always waits the same delay
func FixedPolicy(delay time.Duration) Policy {
	return Policy{
		InitialDelay:      delay,
		MaxDelay:          delay,
		BackoffMultiplier: 1,
	}
}

// CappedBackoffPolicy returns an exponential policy capped at maxDelay
func CappedBackoffPolicy(initial, maxDelay time.Duration) Policy {
	return Policy{
		InitialDelay:      initial,
		MaxDelay:          maxDelay,
		BackoffMultiplier: 2.0,
	}
}

// CalculateDelay returns the delay before the given attempt (0-based)
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 0 || p.BackoffMultiplier <= 1 {
		return p.InitialDelay
	}

	delay := float64(p.InitialDelay) * math.Pow(p.BackoffMultiplier, float64(attempt))
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Validate checks if the policy configuration is valid
func (p *Policy) Validate() error {
	if p.InitialDelay <= 0 {
		return errors.New("InitialDelay must be positive")
	}
	if p.MaxDelay <= 0 {
		return errors.New("MaxDelay must be positive")
	}
	if p.BackoffMultiplier < 1 {
		return errors.New("BackoffMultiplier must be at least 1")
	}
	if p.InitialDelay > p.MaxDelay {
		return errors.New("InitialDelay cannot be greater than MaxDelay")
	}
	return nil
}

// Wait sleeps for the delay of the given attempt, returning early with ctx.Err()
func (p *Policy) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(p.CalculateDelay(attempt))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
