package bootstrap

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/toxdht/dhtnode/pkg/packet"
)

// RetryPolicy governs exponential backoff with jitter for a retryable
// operation, sized here for seed-host DNS resolution: a handful of
// attempts with short delays, since a fresh node blocks on this before
// it can contact anything.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0.0 = none, 1.0 = full jitter
}

// DefaultRetryPolicy is sized for resolving a seed hostname: three
// attempts, starting at 200ms, doubling, capped at 2s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.Jitter > 0 {
		jitter := d * p.Jitter
		d += (rand.Float64()*2 - 1) * jitter
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}

// ResolveWithRetry calls Resolve, retrying transient DNS failures under
// policy before giving up with the last error. Seed hosts are typically
// resolved once at startup, where a transient resolver hiccup shouldn't
// sideline an otherwise-good bootstrap candidate.
func (s Seed) ResolveWithRetry(ctx context.Context, preferV4 bool, policy RetryPolicy) (packet.PackedNode, error) {
	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return packet.PackedNode{}, ctx.Err()
		default:
		}

		node, err := s.Resolve(preferV4)
		if err == nil {
			return node, nil
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return packet.PackedNode{}, ctx.Err()
		case <-time.After(policy.delay(attempt)):
		}
	}
	return packet.PackedNode{}, lastErr
}
