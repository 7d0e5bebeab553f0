package security

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

const (
	DefaultMinDelay = 0
	DefaultMaxDelay = 100 * time.Millisecond
)

// Delay suspends the caller for a uniformly random duration in [min, max].
// It returns early with the context error if ctx is done first.
func Delay(ctx context.Context, min, max time.Duration) error {
	d := RandomDuration(min, max)
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DefaultDelay applies Delay with the default [0, 100ms] bounds
func DefaultDelay(ctx context.Context) error {
	return Delay(ctx, DefaultMinDelay, DefaultMaxDelay)
}

// RandomDuration picks a duration uniformly in [min, max]. Bounds are swapped if reversed.
func RandomDuration(min, max time.Duration) time.Duration {
	if min < 0 {
		min = 0
	}
	if max < 0 {
		max = 0
	}
	if max < min {
		min, max = max, min
	}

	span := int64(max - min)
	if span == 0 {
		return min
	}

	n, err := rand.Int(rand.Reader, big.NewInt(span+1))
	if err != nil {
		return max
	}
	return min + time.Duration(n.Int64())
}

// Delayer applies Delay with configured bounds
type Delayer struct {
	Min time.Duration
	Max time.Duration
}

func NewDelayer(min, max time.Duration) Delayer {
	return Delayer{Min: min, Max: max}
}

func DefaultDelayer() Delayer {
	return Delayer{Min: DefaultMinDelay, Max: DefaultMaxDelay}
}

func (d Delayer) Wait(ctx context.Context) {
	_ = Delay(ctx, d.Min, d.Max)
}
