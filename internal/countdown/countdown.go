// Package countdown derives the time left on an attempt from its fixed deadline.
package countdown

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultPeriod is the sampling period of a running Clock.
const DefaultPeriod = time.Second

// Options configures a Clock.
type Options struct {
	// Period between samples while running. Values above one second are clamped.
	Period time.Duration
	// Active reports whether the attempt is still in progress. Expiry is only
	// signalled while it returns true. Nil means always active.
	Active func() bool
	// OnTick receives every sample.
	OnTick func(remaining time.Duration)
	// OnExpire is called once when the deadline is reached.
	OnExpire func()
}

// Clock samples remaining = max(0, endsAt - now).
//
// Remaining time is recomputed from the deadline on every sample, never by
// counting ticks, so a process that was suspended catches up on resume.
// Callbacks run on the sampler goroutine and must not call Stop.
type Clock struct {
	endsAt time.Time
	clk    clock.WithTicker
	opts   Options

	mu      sync.Mutex
	expired bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a Clock for the given deadline.
func New(endsAt time.Time, clk clock.WithTicker, opts Options) *Clock {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if opts.Period <= 0 || opts.Period > time.Second {
		opts.Period = DefaultPeriod
	}
	return &Clock{endsAt: endsAt, clk: clk, opts: opts}
}

// EndsAt returns the deadline.
func (c *Clock) EndsAt() time.Time {
	return c.endsAt
}

// Remaining computes the time left without emitting anything.
func (c *Clock) Remaining() time.Duration {
	left := c.endsAt.Sub(c.clk.Now())
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether expiry has been signalled.
func (c *Clock) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// Sample computes the remaining time, emits it and signals expiry if due.
func (c *Clock) Sample() time.Duration {
	remaining := c.Remaining()

	fire := false
	if remaining == 0 {
		c.mu.Lock()
		if !c.expired && (c.opts.Active == nil || c.opts.Active()) {
			c.expired = true
			fire = true
		}
		c.mu.Unlock()
	}

	if c.opts.OnTick != nil {
		c.opts.OnTick(remaining)
	}
	if fire && c.opts.OnExpire != nil {
		c.opts.OnExpire()
	}
	return remaining
}

// Start launches the periodic sampler. The first sample is taken immediately.
func (c *Clock) Start() {
	c.mu.Lock()
	if c.done != nil {
		c.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	ticker := c.clk.NewTicker(c.opts.Period)
	go func() {
		defer close(done)
		defer ticker.Stop()

		c.Sample()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				c.Sample()
			}
		}
	}()
}

// Stop halts the sampler and waits for it to exit. It is safe to call twice.
func (c *Clock) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Format renders a duration as MM:SS, rounding partial seconds down.
func Format(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
