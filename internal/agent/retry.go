package agent

import (
	"context"
	"time"
)

// Backoff doubles from Base up to Max.
type Backoff struct {
	Base    time.Duration
	Max     time.Duration
	attempt int
}

// NewBackoff creates a doubling backoff.
func NewBackoff(base, max time.Duration) *Backoff {
	return &Backoff{Base: base, Max: max}
}

// Next returns the next delay.
func (b *Backoff) Next() time.Duration {
	d := b.Base << b.attempt
	if d > b.Max || d <= 0 {
		d = b.Max
	}
	b.attempt++
	return d
}

// Reset starts over from Base.
func (b *Backoff) Reset() {
	b.attempt = 0
}

// RetryPolicy bounds how often a storage write is attempted.
type RetryPolicy struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

// DefaultRetryPolicy tries a write three times.
var DefaultRetryPolicy = RetryPolicy{Attempts: 3, Base: 100 * time.Millisecond, Max: time.Second}

// Do runs fn until it succeeds, attempts run out or ctx ends. Attempts
// below 2 still retry once.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt int) error) error {
	attempts := p.Attempts
	if attempts < 2 {
		attempts = 2
	}
	b := NewBackoff(p.Base, p.Max)

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(b.Next()):
		}
	}
	return err
}
