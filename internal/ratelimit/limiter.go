// Package ratelimit caps how many external analyses one student may trigger
// for one evaluation within a fixed window.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultLimit is the number of analyses allowed per window.
	DefaultLimit = 5
	// DefaultWindow is the fixed cooldown window.
	DefaultWindow = 300 * time.Second
)

// CounterStore keeps windowed counters. A counter is created with a fresh
// expiry on its first increment and disappears once that expiry passes; later
// increments never extend it.
type CounterStore interface {
	// Count returns the live count for key, 0 if absent or expired.
	Count(ctx context.Context, key string) (int, error)
	// Increment adds one to key and returns the new count.
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	// IncrementIfBelow adds one to key only when the live count is below limit,
	// as a single atomic step.
	IncrementIfBelow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	// Decrement removes one from key without going below zero or touching the expiry.
	Decrement(ctx context.Context, key string) error
}

// Limiter enforces a fixed-window quota per (evaluation, student).
type Limiter struct {
	store  CounterStore
	limit  int
	window time.Duration
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimit overrides DefaultLimit.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithWindow overrides DefaultWindow.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// New creates a limiter backed by store.
func New(store CounterStore, opts ...Option) *Limiter {
	l := &Limiter{store: store, limit: DefaultLimit, window: DefaultWindow}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Key builds the counter key for an (evaluation, student) pair.
func Key(evaluationID, studentID int64) string {
	return fmt.Sprintf("evaluation_analysis:%d:%d", evaluationID, studentID)
}

// Allow reports whether another analysis may start for the pair.
func (l *Limiter) Allow(ctx context.Context, evaluationID, studentID int64) (bool, error) {
	n, err := l.store.Count(ctx, Key(evaluationID, studentID))
	if err != nil {
		return false, fmt.Errorf("read rate limit counter: %w", err)
	}
	return n < l.limit, nil
}

// Record counts one analysis for the pair.
func (l *Limiter) Record(ctx context.Context, evaluationID, studentID int64) error {
	if _, err := l.store.Increment(ctx, Key(evaluationID, studentID), l.window); err != nil {
		return fmt.Errorf("record analysis: %w", err)
	}
	return nil
}

// Acquire is Allow and Record in one atomic step. It reserves a slot that the
// caller must Release if the analysis does not succeed.
func (l *Limiter) Acquire(ctx context.Context, evaluationID, studentID int64) (bool, error) {
	ok, err := l.store.IncrementIfBelow(ctx, Key(evaluationID, studentID), l.limit, l.window)
	if err != nil {
		return false, fmt.Errorf("acquire analysis slot: %w", err)
	}
	return ok, nil
}

// Release gives back a slot taken by Acquire.
func (l *Limiter) Release(ctx context.Context, evaluationID, studentID int64) error {
	if err := l.store.Decrement(ctx, Key(evaluationID, studentID)); err != nil {
		return fmt.Errorf("release analysis slot: %w", err)
	}
	return nil
}
