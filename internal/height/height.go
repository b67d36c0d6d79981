// Package height supplies the ledger height the registry stamps on new documents.
package height

import (
	"context"
	"sync/atomic"
)

// Provider returns the current, monotonically increasing ledger height.
type Provider interface {
	Current(ctx context.Context) (uint64, error)
}

// Counter is an in-process Provider. The zero value starts at height 0.
type Counter struct {
	v atomic.Uint64
}

// NewCounter returns a Counter starting at start.
func NewCounter(start uint64) *Counter {
	c := &Counter{}
	c.v.Store(start)
	return c
}

func (c *Counter) Current(ctx context.Context) (uint64, error) {
	return c.v.Load(), nil
}

// Advance moves the height forward by n and returns the new value.
func (c *Counter) Advance(n uint64) uint64 {
	return c.v.Add(n)
}
