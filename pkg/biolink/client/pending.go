package client

import (
	"context"
	"errors"
	"sync"
)

// ErrWriteInFlight is returned when a write starts before the previous one
// has settled.
var ErrWriteInFlight = errors.New("another write is in flight")

// Pending holds the last value the server confirmed and, while a write is in
// flight, the optimistic value shown in its place. A failed write drops the
// optimistic value, which puts the confirmed one back.
type Pending[T any] struct {
	mu        sync.Mutex
	confirmed T
	pending   *T
}

// NewPending starts with a confirmed value
func NewPending[T any](confirmed T) *Pending[T] {
	return &Pending[T]{confirmed: confirmed}
}

// Value is what should be displayed now
func (p *Pending[T]) Value() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return *p.pending
	}
	return p.confirmed
}

// Confirmed is the last server-acknowledged value
func (p *Pending[T]) Confirmed() T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.confirmed
}

// InFlight reports whether a write has not settled yet
func (p *Pending[T]) InFlight() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending != nil
}

// Apply shows next immediately and runs write. On success the value write
// returns becomes confirmed; on failure the previous confirmed value is
// restored and the error returned.
func (p *Pending[T]) Apply(ctx context.Context, next T, write func(ctx context.Context) (T, error)) error {
	p.mu.Lock()
	if p.pending != nil {
		p.mu.Unlock()
		return ErrWriteInFlight
	}
	p.pending = &next
	p.mu.Unlock()

	stored, err := write(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = nil
	if err != nil {
		return err
	}
	p.confirmed = stored
	return nil
}

// Reset replaces the confirmed value, for example after a reload. It does
// nothing while a write is in flight.
func (p *Pending[T]) Reset(confirmed T) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return false
	}
	p.confirmed = confirmed
	return true
}
