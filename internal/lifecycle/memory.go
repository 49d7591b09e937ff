package lifecycle

import (
	"context"
	"errors"
	"slices"
)

// ErrUnsupportedDriver is returned for unknown driver names.
var ErrUnsupportedDriver = errors.New("lifecycle: unsupported driver")

// MemoryPublisher keeps the most recent events in a bounded ring. The
// status API serves them, and tests observe them.
type MemoryPublisher struct {
	events []Event
	limit  int
	closed bool
}

// NewMemoryPublisher creates the publisher. A non-positive limit falls
// back to 512 retained events.
func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = 512
	}
	return &MemoryPublisher{limit: limit}
}

// Publish implements Publisher.
func (p *MemoryPublisher) Publish(_ context.Context, event Event) error {
	if p.closed {
		return errors.New("lifecycle: publisher closed")
	}
	p.events = append(p.events, event)
	if len(p.events) > p.limit {
		p.events = p.events[len(p.events)-p.limit:]
	}
	return nil
}

// Events returns the retained events, oldest first.
func (p *MemoryPublisher) Events() []Event {
	return slices.Clone(p.events)
}

// Close implements Publisher.
func (p *MemoryPublisher) Close() error {
	p.closed = true
	return nil
}
