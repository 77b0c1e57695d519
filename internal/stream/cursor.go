package stream

import (
	"context"
	"errors"
	"time"

	"quantgate/internal/apperr"
	"quantgate/pkg/types"
)

// ErrClosed reports that the subscription behind a cursor was removed.
// Consumers treat it as normal end of stream.
var ErrClosed = errors.New("subscription closed")

// Cursor is a single-consumer iterator over one subscription's queue.
// Attaching two cursors to the same subscription is undefined.
type Cursor struct {
	sub  *subscription
	tick *time.Ticker
}

// Stream returns the consumer cursor for id. The cursor does not own the
// subscription: closing the cursor leaves the subscription and its queue
// alive, so a client can reconnect and resume.
func (m *Manager) Stream(id string) (*Cursor, error) {
	m.mu.RLock()
	sub, ok := m.subs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("subscription", id)
	}
	return &Cursor{sub: sub, tick: time.NewTicker(time.Second)}, nil
}

// ID returns the subscription id the cursor drains.
func (c *Cursor) ID() string { return c.sub.id }

// Next blocks until a frame is available, the context is cancelled, or the
// subscription is removed. The wait wakes at least once per second so an
// unsubscribe is observed promptly even on a silent feed. Frames still
// buffered when the subscription was removed are discarded, not delivered.
func (c *Cursor) Next(ctx context.Context) (types.TickFrame, error) {
	for {
		if c.sub.closed.Load() {
			return types.TickFrame{}, ErrClosed
		}
		select {
		case frame := <-c.sub.queue.ch:
			if c.sub.closed.Load() {
				return types.TickFrame{}, ErrClosed
			}
			c.sub.touch()
			return frame, nil
		case <-ctx.Done():
			return types.TickFrame{}, ctx.Err()
		case <-c.tick.C:
		}
	}
}

// Close releases the cursor's timer. It does not unsubscribe.
func (c *Cursor) Close() {
	c.tick.Stop()
}
