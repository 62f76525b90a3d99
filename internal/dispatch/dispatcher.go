// Package dispatch runs a handler on a background goroutine fed by a bounded
// queue. The engine uses it for audit events and outbound mail so neither can
// block or fail the request that produced them.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
)

// Config controls queue size and overflow behavior. With DropIfFull unset,
// Submit waits for space until the caller's context is done.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// Dispatcher delivers submitted items to its handler in order. A nil
// *Dispatcher accepts and discards everything.
type Dispatcher[T any] struct {
	cfg       Config
	handle    func(context.Context, T)
	ch        chan T
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func New[T any](cfg Config, handle func(context.Context, T)) *Dispatcher[T] {
	if handle == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}

	d := &Dispatcher[T]{
		cfg:    cfg,
		handle: handle,
		ch:     make(chan T, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher[T]) run() {
	defer d.wg.Done()

	for {
		select {
		case item := <-d.ch:
			d.handle(context.Background(), item)
		case <-d.done:
			for {
				select {
				case item := <-d.ch:
					d.handle(context.Background(), item)
				default:
					return
				}
			}
		}
	}
}

// Submit queues item. It reports false when the item was dropped.
func (d *Dispatcher[T]) Submit(ctx context.Context, item T) bool {
	if d == nil || d.closed.Load() {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- item:
			return true
		case <-d.done:
			return false
		default:
			d.dropped.Add(1)
			return false
		}
	}

	select {
	case d.ch <- item:
		return true
	case <-ctx.Done():
		d.dropped.Add(1)
		return false
	case <-d.done:
		return false
	}
}

// Close stops accepting items and waits for queued ones to be handled.
func (d *Dispatcher[T]) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher[T]) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
