// Package intake buffers raw push-event frames between the transport and
// the reconciler. A single worker drains the queue, so events apply in
// arrival order without the transport goroutine blocking on store locks.
package intake

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"chatfeed/pkg/metrics"
)

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("intake queue full")

// maxPooledBuffer is the largest frame buffer returned to the pool; bigger
// ones are dropped so a single oversized frame does not pin memory.
const maxPooledBuffer = 256 * 1024

// Item carries one raw frame. The payload may be backed by a pooled
// buffer; the consumer must call Done exactly once after processing.
type Item struct {
	Raw []byte

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases the pooled buffer and returns the item to its pool.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		it.Raw = nil
		itemPool.Put(it)
	})
}

var itemPool = sync.Pool{New: func() any { return &Item{} }}

// Queue is a bounded frame queue, safe for concurrent producers and one
// consumer.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
}

// NewQueue creates a queue holding up to capacity frames.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

func newItem(raw []byte) *Item {
	it := itemPool.Get().(*Item)
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], raw...)
	it.Raw = bb.B[:len(raw)]
	it.buf = bb
	it.once = sync.Once{}
	return it
}

// TryEnqueue copies raw into a pooled buffer and enqueues it without
// blocking. Returns ErrQueueFull when the queue is at capacity; the frame
// is the caller's to drop or retry.
func (q *Queue) TryEnqueue(raw []byte) error {
	it := newItem(raw)
	select {
	case q.ch <- it:
		metrics.IntakeDepth.Set(float64(len(q.ch)))
		return nil
	default:
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		metrics.IntakeDropped.Inc()
		return ErrQueueFull
	}
}

// Enqueue copies raw into a pooled buffer and enqueues it, blocking until
// space frees up or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, raw []byte) error {
	it := newItem(raw)
	select {
	case q.ch <- it:
		metrics.IntakeDepth.Set(float64(len(q.ch)))
		return nil
	case <-ctx.Done():
		it.Done()
		atomic.AddUint64(&q.dropped, 1)
		metrics.IntakeDropped.Inc()
		return ctx.Err()
	}
}

// RunWorker drains the queue, invoking handler for each frame until ctx is
// cancelled or the queue is closed. Done is called on every item whether
// or not the handler succeeds.
func (q *Queue) RunWorker(ctx context.Context, handler func(raw []byte) error) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			metrics.IntakeDepth.Set(float64(len(q.ch)))
			func(it *Item) {
				defer it.Done()
				_ = handler(it.Raw)
			}(it)
		case <-ctx.Done():
			return
		}
	}
}

// CloseAndDrain closes the queue and releases everything still buffered.
func (q *Queue) CloseAndDrain() {
	close(q.ch)
	for it := range q.ch {
		it.Done()
	}
}

// Len returns the number of frames currently buffered.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns how many frames were rejected or abandoned at enqueue.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
