package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const localQueueSize = 256

// LocalHub delivers published changes to the channels of this process.
// It serves a real backend that runs without a message broker. Publish
// only enqueues; one worker delivers changes in publish order.
type LocalHub struct {
	reg   *registry
	now   func() time.Time
	queue chan Change
	stop  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool
}

func NewLocalHub(log *zap.Logger) *LocalHub {
	h := &LocalHub{
		reg:   newRegistry(log.Named("realtime")),
		now:   time.Now,
		queue: make(chan Change, localQueueSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	h.idle = sync.NewCond(&h.mu)
	go h.run()
	return h
}

func (h *LocalHub) run() {
	defer close(h.done)
	for {
		select {
		case c := <-h.queue:
			h.reg.dispatch(c)
			h.settle()
		case <-h.stop:
			return
		}
	}
}

func (h *LocalHub) settle() {
	h.mu.Lock()
	if h.pending > 0 {
		h.pending--
	}
	if h.pending == 0 {
		h.idle.Broadcast()
	}
	h.mu.Unlock()
}

func (h *LocalHub) Channel(name string) Channel {
	return h.reg.newChannel(name)
}

func (h *LocalHub) RemoveChannel(ch Channel) error {
	return h.reg.remove(ch)
}

// Publish queues c for delivery. It blocks only while the queue is full.
func (h *LocalHub) Publish(ctx context.Context, c Change) error {
	if c.CommitAt.IsZero() {
		c.CommitAt = h.now().UTC()
	}
	if c.Schema == "" {
		c.Schema = SchemaPublic
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.pending++
	h.mu.Unlock()

	select {
	case h.queue <- c:
		return nil
	case <-h.stop:
		h.settle()
		return nil
	case <-ctx.Done():
		h.settle()
		return ctx.Err()
	}
}

// Wait blocks until every change published so far has been delivered.
func (h *LocalHub) Wait() {
	h.mu.Lock()
	for h.pending > 0 && !h.closed {
		h.idle.Wait()
	}
	h.mu.Unlock()
}

func (h *LocalHub) Live() bool { return true }

// Close drops undelivered changes and closes every channel.
func (h *LocalHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.pending = 0
	h.idle.Broadcast()
	h.mu.Unlock()

	close(h.stop)
	<-h.done
	h.reg.closeAll()
	return nil
}
