package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BinhNguyenDang/Demo-Turbochat/internal/metrics"
)

const (
	roomQueueDepth   = 256
	queueIdleTimeout = time.Minute
)

// roomQueue is one room's effect queue. pending is guarded by the
// sequencer mutex and keeps the drain goroutine from idling out between an
// enqueue reserving a slot and the send landing on the channel.
type roomQueue struct {
	ch      chan func()
	pending int
}

// sequencer runs post-commit effects in FIFO order per room. One goroutine
// drains each room's queue, so effects for a room execute in the exact
// order messages committed, while distinct rooms proceed in parallel.
// Queues that stay empty past the idle timeout are reclaimed.
type sequencer struct {
	mu     sync.Mutex
	queues map[uuid.UUID]*roomQueue
	idle   time.Duration
	closed bool
	wg     sync.WaitGroup
}

func newSequencer() *sequencer {
	return &sequencer{
		queues: make(map[uuid.UUID]*roomQueue),
		idle:   queueIdleTimeout,
	}
}

// enqueue appends fn to the room's queue, creating the drain goroutine on
// first use. Blocks when the room's queue is full rather than reorder.
func (s *sequencer) enqueue(roomID uuid.UUID, fn func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	q, ok := s.queues[roomID]
	if !ok {
		q = &roomQueue{ch: make(chan func(), roomQueueDepth)}
		s.queues[roomID] = q
		s.wg.Add(1)
		go s.drain(roomID, q)
	}
	q.pending++
	s.mu.Unlock()

	metrics.SequencerDepth.Inc()
	q.ch <- fn
}

func (s *sequencer) drain(roomID uuid.UUID, q *roomQueue) {
	defer s.wg.Done()
	idle := time.NewTimer(s.idle)
	defer idle.Stop()

	for {
		select {
		case fn, ok := <-q.ch:
			if !ok {
				return
			}
			fn()
			metrics.SequencerDepth.Dec()
			s.mu.Lock()
			q.pending--
			s.mu.Unlock()
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.idle)
		case <-idle.C:
			s.mu.Lock()
			if q.pending == 0 && !s.closed {
				delete(s.queues, roomID)
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()
			idle.Reset(s.idle)
		}
	}
}

// flush blocks until every effect queued so far has run. The queues stay
// open for further work.
func (s *sequencer) flush() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	queues := make([]*roomQueue, 0, len(s.queues))
	for _, q := range s.queues {
		q.pending++
		queues = append(queues, q)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, q := range queues {
		wg.Add(1)
		metrics.SequencerDepth.Inc()
		q.ch <- func() { wg.Done() }
	}
	wg.Wait()
}

// close stops accepting effects and waits for queued ones to finish.
func (s *sequencer) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for _, q := range s.queues {
		close(q.ch)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
