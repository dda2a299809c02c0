package queue

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// MemoryQueue is an in-process queue for tests. It mimics the external
// channel's at-least-once behavior: delivered messages stay in flight until
// acked or parked, and Redeliver returns them to the head of the queue.
type MemoryQueue struct {
	mu       sync.Mutex
	nextID   int
	pending  []Message
	inflight map[string]Message
	dead     []Message
	reasons  map[string]string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		inflight: make(map[string]Message),
		reasons:  make(map[string]string),
	}
}

func (q *MemoryQueue) Send(ctx context.Context, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	stored := make([]byte, len(payload))
	copy(stored, payload)
	q.pending = append(q.pending, Message{
		ID:      strconv.Itoa(q.nextID),
		Payload: stored,
	})
	return nil
}

func (q *MemoryQueue) Receive(ctx context.Context, max int, block time.Duration) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := max
	if n > len(q.pending) {
		n = len(q.pending)
	}
	out := make([]Message, 0, n)
	for _, msg := range q.pending[:n] {
		msg.Attempts++
		q.inflight[msg.ID] = msg
		out = append(out, msg)
	}
	q.pending = q.pending[n:]
	return out, nil
}

func (q *MemoryQueue) Ack(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, id)
	return nil
}

func (q *MemoryQueue) Park(ctx context.Context, msg Message, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.dead = append(q.dead, msg)
	q.reasons[msg.ID] = reason
	delete(q.inflight, msg.ID)
	return nil
}

// Redeliver returns every in-flight message to the pending queue, keeping
// its delivery count. Tests use it to simulate crash/timeout redelivery.
func (q *MemoryQueue) Redeliver() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, msg := range q.inflight {
		q.pending = append(q.pending, msg)
		delete(q.inflight, id)
	}
}

// Dead returns the parked messages.
func (q *MemoryQueue) Dead() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.dead))
	copy(out, q.dead)
	return out
}

// PendingCount reports how many messages await delivery.
func (q *MemoryQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// InflightCount reports how many deliveries are unacknowledged.
func (q *MemoryQueue) InflightCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inflight)
}
