// Package queue is the at-least-once handoff between accept and normalize.
// It delivers opaque payloads with no ordering guarantee and may redeliver
// after a crash or a timeout mid-processing; consumers must tolerate that.
package queue

import (
	"context"
	"time"
)

// Message is one delivery. Attempts counts deliveries of this message so
// far, including the current one.
type Message struct {
	ID       string
	Payload  []byte
	Attempts int64
}

// Dispatcher enqueues payloads on the accept side.
type Dispatcher interface {
	Send(ctx context.Context, payload []byte) error
}

// Consumer receives, acknowledges, and parks messages on the normalize side.
// A message that is neither acked nor parked becomes eligible for redelivery.
type Consumer interface {
	Receive(ctx context.Context, max int, block time.Duration) ([]Message, error)
	Ack(ctx context.Context, id string) error
	Park(ctx context.Context, msg Message, reason string) error
}
