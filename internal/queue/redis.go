package queue

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const payloadField = "payload"

// RedisQueue implements Dispatcher and Consumer on a Redis Stream with a
// consumer group. Pending entries idle past the reclaim threshold are claimed
// from crashed consumers; each claim or group read counts as one delivery.
type RedisQueue struct {
	client         *redis.Client
	stream         string
	group          string
	deadStream     string
	consumer       string
	reclaimMinIdle func() time.Duration
	log            *zap.Logger
}

type RedisQueueConfig struct {
	Stream     string
	Group      string
	DeadStream string

	// ReclaimMinIdle is read per reclaim so a hot-reloaded value takes
	// effect without reconstructing the queue.
	ReclaimMinIdle func() time.Duration
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig, log *zap.Logger) *RedisQueue {
	minIdle := cfg.ReclaimMinIdle
	if minIdle == nil {
		minIdle = func() time.Duration { return time.Minute }
	}
	return &RedisQueue{
		client:         client,
		stream:         cfg.Stream,
		group:          cfg.Group,
		deadStream:     cfg.DeadStream,
		consumer:       "normalizer-" + ulid.Make().String(),
		reclaimMinIdle: minIdle,
		log:            log.Named("queue.redis"),
	}
}

// EnsureGroup creates the stream and consumer group if absent.
func (q *RedisQueue) EnsureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.stream, q.group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (q *RedisQueue) Send(ctx context.Context, payload []byte) error {
	return q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream,
		Values: map[string]interface{}{payloadField: payload},
	}).Err()
}

func (q *RedisQueue) Receive(ctx context.Context, max int, block time.Duration) ([]Message, error) {
	messages, err := q.reclaim(ctx, max)
	if err != nil {
		return nil, err
	}
	if len(messages) >= max {
		return messages, nil
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, ">"},
		Count:    int64(max - len(messages)),
		Block:    block,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return messages, nil
		}
		return messages, err
	}

	for _, stream := range streams {
		for _, entry := range stream.Messages {
			messages = append(messages, Message{
				ID:       entry.ID,
				Payload:  payloadBytes(entry.Values),
				Attempts: 1,
			})
		}
	}
	return messages, nil
}

// reclaim takes over pending entries whose consumer has gone quiet and
// annotates them with their delivery count.
func (q *RedisQueue) reclaim(ctx context.Context, max int) ([]Message, error) {
	minIdle := q.reclaimMinIdle()
	if minIdle <= 0 {
		minIdle = time.Minute
	}
	claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   q.stream,
		Group:    q.group,
		Consumer: q.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    int64(max),
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	messages := make([]Message, 0, len(claimed))
	for _, entry := range claimed {
		messages = append(messages, Message{
			ID:       entry.ID,
			Payload:  payloadBytes(entry.Values),
			Attempts: q.deliveryCount(ctx, entry.ID),
		})
	}
	return messages, nil
}

func (q *RedisQueue) deliveryCount(ctx context.Context, id string) int64 {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.stream,
		Group:  q.group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return pending[0].RetryCount
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	return q.client.XAck(ctx, q.stream, q.group, id).Err()
}

// Park moves a message to the dead-letter stream and acknowledges the
// original so it leaves the normal retry flow.
func (q *RedisQueue) Park(ctx context.Context, msg Message, reason string) error {
	err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.deadStream,
		Values: map[string]interface{}{
			payloadField: msg.Payload,
			"reason":     reason,
			"source_id":  msg.ID,
			"attempts":   msg.Attempts,
		},
	}).Err()
	if err != nil {
		return err
	}
	return q.Ack(ctx, msg.ID)
}

func payloadBytes(values map[string]interface{}) []byte {
	switch v := values[payloadField].(type) {
	case string:
		return []byte(v)
	case []byte:
		return v
	default:
		return nil
	}
}
