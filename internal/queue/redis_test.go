package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRedisQueueReclaimMinIdleFollowsSource(t *testing.T) {
	current := 5 * time.Second
	q := NewRedisQueue(nil, RedisQueueConfig{
		Stream:         "s",
		Group:          "g",
		DeadStream:     "s:dead",
		ReclaimMinIdle: func() time.Duration { return current },
	}, zap.NewNop())

	require.Equal(t, 5*time.Second, q.reclaimMinIdle())

	// A reloaded tuning value is picked up without reconstructing the queue.
	current = 30 * time.Second
	require.Equal(t, 30*time.Second, q.reclaimMinIdle())
}

func TestRedisQueueReclaimMinIdleDefault(t *testing.T) {
	q := NewRedisQueue(nil, RedisQueueConfig{
		Stream:     "s",
		Group:      "g",
		DeadStream: "s:dead",
	}, zap.NewNop())

	require.Equal(t, time.Minute, q.reclaimMinIdle())
}
