package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
)

func TestStorageKey(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	tenantID := node.Generate()

	receivedAt := time.Date(2024, 6, 1, 23, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	key := StorageKey(tenantID, receivedAt, "0d1f3a58-9f2e-4a3b-8c6d-1e2f3a4b5c6d")

	// 23:30+02:00 is 21:30 UTC; the day partition follows UTC.
	require.Equal(t,
		"tenant="+tenantID.String()+"/day=2024-06-01/batch=0d1f3a58-9f2e-4a3b-8c6d-1e2f3a4b5c6d.json",
		key,
	)
}

func TestStorageKeyUTCDayBoundary(t *testing.T) {
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	tenantID := node.Generate()

	// 00:30+02:00 is 22:30 UTC on the previous day.
	receivedAt := time.Date(2024, 6, 2, 0, 30, 0, 0, time.FixedZone("CEST", 2*3600))
	key := StorageKey(tenantID, receivedAt, "batch-x")
	require.Contains(t, key, "/day=2024-06-01/")
}
