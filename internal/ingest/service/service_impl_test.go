package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/edgepulse/edgepulse/internal/batch/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	dimensionservice "github.com/edgepulse/edgepulse/internal/dimension/service"
	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	"github.com/edgepulse/edgepulse/internal/observability/metrics"
	"github.com/edgepulse/edgepulse/internal/queue"
	"github.com/edgepulse/edgepulse/internal/seed"
	"github.com/edgepulse/edgepulse/internal/stager"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testPipeline struct {
	svc      ingestdomain.Service
	db       *gorm.DB
	store    *stager.MemoryStore
	queue    *queue.MemoryQueue
	tenantID snowflake.ID
}

func newTestPipeline(t *testing.T) *testPipeline {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:ingest_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, seed.AutoMigrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	log := zap.NewNop()
	resolver := dimensionservice.NewService(dimensionservice.ServiceParam{DB: db, Log: log, GenID: node})
	store := stager.NewMemoryStore()
	mq := queue.NewMemoryQueue()
	m := metrics.New(metrics.NewRegistry())

	svc := NewService(ServiceParam{
		DB:         db,
		Log:        log,
		Cfg:        config.Config{StoreTimeoutSeconds: 5},
		GenID:      node,
		Resolver:   resolver,
		Store:      store,
		Dispatcher: mq,
		Metrics:    m,
	})

	return &testPipeline{
		svc:      svc,
		db:       db,
		store:    store,
		queue:    mq,
		tenantID: node.Generate(),
	}
}

func sampleRequest() ingestdomain.IngestRequest {
	unit := "celsius"
	return ingestdomain.IngestRequest{
		DeviceExternalID: "sensor-001",
		Metrics: []ingestdomain.MetricPoint{
			{Name: "temperature", TS: "2024-06-01T12:00:00Z", Value: 21.5, Unit: &unit},
		},
	}
}

func TestAccept(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.svc.Accept(ctx, p.tenantID, sampleRequest())
	require.NoError(t, err)

	_, err = uuid.Parse(result.BatchID)
	require.NoError(t, err)

	day := time.Now().UTC().Format("2006-01-02")
	require.Equal(t,
		fmt.Sprintf("tenant=%s/day=%s/batch=%s.json", p.tenantID.String(), day, result.BatchID),
		result.StorageKey,
	)

	var batch batchdomain.Batch
	require.NoError(t, p.db.Where("batch_id = ?", result.BatchID).First(&batch).Error)
	require.Equal(t, p.tenantID, batch.TenantID)
	require.Equal(t, "sensor-001", batch.DeviceExternalID)
	require.Equal(t, result.StorageKey, batch.StorageKey)
	require.Nil(t, batch.NormalizedAt)

	// Staging and dispatch run on a detached continuation.
	require.Eventually(t, func() bool {
		return p.queue.PendingCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	raw, err := p.store.Get(ctx, result.StorageKey)
	require.NoError(t, err)
	stored, err := ingestdomain.Decode(raw)
	require.NoError(t, err)
	require.Equal(t, "sensor-001", stored.DeviceExternalID)

	meta, ok := p.store.ObjectMeta(result.StorageKey)
	require.True(t, ok)
	require.Equal(t, p.tenantID.String(), meta["tenant_id"])
	require.Equal(t, "sensor-001", meta["device_external_id"])
	require.Equal(t, result.BatchID, meta["batch_id"])
}

func TestAcceptDispatchMessage(t *testing.T) {
	p := newTestPipeline(t)

	result, err := p.svc.Accept(context.Background(), p.tenantID, sampleRequest())
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return p.queue.PendingCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	msgs, err := p.queue.Receive(context.Background(), 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var ref batchdomain.DispatchMessage
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &ref))
	require.Equal(t, result.BatchID, ref.BatchID)
	require.Equal(t, p.tenantID.String(), ref.TenantID)
	require.Equal(t, result.StorageKey, ref.StorageKey)

	_, err = time.Parse(time.RFC3339Nano, ref.ReceivedAt)
	require.NoError(t, err)
}

func TestAcceptGeneratesUniqueBatchIDs(t *testing.T) {
	p := newTestPipeline(t)
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		result, err := p.svc.Accept(ctx, p.tenantID, sampleRequest())
		require.NoError(t, err)
		_, dup := seen[result.BatchID]
		require.False(t, dup)
		seen[result.BatchID] = struct{}{}
	}
}
