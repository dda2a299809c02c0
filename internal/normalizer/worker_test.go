package normalizer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/edgepulse/edgepulse/internal/batch/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	datapointdomain "github.com/edgepulse/edgepulse/internal/datapoint/domain"
	dimensiondomain "github.com/edgepulse/edgepulse/internal/dimension/domain"
	dimensionservice "github.com/edgepulse/edgepulse/internal/dimension/service"
	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	ingestservice "github.com/edgepulse/edgepulse/internal/ingest/service"
	"github.com/edgepulse/edgepulse/internal/observability/metrics"
	"github.com/edgepulse/edgepulse/internal/pipelineconfig"
	"github.com/edgepulse/edgepulse/internal/queue"
	"github.com/edgepulse/edgepulse/internal/seed"
	"github.com/edgepulse/edgepulse/internal/stager"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	worker   *Worker
	ingest   ingestdomain.Service
	resolver dimensiondomain.Resolver
	db       *gorm.DB
	store    *stager.MemoryStore
	queue    *queue.MemoryQueue
	node     *snowflake.Node
	tenantID snowflake.ID
}

func newTestEnv(t *testing.T, maxAttempts int) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:normalizer_%s?mode=memory&cache=shared", uuid.NewString())), &gorm.Config{})
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

	ingest := ingestservice.NewService(ingestservice.ServiceParam{
		DB:         db,
		Log:        log,
		Cfg:        config.Config{StoreTimeoutSeconds: 5},
		GenID:      node,
		Resolver:   resolver,
		Store:      store,
		Dispatcher: mq,
		Metrics:    m,
	})

	worker := NewWorker(Params{
		DB:       db,
		Log:      log,
		Cfg:      config.Config{NormalizerPollMs: 10},
		GenID:    node,
		Consumer: mq,
		Store:    store,
		Resolver: resolver,
		Metrics:  m,
		Tuning: pipelineconfig.NewStaticHolder(pipelineconfig.Tuning{
			MaxAttempts:       maxAttempts,
			BatchSize:         16,
			ReclaimMinIdle:    time.Minute,
			PerMessageTimeout: 5 * time.Second,
		}),
	})

	return &testEnv{
		worker:   worker,
		ingest:   ingest,
		resolver: resolver,
		db:       db,
		store:    store,
		queue:    mq,
		node:     node,
		tenantID: node.Generate(),
	}
}

// accept pushes a submission through the accept path and waits for the
// detached continuation to stage and enqueue it.
func (e *testEnv) accept(t *testing.T, req ingestdomain.IngestRequest) ingestdomain.AcceptResult {
	t.Helper()

	pendingBefore := e.queue.PendingCount()
	result, err := e.ingest.Accept(context.Background(), e.tenantID, req)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return e.queue.PendingCount() == pendingBefore+1
	}, 2*time.Second, 10*time.Millisecond)
	return result
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

func TestNormalizeEndToEnd(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	result := env.accept(t, sampleRequest())
	require.NoError(t, env.worker.RunOnce(ctx))

	var points []datapointdomain.Datapoint
	require.NoError(t, env.db.Where("ingest_batch_id = ?", result.BatchID).Find(&points).Error)
	require.Len(t, points, 1)
	require.Equal(t, env.tenantID, points[0].TenantID)
	require.Equal(t, 21.5, points[0].Value)
	require.NotNil(t, points[0].Unit)
	require.Equal(t, "celsius", *points[0].Unit)
	require.Equal(t, "2024-06-01T12:00:00Z", points[0].TS.UTC().Format(time.RFC3339))

	var batch batchdomain.Batch
	require.NoError(t, env.db.Where("batch_id = ?", result.BatchID).First(&batch).Error)
	require.NotNil(t, batch.NormalizedAt)

	require.Zero(t, env.queue.InflightCount())
	require.Zero(t, env.queue.PendingCount())
	require.Empty(t, env.queue.Dead())
}

func TestNormalizeMetricNameWithWhitespace(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	// The accept path resolves the trimmed name; the raw point keeps its
	// whitespace all the way into the staged blob.
	result := env.accept(t, ingestdomain.IngestRequest{
		DeviceExternalID: "sensor-001",
		Metrics: []ingestdomain.MetricPoint{
			{Name: "  temperature  ", TS: "2024-06-01T12:00:00Z", Value: 21.5},
		},
	})
	require.NoError(t, env.worker.RunOnce(ctx))

	var points []datapointdomain.Datapoint
	require.NoError(t, env.db.Where("ingest_batch_id = ?", result.BatchID).Find(&points).Error)
	require.Len(t, points, 1)
	require.Equal(t, 21.5, points[0].Value)

	require.Zero(t, env.queue.InflightCount())
	require.Empty(t, env.queue.Dead())
}

func TestNormalizeRedeliveryDoesNotDoubleInsert(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	result := env.accept(t, sampleRequest())

	// Duplicate the dispatch so the same batch is delivered twice.
	msg, err := json.Marshal(batchdomain.DispatchMessage{
		BatchID:    result.BatchID,
		TenantID:   env.tenantID.String(),
		StorageKey: result.StorageKey,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	require.NoError(t, env.queue.Send(ctx, msg))

	require.NoError(t, env.worker.RunOnce(ctx))
	require.NoError(t, env.worker.RunOnce(ctx))

	var count int64
	require.NoError(t, env.db.Model(&datapointdomain.Datapoint{}).
		Where("ingest_batch_id = ?", result.BatchID).
		Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.Zero(t, env.queue.InflightCount())
	require.Empty(t, env.queue.Dead())
}

func TestNormalizeDropsUnresolvedMetrics(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	// Only "temperature" exists as a metric dimension; "pressure" never
	// passed through the accept path.
	res, err := env.resolver.Resolve(ctx, env.tenantID, "sensor-002", []string{"temperature"})
	require.NoError(t, err)

	batchID := uuid.NewString()
	storageKey := batchdomain.StorageKey(env.tenantID, time.Now().UTC(), batchID)
	payload, err := json.Marshal(ingestdomain.IngestRequest{
		DeviceExternalID: "sensor-002",
		Metrics: []ingestdomain.MetricPoint{
			{Name: "temperature", TS: "2024-06-01T12:00:00Z", Value: 18.0},
			{Name: "pressure", TS: "2024-06-01T12:00:00Z", Value: 1013.0},
		},
	})
	require.NoError(t, err)
	require.NoError(t, env.store.Put(ctx, storageKey, payload, nil))

	msg, err := json.Marshal(batchdomain.DispatchMessage{
		BatchID:    batchID,
		TenantID:   env.tenantID.String(),
		StorageKey: storageKey,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	require.NoError(t, env.queue.Send(ctx, msg))

	require.NoError(t, env.worker.RunOnce(ctx))

	var points []datapointdomain.Datapoint
	require.NoError(t, env.db.Where("ingest_batch_id = ?", batchID).Find(&points).Error)
	require.Len(t, points, 1)
	require.Equal(t, res.MetricIDs["temperature"], points[0].MetricID)

	require.Zero(t, env.queue.InflightCount())
	require.Empty(t, env.queue.Dead())
}

func TestNormalizeMissingBlobRetriesThenParks(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	result := env.accept(t, sampleRequest())
	env.store.Delete(result.StorageKey)

	// First two deliveries stay in flight for redelivery.
	for i := 0; i < 2; i++ {
		require.NoError(t, env.worker.RunOnce(ctx))
		require.Equal(t, 1, env.queue.InflightCount())
		require.Empty(t, env.queue.Dead())
		env.queue.Redeliver()
	}

	// The third delivery hits MaxAttempts.
	require.NoError(t, env.worker.RunOnce(ctx))
	require.Zero(t, env.queue.InflightCount())
	require.Len(t, env.queue.Dead(), 1)

	var count int64
	require.NoError(t, env.db.Model(&datapointdomain.Datapoint{}).
		Where("ingest_batch_id = ?", result.BatchID).
		Count(&count).Error)
	require.Zero(t, count)
}

func TestNormalizeMissingDeviceParksImmediately(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	batchID := uuid.NewString()
	storageKey := batchdomain.StorageKey(env.tenantID, time.Now().UTC(), batchID)
	payload, err := json.Marshal(ingestdomain.IngestRequest{
		DeviceExternalID: "sensor-never-resolved",
		Metrics: []ingestdomain.MetricPoint{
			{Name: "temperature", TS: "2024-06-01T12:00:00Z", Value: 1.0},
		},
	})
	require.NoError(t, err)
	require.NoError(t, env.store.Put(ctx, storageKey, payload, nil))

	msg, err := json.Marshal(batchdomain.DispatchMessage{
		BatchID:    batchID,
		TenantID:   env.tenantID.String(),
		StorageKey: storageKey,
		ReceivedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	require.NoError(t, err)
	require.NoError(t, env.queue.Send(ctx, msg))

	require.NoError(t, env.worker.RunOnce(ctx))
	require.Len(t, env.queue.Dead(), 1)
	require.Zero(t, env.queue.InflightCount())
}

func TestNormalizeUndecodableMessageParks(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	require.NoError(t, env.queue.Send(ctx, []byte("not a dispatch message")))
	require.NoError(t, env.worker.RunOnce(ctx))
	require.Len(t, env.queue.Dead(), 1)
}

func TestNormalizeCorruptStoredPayloadParks(t *testing.T) {
	env := newTestEnv(t, 3)
	ctx := context.Background()

	result := env.accept(t, sampleRequest())
	require.NoError(t, env.store.Put(ctx, result.StorageKey, []byte(`{"device_external_id": ""}`), nil))

	require.NoError(t, env.worker.RunOnce(ctx))
	require.Len(t, env.queue.Dead(), 1)

	var count int64
	require.NoError(t, env.db.Model(&datapointdomain.Datapoint{}).
		Where("ingest_batch_id = ?", result.BatchID).
		Count(&count).Error)
	require.Zero(t, count)
}
