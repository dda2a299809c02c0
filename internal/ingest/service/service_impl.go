package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/edgepulse/edgepulse/internal/batch/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	dimensiondomain "github.com/edgepulse/edgepulse/internal/dimension/domain"
	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	"github.com/edgepulse/edgepulse/internal/observability/metrics"
	"github.com/edgepulse/edgepulse/internal/queue"
	"github.com/edgepulse/edgepulse/internal/stager"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Cfg        config.Config
	GenID      *snowflake.Node
	Resolver   dimensiondomain.Resolver
	Store      stager.ObjectStore
	Dispatcher queue.Dispatcher
	Metrics    *metrics.Metrics
}

type Service struct {
	db           *gorm.DB
	log          *zap.Logger
	genID        *snowflake.Node
	resolver     dimensiondomain.Resolver
	store        stager.ObjectStore
	dispatcher   queue.Dispatcher
	metrics      *metrics.Metrics
	storeTimeout time.Duration
}

func NewService(p ServiceParam) ingestdomain.Service {
	timeout := time.Duration(p.Cfg.StoreTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("ingest.service"),
		genID:        p.GenID,
		resolver:     p.Resolver,
		store:        p.Store,
		dispatcher:   p.Dispatcher,
		metrics:      p.Metrics,
		storeTimeout: timeout,
	}
}

// Accept runs the synchronous half of the pipeline: resolve dimensions,
// record the batch, then hand staging and dispatch to a detached
// continuation. The caller gets 202 as soon as the batch row exists; it must
// not read that as durability of the raw blob.
func (s *Service) Accept(
	ctx context.Context,
	tenantID snowflake.ID,
	req ingestdomain.IngestRequest,
) (ingestdomain.AcceptResult, error) {
	batchID := uuid.NewString()
	receivedAt := time.Now().UTC()
	storageKey := batchdomain.StorageKey(tenantID, receivedAt, batchID)

	// Pre-creating dimensions here guarantees the normalizer's read path
	// finds the device, whatever order messages arrive in.
	if _, err := s.resolver.Resolve(ctx, tenantID, req.DeviceExternalID, req.MetricNames()); err != nil {
		return ingestdomain.AcceptResult{}, err
	}

	record := &batchdomain.Batch{
		ID:               s.genID.Generate(),
		BatchID:          batchID,
		TenantID:         tenantID,
		DeviceExternalID: req.DeviceExternalID,
		StorageKey:       storageKey,
		ReceivedAt:       receivedAt,
		Metadata: datatypes.JSONMap{
			"metric_count": len(req.Metrics),
		},
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return ingestdomain.AcceptResult{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return ingestdomain.AcceptResult{}, err
	}

	go s.stageAndDispatch(tenantID, req.DeviceExternalID, batchID, storageKey, receivedAt, payload)

	s.metrics.BatchesAccepted.Inc()
	return ingestdomain.AcceptResult{BatchID: batchID, StorageKey: storageKey}, nil
}

// stageAndDispatch is the detached continuation. It runs on its own context
// so a client disconnect cannot cancel it, and reports failures to logs and
// counters instead of the request. A failed stage blocks the dispatch: the
// normalizer must never chase a key that was not written.
func (s *Service) stageAndDispatch(
	tenantID snowflake.ID,
	deviceExternalID, batchID, storageKey string,
	receivedAt time.Time,
	payload []byte,
) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*s.storeTimeout)
	defer cancel()

	meta := stager.Metadata{
		"tenant_id":          tenantID.String(),
		"device_external_id": deviceExternalID,
		"batch_id":           batchID,
	}
	if err := s.store.Put(ctx, storageKey, payload, meta); err != nil {
		s.metrics.StageFailures.Inc()
		s.log.Error("stage failed, batch will not be dispatched",
			zap.Error(err),
			zap.String("batch_id", batchID),
			zap.String("storage_key", storageKey),
		)
		return
	}

	message, err := json.Marshal(batchdomain.DispatchMessage{
		BatchID:    batchID,
		TenantID:   tenantID.String(),
		StorageKey: storageKey,
		ReceivedAt: receivedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		s.metrics.EnqueueFailures.Inc()
		s.log.Error("dispatch message encoding failed", zap.Error(err), zap.String("batch_id", batchID))
		return
	}
	if err := s.dispatcher.Send(ctx, message); err != nil {
		s.metrics.EnqueueFailures.Inc()
		s.log.Error("dispatch failed, batch staged but not enqueued",
			zap.Error(err),
			zap.String("batch_id", batchID),
			zap.String("storage_key", storageKey),
		)
	}
}
