package normalizer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	batchdomain "github.com/edgepulse/edgepulse/internal/batch/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	datapointdomain "github.com/edgepulse/edgepulse/internal/datapoint/domain"
	dimensiondomain "github.com/edgepulse/edgepulse/internal/dimension/domain"
	ingestdomain "github.com/edgepulse/edgepulse/internal/ingest/domain"
	"github.com/edgepulse/edgepulse/internal/observability/metrics"
	"github.com/edgepulse/edgepulse/internal/pipelineconfig"
	"github.com/edgepulse/edgepulse/internal/queue"
	"github.com/edgepulse/edgepulse/internal/stager"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type outcome int

const (
	outcomeOK outcome = iota
	outcomeRetry
	outcomePark
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	GenID    *snowflake.Node
	Consumer queue.Consumer
	Store    stager.ObjectStore
	Resolver dimensiondomain.Resolver
	Metrics  *metrics.Metrics
	Tuning   *pipelineconfig.Holder
}

// Worker consumes dispatch messages and normalizes staged payloads into
// datapoint rows. Messages are independent units; no ordering is assumed
// across them, and redelivery of an already-committed batch is harmless
// because inserts carry the duplicate-guard conflict clause.
type Worker struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	consumer queue.Consumer
	store    stager.ObjectStore
	resolver dimensiondomain.Resolver
	metrics  *metrics.Metrics
	tuning   *pipelineconfig.Holder
	poll     time.Duration
}

func NewWorker(p Params) *Worker {
	poll := time.Duration(p.Cfg.NormalizerPollMs) * time.Millisecond
	if poll <= 0 {
		poll = time.Second
	}
	return &Worker{
		db:       p.DB,
		log:      p.Log.Named("normalizer"),
		genID:    p.GenID,
		consumer: p.Consumer,
		store:    p.Store,
		resolver: p.Resolver,
		metrics:  p.Metrics,
		tuning:   p.Tuning,
		poll:     poll,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.log.Warn("normalizer run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce receives up to one batch of messages and processes each
// independently. Failures never abort the rest of the batch.
func (w *Worker) RunOnce(ctx context.Context) error {
	tuning := w.tuning.Get()

	messages, err := w.consumer.Receive(ctx, tuning.BatchSize, w.poll)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		w.handle(ctx, msg, tuning)
	}
	return nil
}

func (w *Worker) handle(ctx context.Context, msg queue.Message, tuning pipelineconfig.Tuning) {
	msgCtx, cancel := context.WithTimeout(ctx, tuning.PerMessageTimeout)
	defer cancel()

	result, reason := w.processMessage(msgCtx, msg)

	switch result {
	case outcomeOK:
		if err := w.consumer.Ack(msgCtx, msg.ID); err != nil {
			w.log.Warn("ack failed", zap.Error(err), zap.String("message_id", msg.ID))
		}
	case outcomePark:
		w.metrics.MessagesParked.Inc()
		if err := w.consumer.Park(msgCtx, msg, reason); err != nil {
			w.log.Error("park failed", zap.Error(err), zap.String("message_id", msg.ID))
		}
	case outcomeRetry:
		if msg.Attempts >= int64(tuning.MaxAttempts) {
			w.metrics.MessagesParked.Inc()
			if err := w.consumer.Park(msgCtx, msg, "max attempts exceeded: "+reason); err != nil {
				w.log.Error("park failed", zap.Error(err), zap.String("message_id", msg.ID))
			}
			return
		}
		// Leaving the message unacked hands it to the queue's own
		// retry/backoff policy; there is no caller to report to.
		w.metrics.MessagesRetried.Inc()
		w.log.Warn("message left for redelivery",
			zap.String("message_id", msg.ID),
			zap.Int64("attempts", msg.Attempts),
			zap.String("reason", reason),
		)
	}
}

func (w *Worker) processMessage(ctx context.Context, msg queue.Message) (outcome, string) {
	var ref batchdomain.DispatchMessage
	if err := json.Unmarshal(msg.Payload, &ref); err != nil {
		w.log.Error("undecodable dispatch message", zap.Error(err), zap.String("message_id", msg.ID))
		return outcomePark, "undecodable dispatch message"
	}

	tenantID, err := snowflake.ParseString(ref.TenantID)
	if err != nil {
		w.log.Error("invalid tenant id in dispatch message", zap.String("tenant_id", ref.TenantID))
		return outcomePark, "invalid tenant id"
	}

	raw, err := w.store.Get(ctx, ref.StorageKey)
	if err != nil {
		if errors.Is(err, stager.ErrNotFound) {
			// The write is scheduled before the dispatch, but the blob may
			// not be visible yet. Redelivery covers the gap.
			return outcomeRetry, "staged payload not found"
		}
		return outcomeRetry, "stager read failed: " + err.Error()
	}

	// Re-validation guards against corruption or partial writes; a stored
	// blob that fails the accept-time schema cannot be normalized, ever.
	req, err := ingestdomain.Decode(raw)
	if err != nil {
		w.log.Error("stored payload failed validation",
			zap.String("batch_id", ref.BatchID),
			zap.String("storage_key", ref.StorageKey),
		)
		return outcomePark, "stored payload failed validation"
	}

	deviceID, err := w.resolver.Lookup(ctx, tenantID, req.DeviceExternalID)
	if err != nil {
		if errors.Is(err, dimensiondomain.ErrDeviceMissing) {
			w.log.Error("invariant violation: device missing at normalize time",
				zap.String("batch_id", ref.BatchID),
				zap.String("device_external_id", req.DeviceExternalID),
			)
			return outcomePark, "invariant violation: device missing"
		}
		return outcomeRetry, "device lookup failed: " + err.Error()
	}

	metricIDs, err := w.resolver.MetricIDs(ctx, tenantID, deviceID, req.MetricNames())
	if err != nil {
		return outcomeRetry, "metric resolution failed: " + err.Error()
	}

	if err := w.insertDatapoints(ctx, tenantID, ref, req, metricIDs); err != nil {
		return outcomeRetry, "datapoint insert failed: " + err.Error()
	}

	w.metrics.BatchesNormalized.Inc()
	return outcomeOK, ""
}

// insertDatapoints writes every surviving point and stamps the batch row in
// one transaction: commit-all or roll-back-all.
func (w *Worker) insertDatapoints(
	ctx context.Context,
	tenantID snowflake.ID,
	ref batchdomain.DispatchMessage,
	req ingestdomain.IngestRequest,
	metricIDs map[string]snowflake.ID,
) error {
	now := time.Now().UTC()

	var inserted, dropped int64
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, point := range req.Metrics {
			// Dimension rows are keyed by the trimmed name; the raw point
			// may carry surrounding whitespace.
			metricID, ok := metricIDs[strings.TrimSpace(point.Name)]
			if !ok {
				// An unresolved name drops the point, not the batch.
				dropped++
				continue
			}

			ts, err := point.Timestamp()
			if err != nil {
				return err
			}

			res := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "ingest_batch_id"}, {Name: "metric_id"}, {Name: "ts"}},
				DoNothing: true,
			}).Create(&datapointdomain.Datapoint{
				ID:            w.genID.Generate(),
				TenantID:      tenantID,
				MetricID:      metricID,
				TS:            ts.UTC(),
				Value:         point.Value,
				Unit:          point.Unit,
				IngestBatchID: ref.BatchID,
			})
			if res.Error != nil {
				return res.Error
			}
			inserted += res.RowsAffected
		}

		return tx.Model(&batchdomain.Batch{}).
			Where("batch_id = ?", ref.BatchID).
			Update("normalized_at", now).Error
	})
	if err != nil {
		return err
	}

	w.metrics.PointsInserted.Add(float64(inserted))
	if dropped > 0 {
		w.metrics.PointsDropped.Add(float64(dropped))
		w.log.Warn("points dropped for unresolved metric names",
			zap.String("batch_id", ref.BatchID),
			zap.Int64("dropped", dropped),
		)
	}
	return nil
}
