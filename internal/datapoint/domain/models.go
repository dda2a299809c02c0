package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Datapoint is a normalized fact row. The unique index on
// (ingest_batch_id, metric_id, ts) makes redelivered batches insert-idempotent.
type Datapoint struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      snowflake.ID `gorm:"column:tenant_id;not null;index:ix_datapoints_tenant_metric_ts,priority:1"`
	MetricID      snowflake.ID `gorm:"column:metric_id;not null;index:ix_datapoints_tenant_metric_ts,priority:2;uniqueIndex:ux_datapoints_batch_metric_ts,priority:2"`
	TS            time.Time    `gorm:"column:ts;not null;index:ix_datapoints_tenant_metric_ts,priority:3;uniqueIndex:ux_datapoints_batch_metric_ts,priority:3"`
	Value         float64      `gorm:"not null"`
	Unit          *string      `gorm:"type:text"`
	IngestBatchID string       `gorm:"column:ingest_batch_id;type:text;not null;uniqueIndex:ux_datapoints_batch_metric_ts,priority:1"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Datapoint) TableName() string { return "datapoints" }
