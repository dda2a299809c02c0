// Package domain contains the accepted-submission record. A batch row is
// written once at accept time and its raw blob is retained indefinitely for
// audit and replay.
package domain

import (
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Batch is one accepted ingestion submission.
type Batch struct {
	ID               snowflake.ID      `gorm:"primaryKey"`
	BatchID          string            `gorm:"column:batch_id;type:text;not null;uniqueIndex:ux_batches_batch_id"`
	TenantID         snowflake.ID      `gorm:"column:tenant_id;not null;index:ix_batches_tenant"`
	DeviceExternalID string            `gorm:"column:device_external_id;type:text;not null"`
	StorageKey       string            `gorm:"column:storage_key;type:text;not null"`
	ReceivedAt       time.Time         `gorm:"column:received_at;not null"`
	NormalizedAt     *time.Time        `gorm:"column:normalized_at"`
	Metadata         datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt        time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Batch) TableName() string { return "batches" }

// StorageKey builds the blob key for a batch. Keys partition by tenant and
// UTC calendar date and are never reused.
func StorageKey(tenantID snowflake.ID, receivedAt time.Time, batchID string) string {
	day := receivedAt.UTC().Format("2006-01-02")
	return fmt.Sprintf("tenant=%s/day=%s/batch=%s.json", tenantID.String(), day, batchID)
}

// DispatchMessage is the reference handed from accept to normalize.
type DispatchMessage struct {
	BatchID    string `json:"batch_id"`
	TenantID   string `json:"tenant_id"`
	StorageKey string `json:"storage_key"`
	ReceivedAt string `json:"received_at"`
}
