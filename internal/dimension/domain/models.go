// Package domain contains persistence models for ingestion dimensions.
// Devices and metrics are created on first sight and never deleted by the
// pipeline; their identifiers are stable once assigned.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Device is an externally-identified reporting device within a tenant.
type Device struct {
	ID         snowflake.ID `gorm:"primaryKey"`
	TenantID   snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_devices_tenant_external,priority:1"`
	ExternalID string       `gorm:"column:external_id;type:text;not null;uniqueIndex:ux_devices_tenant_external,priority:2"`
	CreatedAt  time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Device) TableName() string { return "devices" }

// Metric is a named series reported by a device.
type Metric struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;uniqueIndex:ux_metrics_tenant_device_name,priority:1"`
	DeviceID  snowflake.ID `gorm:"column:device_id;not null;uniqueIndex:ux_metrics_tenant_device_name,priority:2"`
	Name      string       `gorm:"type:text;not null;uniqueIndex:ux_metrics_tenant_device_name,priority:3"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Metric) TableName() string { return "metrics" }
