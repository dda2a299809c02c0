package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// APIKey stores hashed API credentials scoped to a tenant.
type APIKey struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  snowflake.ID `gorm:"column:tenant_id;not null;index:ix_tenant_api_keys_tenant"`
	KeyPrefix string       `gorm:"column:key_prefix;type:text;not null;index:ix_tenant_api_keys_prefix"`
	KeyHash   string       `gorm:"column:key_hash;type:text;not null"`
	RevokedAt *time.Time   `gorm:"column:revoked_at"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (APIKey) TableName() string { return "tenant_api_keys" }
