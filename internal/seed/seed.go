// Package seed bootstraps a development tenant with a usable API key. Key
// issuance workflows are external; this only exists so a local stack can
// authenticate without one.
package seed

import (
	"time"

	"github.com/bwmarrin/snowflake"
	apikeydomain "github.com/edgepulse/edgepulse/internal/apikey/domain"
	batchdomain "github.com/edgepulse/edgepulse/internal/batch/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	datapointdomain "github.com/edgepulse/edgepulse/internal/datapoint/domain"
	dimensiondomain "github.com/edgepulse/edgepulse/internal/dimension/domain"
	tenantdomain "github.com/edgepulse/edgepulse/internal/tenant/domain"
	"gorm.io/gorm"
)

// AutoMigrate builds the schema through gorm for non-postgres databases
// (the sqlite test path).
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&tenantdomain.Tenant{},
		&apikeydomain.APIKey{},
		&dimensiondomain.Device{},
		&dimensiondomain.Metric{},
		&batchdomain.Batch{},
		&datapointdomain.Datapoint{},
	)
}

// EnsureTenantWithKey creates the configured tenant and a hashed key record
// for it if they do not exist yet. Idempotent across restarts.
func EnsureTenantWithKey(conn *gorm.DB, cfg config.Config) error {
	node, err := snowflake.NewNode(0)
	if err != nil {
		return err
	}

	return conn.Transaction(func(tx *gorm.DB) error {
		var tenant tenantdomain.Tenant
		err := tx.Where("name = ?", cfg.SeedTenantName).First(&tenant).Error
		if err == gorm.ErrRecordNotFound {
			tenant = tenantdomain.Tenant{
				ID:        node.Generate(),
				Name:      cfg.SeedTenantName,
				CreatedAt: time.Now().UTC(),
			}
			if err := tx.Create(&tenant).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		if cfg.SeedAPIKey == "" {
			return nil
		}

		hash := apikeydomain.HashAPIKey(cfg.APIKeyPepper, cfg.SeedAPIKey)
		var key apikeydomain.APIKey
		err = tx.Where("tenant_id = ? AND key_hash = ?", tenant.ID, hash).First(&key).Error
		if err == gorm.ErrRecordNotFound {
			return tx.Create(&apikeydomain.APIKey{
				ID:        node.Generate(),
				TenantID:  tenant.ID,
				KeyPrefix: apikeydomain.KeyPrefix(cfg.SeedAPIKey),
				KeyHash:   hash,
				CreatedAt: time.Now().UTC(),
			}).Error
		}
		return err
	})
}
