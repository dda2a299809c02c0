package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/edgepulse/edgepulse/internal/apikey/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const testPepper = "test-pepper"

func newTestService(t *testing.T) (domain.Verifier, *gorm.DB, *snowflake.Node) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:apikey_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.APIKey{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM tenant_api_keys")
	})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParam{
		DB:  db,
		Log: zap.NewNop(),
		Cfg: config.Config{APIKeyPepper: testPepper},
	})
	return svc, db, node
}

func insertKey(t *testing.T, db *gorm.DB, node *snowflake.Node, tenantID snowflake.ID, rawKey string, revoked bool) {
	t.Helper()

	record := domain.APIKey{
		ID:        node.Generate(),
		TenantID:  tenantID,
		KeyPrefix: domain.KeyPrefix(rawKey),
		KeyHash:   domain.HashAPIKey(testPepper, rawKey),
	}
	if revoked {
		now := time.Now().UTC()
		record.RevokedAt = &now
	}
	require.NoError(t, db.Create(&record).Error)
}

func TestVerify(t *testing.T) {
	svc, db, node := newTestService(t)
	ctx := context.Background()

	tenantID := node.Generate()
	rawKey := "epk_live_0123456789abcdef"
	insertKey(t, db, node, tenantID, rawKey, false)

	t.Run("valid key resolves tenant", func(t *testing.T) {
		got, err := svc.Verify(ctx, rawKey)
		require.NoError(t, err)
		require.Equal(t, tenantID, got)
	})

	t.Run("empty credential", func(t *testing.T) {
		_, err := svc.Verify(ctx, "")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("unknown credential", func(t *testing.T) {
		_, err := svc.Verify(ctx, "epk_live_doesnotexist000000")
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("single mutated character", func(t *testing.T) {
		mutated := rawKey[:len(rawKey)-1] + "0"
		require.NotEqual(t, rawKey, mutated)
		_, err := svc.Verify(ctx, mutated)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("revoked credential", func(t *testing.T) {
		revokedKey := "epk_live_revoked1234567890"
		insertKey(t, db, node, tenantID, revokedKey, true)
		_, err := svc.Verify(ctx, revokedKey)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	})
}

func TestHashAPIKeyIncludesPepper(t *testing.T) {
	raw := "epk_live_0123456789abcdef"
	require.NotEqual(t, domain.HashAPIKey("pepper-a", raw), domain.HashAPIKey("pepper-b", raw))
}

func TestKeyPrefix(t *testing.T) {
	require.Equal(t, "epk_live", domain.KeyPrefix("epk_live_0123456789abcdef"))
	require.Equal(t, "short", domain.KeyPrefix("short"))
}
