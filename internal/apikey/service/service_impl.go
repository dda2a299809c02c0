package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/edgepulse/edgepulse/internal/apikey/domain"
	"github.com/edgepulse/edgepulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	Cfg config.Config
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	pepper string
}

func NewService(p ServiceParam) domain.Verifier {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("apikey.service"),
		pepper: p.Cfg.APIKeyPepper,
	}
}

// Verify resolves the tenant for a raw key. Any backing-store failure is
// logged and surfaced as ErrUnauthorized: the verifier fails closed and
// never leaks partial-match information.
func (s *Service) Verify(ctx context.Context, rawKey string) (snowflake.ID, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return 0, domain.ErrUnauthorized
	}

	prefix := domain.KeyPrefix(rawKey)
	hash := domain.HashAPIKey(s.pepper, rawKey)

	var record domain.APIKey
	err := s.db.WithContext(ctx).
		Where("key_prefix = ? AND key_hash = ? AND revoked_at IS NULL", prefix, hash).
		First(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.log.Error("api key lookup failed", zap.Error(err))
		}
		return 0, domain.ErrUnauthorized
	}

	if subtle.ConstantTimeCompare([]byte(record.KeyHash), []byte(hash)) != 1 {
		return 0, domain.ErrUnauthorized
	}

	return record.TenantID, nil
}
