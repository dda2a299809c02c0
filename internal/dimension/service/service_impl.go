package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/edgepulse/edgepulse/internal/dimension/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p ServiceParam) domain.Resolver {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("dimension.service"),
		genID: p.GenID,
	}
}

// Resolve upserts the device and each distinct metric name inside a single
// transaction. Concurrent calls for the same arguments race inside the
// unique-constraint conflict targets; both resolve to the same identifiers.
func (s *Service) Resolve(
	ctx context.Context,
	tenantID snowflake.ID,
	deviceExternalID string,
	metricNames []string,
) (domain.Resolution, error) {
	resolution := domain.Resolution{MetricIDs: make(map[string]snowflake.ID, len(metricNames))}

	deviceExternalID = strings.TrimSpace(deviceExternalID)
	if tenantID == 0 || deviceExternalID == "" {
		return resolution, domain.ErrInvalidDevice
	}

	names := distinctNames(metricNames)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deviceID, err := s.upsertDevice(tx, tenantID, deviceExternalID)
		if err != nil {
			return err
		}
		resolution.DeviceID = deviceID

		for _, name := range names {
			metricID, err := s.upsertMetric(tx, tenantID, deviceID, name)
			if err != nil {
				return err
			}
			resolution.MetricIDs[name] = metricID
		}
		return nil
	})
	if err != nil {
		return domain.Resolution{}, err
	}
	return resolution, nil
}

func (s *Service) Lookup(ctx context.Context, tenantID snowflake.ID, deviceExternalID string) (snowflake.ID, error) {
	var device domain.Device
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND external_id = ?", tenantID, strings.TrimSpace(deviceExternalID)).
		First(&device).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return 0, domain.ErrDeviceMissing
		}
		return 0, err
	}
	return device.ID, nil
}

func (s *Service) MetricIDs(
	ctx context.Context,
	tenantID, deviceID snowflake.ID,
	names []string,
) (map[string]snowflake.ID, error) {
	distinct := distinctNames(names)
	ids := make(map[string]snowflake.ID, len(distinct))
	if len(distinct) == 0 {
		return ids, nil
	}

	var rows []domain.Metric
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND device_id = ? AND name IN ?", tenantID, deviceID, distinct).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		ids[row.Name] = row.ID
	}
	return ids, nil
}

// upsertDevice inserts the device if absent and reads back the stable ID.
// The insert-then-select sequence is race-safe under the unique constraint
// on (tenant_id, external_id).
func (s *Service) upsertDevice(tx *gorm.DB, tenantID snowflake.ID, externalID string) (snowflake.ID, error) {
	candidate := domain.Device{
		ID:         s.genID.Generate(),
		TenantID:   tenantID,
		ExternalID: externalID,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "external_id"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		return 0, err
	}

	var device domain.Device
	if err := tx.Where("tenant_id = ? AND external_id = ?", tenantID, externalID).
		First(&device).Error; err != nil {
		return 0, err
	}
	return device.ID, nil
}

func (s *Service) upsertMetric(tx *gorm.DB, tenantID, deviceID snowflake.ID, name string) (snowflake.ID, error) {
	candidate := domain.Metric{
		ID:       s.genID.Generate(),
		TenantID: tenantID,
		DeviceID: deviceID,
		Name:     name,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "device_id"}, {Name: "name"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if err != nil {
		return 0, err
	}

	var metric domain.Metric
	if err := tx.Where("tenant_id = ? AND device_id = ? AND name = ?", tenantID, deviceID, name).
		First(&metric).Error; err != nil {
		return 0, err
	}
	return metric.ID, nil
}

func distinctNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
