package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Resolution maps the submitted names to their stable identifiers.
type Resolution struct {
	DeviceID  snowflake.ID
	MetricIDs map[string]snowflake.ID
}

// Resolver upserts and reads dimension rows.
type Resolver interface {
	// Resolve idempotently creates the device and the given metric names in
	// one transaction. Repeated calls with identical arguments return
	// identical identifiers and never duplicate rows.
	Resolve(ctx context.Context, tenantID snowflake.ID, deviceExternalID string, metricNames []string) (Resolution, error)

	// Lookup is the read-only path used at normalize time. The accept path
	// is required to have pre-created the device, so absence is an
	// invariant violation, not an ordinary not-found.
	Lookup(ctx context.Context, tenantID snowflake.ID, deviceExternalID string) (snowflake.ID, error)

	// MetricIDs resolves identifiers for the given names. Names with no row
	// are omitted from the result.
	MetricIDs(ctx context.Context, tenantID, deviceID snowflake.ID, names []string) (map[string]snowflake.ID, error)
}

var (
	ErrInvalidDevice = errors.New("invalid_device")

	// ErrDeviceMissing signals a device absent at normalize time even though
	// the accept path must have created it.
	ErrDeviceMissing = errors.New("device_missing")
)
