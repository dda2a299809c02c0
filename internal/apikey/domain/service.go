package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Verifier resolves a tenant identity from a presented key. The only two
// outcomes a caller can observe are a tenant ID or ErrUnauthorized.
type Verifier interface {
	Verify(ctx context.Context, rawKey string) (snowflake.ID, error)
}

var ErrUnauthorized = errors.New("unauthorized")
