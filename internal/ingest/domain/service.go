package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// AcceptResult is returned to the client. It signals "accepted for
// processing", not "durably persisted": the stage and enqueue steps run
// detached from the response.
type AcceptResult struct {
	BatchID    string `json:"batch_id"`
	StorageKey string `json:"storage_key"`
}

// Service is the synchronous entry point of the pipeline.
type Service interface {
	Accept(ctx context.Context, tenantID snowflake.ID, req IngestRequest) (AcceptResult, error)
}
