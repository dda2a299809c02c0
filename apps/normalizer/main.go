package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/edgepulse/edgepulse/internal/dimension"
	"github.com/edgepulse/edgepulse/internal/migration"
	"github.com/edgepulse/edgepulse/internal/normalizer"
	"github.com/edgepulse/edgepulse/internal/observability/metrics"
	"github.com/edgepulse/edgepulse/internal/pipelineconfig"
	"github.com/edgepulse/edgepulse/internal/queue"
	"github.com/edgepulse/edgepulse/internal/stager"
	"github.com/edgepulse/edgepulse/pkg/db"
	"github.com/edgepulse/edgepulse/pkg/log"
	"go.uber.org/fx"
)

// Consumer-only deployment: no HTTP surface beyond what the monolith or API
// deployment exposes; it drains the dispatch queue and writes fact rows.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		pipelineconfig.Module,
		metrics.Module,

		stager.Module,
		queue.Module,
		dimension.Module,

		normalizer.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	// A distinct node keeps this deployment's IDs disjoint from the API's.
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}
