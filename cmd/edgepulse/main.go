package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/edgepulse/edgepulse/internal/config"
	"github.com/edgepulse/edgepulse/internal/migration"
	"github.com/edgepulse/edgepulse/internal/normalizer"
	"github.com/edgepulse/edgepulse/internal/pipelineconfig"
	"github.com/edgepulse/edgepulse/internal/queue"
	"github.com/edgepulse/edgepulse/internal/server"
	"github.com/edgepulse/edgepulse/internal/stager"
	"github.com/edgepulse/edgepulse/pkg/db"
	"github.com/edgepulse/edgepulse/pkg/log"
	"go.uber.org/fx"
)

// The monolith runs both halves of the pipeline: the accept API and the
// normalizer consumer.
func main() {
	app := fx.New(
		config.Module,
		log.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		pipelineconfig.Module,

		stager.Module,
		queue.Module,

		server.Module,
		normalizer.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
