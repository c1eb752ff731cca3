package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/donara/internal/clock"
	"github.com/smallbiznis/donara/internal/config"
	"github.com/smallbiznis/donara/internal/migration"
	"github.com/smallbiznis/donara/internal/observability"
	"github.com/smallbiznis/donara/internal/server"
	"github.com/smallbiznis/donara/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface, pulls in the donation, gateway and receipt modules
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.NodeID)
	if err != nil {
		panic(err)
	}
	return node
}
