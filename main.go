package main

import (
	"github.com/kvfeed/kvfeed/config"
	"github.com/kvfeed/kvfeed/kv"
	"github.com/kvfeed/kvfeed/routes"
	"github.com/kvfeed/kvfeed/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	store := kv.NewRedisStore(utils.NewRedisClient(cfg))

	r := routes.SetupRouter(cfg, store)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
