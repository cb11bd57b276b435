package main

import (
	"github.com/rs/zerolog/log"

	"campaign-console/internal/app/server"
	"campaign-console/internal/config"
)

func main() {
	cfg := config.Load()
	config.SetupLogging(cfg.Server.LogLevel, !cfg.Server.LogJSON)

	if err := server.Run(cfg); err != nil {
		log.Fatal().Err(err).Msg("console stopped")
	}
}
