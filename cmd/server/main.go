package main

import (
	"github.com/OFFIS-RIT/amtcalc/internal/server"
	"github.com/OFFIS-RIT/amtcalc/internal/util"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger"
	"github.com/OFFIS-RIT/amtcalc/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	cfg := util.LoadConfig()

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: cfg.Debug,
		JSON:  cfg.LogFormat == "json",
	})
	logger.Init(consoleLogger)

	server.Init(cfg)
}
