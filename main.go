package main

import (
	"github.com/gin-gonic/gin"

	"droidagent/adb"
	"droidagent/api"
	"droidagent/config"
	"droidagent/logger"
	"droidagent/service"
)

func main() {
	logger.SetLevel(config.LogLevel())
	if config.LogFileOutput() {
		if err := logger.EnableFileOutput(config.LogDir()); err != nil {
			logger.Warnf("⚠️ File logging disabled: %v", err)
		}
	}
	logger.Bannerf("🤖 droidagent control plane starting")
	logger.Infof("⚙️ adb=%s ffmpeg=%s display=%dx%d@%ddpi",
		config.ADBPath(), config.FFmpegPath(),
		config.DisplayWidth(), config.DisplayHeight(), config.DisplayDPI())

	db, err := config.InitDatabase()
	if err != nil {
		logger.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer db.Close()

	adbClient := adb.NewClient(config.ADBPath())
	if err := adbClient.IsAvailable(); err != nil {
		logger.Warnf("⚠️ %v - device sessions will fail until adb works", err)
	}

	deviceManager := service.NewDeviceManager(adbClient)
	stepStore := service.NewStepStore(db)

	hub := api.NewHub()
	go hub.Run()

	sessionManager := service.NewSessionManager(adbClient, deviceManager, stepStore, hub)

	router := gin.Default()
	api.SetupRoutes(router, deviceManager, sessionManager, stepStore, hub)

	// Populate the device list without delaying startup
	go func() {
		if err := deviceManager.ScanDevices(); err != nil {
			logger.Warnf("⚠️ Initial device scan failed: %v", err)
		}
	}()

	addr := config.HTTPAddr()
	logger.Infof("🌐 HTTP API on %s", addr)
	logger.Infof("📡 Dashboard socket on ws://localhost%s/ws", addr)
	if err := router.Run(addr); err != nil {
		logger.Fatalf("❌ Failed to start server: %v", err)
	}
}
