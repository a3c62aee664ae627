package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"droidagent/models"
	"droidagent/service"
)

func SetupRoutes(router *gin.Engine, dm *service.DeviceManager, sm *service.SessionManager, store *service.StepStore, hub *Hub) {
	// Enable CORS
	router.Use(CORSMiddleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
			"status":  "ok",
			"message": "droidagent control plane is running",
		}))
	})

	// API routes
	api := router.Group("/api")
	{
		devices := api.Group("/devices")
		{
			devices.GET("", func(c *gin.Context) {
				GetDevices(c, dm)
			})
			devices.POST("/scan", func(c *gin.Context) {
				ScanDevices(c, dm)
			})

			device := devices.Group("/:device_id")
			{
				device.POST("/session/start", func(c *gin.Context) {
					StartSession(c, sm)
				})
				device.POST("/session/stop", func(c *gin.Context) {
					StopSession(c, sm)
				})
				device.GET("/session", func(c *gin.Context) {
					GetSession(c, sm)
				})
				device.POST("/step", func(c *gin.Context) {
					ExecuteStep(c, sm)
				})
				device.GET("/screenshot", func(c *gin.Context) {
					GetScreenshot(c, sm)
				})
				device.POST("/confirm", func(c *gin.Context) {
					PostConfirm(c, sm)
				})
				device.POST("/cancel", func(c *gin.Context) {
					PostCancel(c, sm)
				})
				device.POST("/touch", func(c *gin.Context) {
					PostTouch(c, sm)
				})
				device.GET("/steps", func(c *gin.Context) {
					GetSteps(c, store)
				})
			}
		}
	}

	// WebSocket route
	router.GET("/ws", func(c *gin.Context) {
		HandleWebSocket(hub, sm, c)
	})
}

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
