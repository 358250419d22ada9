package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the device API under /api.
func RegisterRoutes(router *gin.Engine, devices *DeviceHandler, environment *EnvironmentHandler, uploads *UploadHandler) {
	health := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/health", health)

	api := router.Group("/api")
	{
		api.GET("/health", health)

		deviceRoutes := api.Group("/devices")
		{
			deviceRoutes.GET("", devices.GetDevices)
			deviceRoutes.POST("", devices.CreateDevice)
			deviceRoutes.GET("/:id", devices.GetDevice)
			deviceRoutes.PUT("/:id", devices.UpdateDevice)
			deviceRoutes.DELETE("/:id", devices.DeleteDevice)
			deviceRoutes.GET("/:id/status", devices.GetStatus)
			deviceRoutes.GET("/:id/environment", environment.GetHistory)
			deviceRoutes.POST("/:id/environment", environment.RecordReading)
			deviceRoutes.POST("/:id/upload", uploads.UploadDeviceImage)
		}

		api.POST("/upload", uploads.Upload)
		api.GET("/upload/*path", uploads.Serve)
	}
}
