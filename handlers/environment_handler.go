package handlers

import (
	"net/http"

	"roadside-monitor/be/models"
	"roadside-monitor/be/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type EnvironmentHandler struct {
	devices *services.DeviceService
	logger  *zap.Logger
}

func NewEnvironmentHandler(devices *services.DeviceService, logger *zap.Logger) *EnvironmentHandler {
	return &EnvironmentHandler{devices: devices, logger: logger}
}

// RecordReading accepts {temperature, humidity, isRaining, isLandslide?}.
// Numbers may arrive as strings; booleans as "true"/"false" or 0/1.
func (h *EnvironmentHandler) RecordReading(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.ReadingInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": models.ErrorKindValidation})
		return
	}

	result, err := h.devices.RecordReading(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":         true,
		"environmentData": result.EnvironmentData,
		"deviceStatus":    result.DeviceStatus,
	})
}

func (h *EnvironmentHandler) GetHistory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	limit, ok := queryLimit(c, "limit")
	if !ok {
		return
	}

	rows, err := h.devices.EnvironmentHistory(c.Request.Context(), id, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId": id,
		"count":    len(rows),
		"data":     rows,
	})
}
