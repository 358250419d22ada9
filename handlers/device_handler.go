package handlers

import (
	"net/http"

	"roadside-monitor/be/models"
	"roadside-monitor/be/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type DeviceHandler struct {
	devices *services.DeviceService
	logger  *zap.Logger
}

func NewDeviceHandler(devices *services.DeviceService, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{devices: devices, logger: logger}
}

func (h *DeviceHandler) GetDevices(c *gin.Context) {
	views, err := h.devices.ListDevices(c.Request.Context(), 0, 0)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, views)
}

func (h *DeviceHandler) GetDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	view, err := h.devices.GetDevice(c.Request.Context(), id, 0, 0)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *DeviceHandler) CreateDevice(c *gin.Context) {
	var req models.CreateDeviceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": models.ErrorKindValidation})
		return
	}

	view, err := h.devices.CreateDevice(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, view)
}

func (h *DeviceHandler) UpdateDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req models.UpdateDeviceInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": models.ErrorKindValidation})
		return
	}

	view, err := h.devices.UpdateDevice(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *DeviceHandler) DeleteDevice(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.devices.DeleteDevice(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device deleted successfully"})
}

// GetStatus returns the latest hazard snapshot together with the live
// isActive flag, which is never cached.
func (h *DeviceHandler) GetStatus(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	status, err := h.devices.Status(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	active, err := h.devices.IsDeviceActive(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deviceId":       status.DeviceID,
		"isFogging":      status.Flags.IsFogging,
		"isRoadSlippery": status.Flags.IsRoadSlippery,
		"isLandslide":    status.Flags.IsLandslide,
		"evaluatedAt":    status.EvaluatedAt,
		"isActive":       active,
	})
}
