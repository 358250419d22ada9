package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"roadside-monitor/be/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindValidation, models.ErrorKindUnsupportedMedia, models.ErrorKindPayloadTooLarge:
		return http.StatusBadRequest
	case models.ErrorKindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes {"error", "code"} for err. The cause of a 5xx is
// logged and never sent to the client.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := models.KindOf(err)
	status := statusFor(kind)

	message := "Internal server error"
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	c.JSON(status, gin.H{"error": message, "code": kind})
}

// parseID reads the :id path parameter. It writes a 400 and returns false
// when the value is not a positive integer.
func parseID(c *gin.Context) (uint, bool) {
	raw := c.Param("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid device id", "code": models.ErrorKindValidation})
		return 0, false
	}
	return uint(id), true
}

// queryLimit reads a positive integer query parameter. An absent value
// returns 0.
func queryLimit(c *gin.Context, name string) (int, bool) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " must be a positive integer", "code": models.ErrorKindValidation})
		return 0, false
	}
	return n, true
}
