package services

import (
	"time"

	"roadside-monitor/be/models"
)

const (
	FogHumidityThreshold    = 95.0 // %, exclusive
	FogTemperatureThreshold = 20.0 // °C, exclusive
	SlipperyWindow          = 10 * time.Minute
	LivenessWindow          = 60 * time.Second
)

// Reading is a validated sensor reading ready for evaluation.
type Reading struct {
	Temperature float64
	Humidity    float64
	IsRaining   bool
	// IsLandslide is nil when the caller did not assert a landslide state.
	IsLandslide *bool
}

// IsFogging reports fog for a single reading: humidity above 95% while the
// temperature is below 20°C.
func IsFogging(temperature, humidity float64) bool {
	return humidity > FogHumidityThreshold && temperature < FogTemperatureThreshold
}

// IsRoadSlippery reports whether the window is non-empty and every reading
// in it was raining. The window is the device's readings from the last
// SlipperyWindow.
func IsRoadSlippery(window []models.EnvironmentData) bool {
	if len(window) == 0 {
		return false
	}
	for _, r := range window {
		if !r.IsRaining {
			return false
		}
	}
	return true
}

// Evaluate derives the hazard flags for a device from its newest reading and
// the readings inside the slippery-road window. Landslide is never inferred
// from sensor values.
func Evaluate(reading Reading, window []models.EnvironmentData) models.HazardFlags {
	flags := models.HazardFlags{
		IsFogging:      IsFogging(reading.Temperature, reading.Humidity),
		IsRoadSlippery: IsRoadSlippery(window),
	}
	if reading.IsLandslide != nil {
		flags.IsLandslide = *reading.IsLandslide
	}
	return flags
}

// WindowStart is the inclusive lower bound of the slippery-road window.
func WindowStart(now time.Time) time.Time {
	return now.Add(-SlipperyWindow)
}

// IsActive reports liveness: the device uploaded an image at most
// LivenessWindow before now.
func IsActive(lastUploadAt *time.Time, now time.Time) bool {
	if lastUploadAt == nil {
		return false
	}
	return now.Sub(*lastUploadAt) <= LivenessWindow
}
