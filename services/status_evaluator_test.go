package services

import (
	"testing"
	"time"

	"roadside-monitor/be/models"

	"github.com/stretchr/testify/assert"
)

func TestIsFogging(t *testing.T) {
	cases := []struct {
		name        string
		temperature float64
		humidity    float64
		want        bool
	}{
		{"humid and cold", 19.9, 95.1, true},
		{"very humid and freezing", -3, 100, true},
		{"humidity at threshold", 10, 95, false},
		{"temperature at threshold", 20, 99, false},
		{"both at threshold", 20, 95, false},
		{"dry and cold", 5, 60, false},
		{"humid and warm", 25, 98, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsFogging(tc.temperature, tc.humidity))
		})
	}
}

func TestIsRoadSlippery(t *testing.T) {
	rain := models.EnvironmentData{IsRaining: true}
	dry := models.EnvironmentData{IsRaining: false}

	assert.False(t, IsRoadSlippery(nil), "empty window")
	assert.True(t, IsRoadSlippery([]models.EnvironmentData{rain}))
	assert.True(t, IsRoadSlippery([]models.EnvironmentData{rain, rain, rain}))
	assert.False(t, IsRoadSlippery([]models.EnvironmentData{dry, rain, rain}))
	assert.False(t, IsRoadSlippery([]models.EnvironmentData{rain, rain, dry}))
}

func TestEvaluate_LandslidePassThrough(t *testing.T) {
	yes, no := true, false

	flags := Evaluate(Reading{Temperature: 30, Humidity: 99}, nil)
	assert.False(t, flags.IsLandslide, "defaults to false")

	flags = Evaluate(Reading{Temperature: 30, Humidity: 10, IsLandslide: &yes}, nil)
	assert.True(t, flags.IsLandslide)

	flags = Evaluate(Reading{Temperature: 5, Humidity: 99, IsRaining: true, IsLandslide: &no},
		[]models.EnvironmentData{{IsRaining: true}})
	assert.False(t, flags.IsLandslide, "never derived from sensor values")
	assert.True(t, flags.IsFogging)
	assert.True(t, flags.IsRoadSlippery)
}

func TestIsActive(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(-d)
		return &ts
	}

	assert.False(t, IsActive(nil, now))
	assert.True(t, IsActive(at(0), now))
	assert.True(t, IsActive(at(60*time.Second), now))
	assert.False(t, IsActive(at(61*time.Second), now))
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, now.Add(-10*time.Minute), WindowStart(now))
}
