package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_DRIVER", "UPLOAD_MAX_BYTES", "REDIS_ADDR", "MQTT_TOPIC", "CORS_ORIGINS", "STATUS_CACHE_TTL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, "/api/upload", cfg.Upload.URLPrefix)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Redis.StatusTTL)
	assert.Equal(t, "roadside/devices/+/environment", cfg.MQTT.Topic)
	assert.Contains(t, cfg.Server.CORSOrigins, "http://localhost:3000")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("UPLOAD_MAX_BYTES", "1024")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("STATUS_CACHE_TTL", "30s")
	t.Setenv("CORS_ORIGINS", "https://map.example.com, http://localhost:3002")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, int64(1024), cfg.Upload.MaxBytes)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Redis.StatusTTL)
	assert.Equal(t, []string{"https://map.example.com", "http://localhost:3002"}, cfg.Server.CORSOrigins)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("UPLOAD_MAX_BYTES", "five megabytes")
	t.Setenv("REDIS_DB", "x")
	t.Setenv("STATUS_CACHE_TTL", "soon")

	cfg := Load()

	assert.Equal(t, int64(5*1024*1024), cfg.Upload.MaxBytes)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 10*time.Minute, cfg.Redis.StatusTTL)
}
