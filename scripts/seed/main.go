package main

import (
	"context"
	"log"

	"roadside-monitor/be/clock"
	"roadside-monitor/be/config"
	"roadside-monitor/be/database"
	"roadside-monitor/be/logger"
	"roadside-monitor/be/models"
	"roadside-monitor/be/services"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

type seedDevice struct {
	input    models.CreateDeviceInput
	readings []models.ReadingInput
}

func str(s string) *string { return &s }

func reading(temperature, humidity float64, raining bool) models.ReadingInput {
	return models.ReadingInput{
		Temperature: models.Float(temperature),
		Humidity:    models.Float(humidity),
		IsRaining:   models.Bool(raining),
	}
}

var demoDevices = []seedDevice{
	{
		input: models.CreateDeviceInput{
			Title:       str("Camera Hồ Gươm"),
			Description: str("Thiết bị quan sát tại Hồ Gươm, Hà Nội"),
			Lat:         models.Float(21.0285),
			Lng:         models.Float(105.8542),
			Images: []models.InitialImageInput{
				{URL: "https://placekitten.com/200/200", LicensePlate: str("29A-12345")},
				{URL: "https://placekitten.com/300/200", LicensePlate: str("30B-67890")},
			},
		},
		readings: []models.ReadingInput{
			reading(25.5, 70.0, false),
			reading(24.0, 75.5, false),
		},
	},
	{
		input: models.CreateDeviceInput{
			Title:       str("Camera Lăng Bác"),
			Description: str("Thiết bị quan sát tại Quảng trường Ba Đình"),
			Lat:         models.Float(21.0379),
			Lng:         models.Float(105.8331),
			Images: []models.InitialImageInput{
				{URL: "https://placekitten.com/250/200"},
			},
		},
		readings: []models.ReadingInput{
			reading(18.0, 96.0, false),
			reading(19.5, 95.5, false),
		},
	},
}

// Wipes every device and recreates the two Hanoi demo cameras.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := config.Load()
	zapLogger, err := logger.New(cfg.Log.Level, "console", "roadside-seed")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	if cfg.Database.Driver == "memory" {
		zapLogger.Fatal("Seeding needs a persistent database, set DB_DRIVER=postgres")
	}
	store, err := database.OpenStore(cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to connect to database", zap.Error(err))
	}
	blobs, err := services.NewLocalBlobStore(cfg.Upload.Dir)
	if err != nil {
		zapLogger.Fatal("Failed to open upload directory", zap.Error(err))
	}

	svc := services.NewDeviceService(store, blobs, nil, clock.Real{}, zapLogger, services.UploadOptions{
		MaxBytes:  cfg.Upload.MaxBytes,
		URLPrefix: cfg.Upload.URLPrefix,
	})

	ctx := context.Background()
	existing, err := svc.ListDevices(ctx, 0, 0)
	if err != nil {
		zapLogger.Fatal("Failed to list devices", zap.Error(err))
	}
	for _, d := range existing {
		if err := svc.DeleteDevice(ctx, d.ID); err != nil {
			zapLogger.Fatal("Failed to delete device", zap.Uint("device_id", d.ID), zap.Error(err))
		}
	}

	for _, seed := range demoDevices {
		view, err := svc.CreateDevice(ctx, seed.input)
		if err != nil {
			zapLogger.Fatal("Failed to create device", zap.String("title", *seed.input.Title), zap.Error(err))
		}
		var status models.HazardFlags
		for _, r := range seed.readings {
			result, err := svc.RecordReading(ctx, view.ID, r)
			if err != nil {
				zapLogger.Fatal("Failed to record reading", zap.Uint("device_id", view.ID), zap.Error(err))
			}
			status = result.DeviceStatus
		}
		zapLogger.Info("Seeded device",
			zap.Uint("device_id", view.ID),
			zap.String("title", view.Title),
			zap.Bool("is_fogging", status.IsFogging))
	}
}
