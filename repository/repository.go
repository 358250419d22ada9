package repository

import (
	"context"
	"errors"
	"time"

	"roadside-monitor/be/models"
)

// ErrNotFound is returned when a device row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence layer for devices and their readings and images.
// Listing methods return rows newest first.
type Store interface {
	CreateDevice(ctx context.Context, device *models.Device) error
	GetDevice(ctx context.Context, id uint) (*models.Device, error)
	// LockDevice reads a device and holds a row lock until the surrounding
	// transaction ends.
	LockDevice(ctx context.Context, id uint) (*models.Device, error)
	ListDevices(ctx context.Context) ([]models.Device, error)
	UpdateDevice(ctx context.Context, id uint, patch models.DevicePatch) error
	UpdateHazardFlags(ctx context.Context, id uint, flags models.HazardFlags) error
	TouchLastUpload(ctx context.Context, id uint, at time.Time) error
	DeleteDevice(ctx context.Context, id uint) error

	CreateEnvironmentData(ctx context.Context, data *models.EnvironmentData) error
	ListEnvironmentData(ctx context.Context, deviceID uint, limit int) ([]models.EnvironmentData, error)
	EnvironmentSince(ctx context.Context, deviceID uint, since time.Time) ([]models.EnvironmentData, error)

	CreateImage(ctx context.Context, image *models.Image) error
	ListImages(ctx context.Context, deviceID uint, limit int) ([]models.Image, error)

	// Transaction runs fn against a transactional Store. Any error returned by
	// fn rolls back every write made through tx.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
