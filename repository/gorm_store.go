package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roadside-monitor/be/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) CreateDevice(ctx context.Context, device *models.Device) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(device).Error; err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (s *GormStore) GetDevice(ctx context.Context, id uint) (*models.Device, error) {
	var device models.Device
	if err := s.db.WithContext(ctx).First(&device, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch device %d: %w", id, err)
	}
	return &device, nil
}

func (s *GormStore) LockDevice(ctx context.Context, id uint) (*models.Device, error) {
	var device models.Device
	err := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&device, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock device %d: %w", id, err)
	}
	return &device, nil
}

func (s *GormStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	if err := s.db.WithContext(ctx).Order("id asc").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *GormStore) UpdateDevice(ctx context.Context, id uint, patch models.DevicePatch) error {
	if patch.IsEmpty() {
		return s.exists(ctx, id)
	}

	updates := map[string]interface{}{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Description != nil {
		updates["description"] = *patch.Description
	}
	if patch.Lat != nil {
		updates["lat"] = *patch.Lat
	}
	if patch.Lng != nil {
		updates["lng"] = *patch.Lng
	}
	return s.updateColumns(ctx, id, updates)
}

func (s *GormStore) UpdateHazardFlags(ctx context.Context, id uint, flags models.HazardFlags) error {
	return s.updateColumns(ctx, id, map[string]interface{}{
		"is_fogging":       flags.IsFogging,
		"is_road_slippery": flags.IsRoadSlippery,
		"is_landslide":     flags.IsLandslide,
	})
}

func (s *GormStore) TouchLastUpload(ctx context.Context, id uint, at time.Time) error {
	return s.updateColumns(ctx, id, map[string]interface{}{"last_upload_at": at})
}

// DeleteDevice removes the device with its readings and images.
func (s *GormStore) DeleteDevice(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", id).Delete(&models.EnvironmentData{}).Error; err != nil {
			return fmt.Errorf("failed to delete environment data of device %d: %w", id, err)
		}
		if err := tx.Where("device_id = ?", id).Delete(&models.Image{}).Error; err != nil {
			return fmt.Errorf("failed to delete images of device %d: %w", id, err)
		}
		res := tx.Delete(&models.Device{}, id)
		if res.Error != nil {
			return fmt.Errorf("failed to delete device %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *GormStore) CreateEnvironmentData(ctx context.Context, data *models.EnvironmentData) error {
	if err := s.db.WithContext(ctx).Create(data).Error; err != nil {
		return fmt.Errorf("failed to create environment data: %w", err)
	}
	return nil
}

func (s *GormStore) ListEnvironmentData(ctx context.Context, deviceID uint, limit int) ([]models.EnvironmentData, error) {
	var rows []models.EnvironmentData
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list environment data of device %d: %w", deviceID, err)
	}
	return rows, nil
}

func (s *GormStore) EnvironmentSince(ctx context.Context, deviceID uint, since time.Time) ([]models.EnvironmentData, error) {
	var rows []models.EnvironmentData
	err := s.db.WithContext(ctx).
		Where("device_id = ? AND created_at >= ?", deviceID, since).
		Order("created_at desc, id desc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch environment window of device %d: %w", deviceID, err)
	}
	return rows, nil
}

func (s *GormStore) CreateImage(ctx context.Context, image *models.Image) error {
	if err := s.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("failed to create image: %w", err)
	}
	return nil
}

func (s *GormStore) ListImages(ctx context.Context, deviceID uint, limit int) ([]models.Image, error) {
	var rows []models.Image
	err := s.db.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images of device %d: %w", deviceID, err)
	}
	return rows, nil
}

func (s *GormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func (s *GormStore) updateColumns(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := s.db.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update device %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) exists(ctx context.Context, id uint) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Device{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check device %d: %w", id, err)
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}
