package models

import "time"

type Image struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	DeviceID     uint      `json:"deviceId" gorm:"not null;index:idx_image_device_created,priority:1"`
	URL          string    `json:"url" gorm:"not null"`
	Title        *string   `json:"title"`
	Content      *string   `json:"content"`
	LicensePlate *string   `json:"licensePlate"`
	CreatedAt    time.Time `json:"createdAt" gorm:"index:idx_image_device_created,priority:2"`
}
